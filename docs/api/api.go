// Package api carries the OpenAPI document for the ledger HTTP surface.
package api

import _ "embed"

// OpenAPI is docs/api/openapi.yaml, compiled into the binary.
//
//go:embed openapi.yaml
var OpenAPI []byte
