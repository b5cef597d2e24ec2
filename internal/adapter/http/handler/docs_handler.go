package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// docsPage renders the ledger OpenAPI document. persistAuthorization keeps
// the X-API-Key and bearer values across reloads while trying endpoints.
const docsPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Pocket Ledger API</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: '/swagger/spec',
      dom_id: '#swagger-ui',
      persistAuthorization: true,
      defaultModelsExpandDepth: 0
    });
  </script>
</body>
</html>`

// APIDocs serves the ledger API reference: the HTML viewer at /swagger and
// the raw document at /swagger/spec.
type APIDocs struct {
	spec []byte
}

// NewAPIDocs wraps an OpenAPI document. An empty document makes the spec
// route answer 404.
func NewAPIDocs(spec []byte) *APIDocs {
	return &APIDocs{spec: spec}
}

// Page handles GET /swagger.
func (d *APIDocs) Page(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(docsPage))
}

// Spec handles GET /swagger/spec.
func (d *APIDocs) Spec(c *gin.Context) {
	if len(d.spec) == 0 {
		c.String(http.StatusNotFound, "API document not available")
		return
	}
	c.Data(http.StatusOK, "application/yaml", d.spec)
}
