package domain

import "errors"

// Store-level outcomes the ledger service reacts to.
var (
	ErrVersionConflict = errors.New("wallet version changed since read")
	ErrDuplicateEntry  = errors.New("ledger entry id already recorded")
	ErrWalletExists    = errors.New("wallet already exists")
)
