package postgres

import (
	"context"
	"errors"
)

// ErrSchemaMissing reports a reachable database without the ledger tables.
var ErrSchemaMissing = errors.New("ledger schema missing; run migrations")

const querySchemaPresent = `
	SELECT to_regclass('user_wallets') IS NOT NULL
	   AND to_regclass('wallet_ledger_entries') IS NOT NULL`

// SchemaCheck reports PostgreSQL as healthy only when the wallet and ledger
// entry tables exist, so a fresh database with auto_migrate off shows up on
// /health instead of as 500s on the first apply.
type SchemaCheck struct {
	pool Pool
}

func NewSchemaCheck(pool Pool) *SchemaCheck {
	return &SchemaCheck{pool: pool}
}

func (s *SchemaCheck) Ping(ctx context.Context) error {
	var present bool
	if err := s.pool.QueryRow(ctx, querySchemaPresent).Scan(&present); err != nil {
		return err
	}
	if !present {
		return ErrSchemaMissing
	}
	return nil
}

func (s *SchemaCheck) Name() string {
	return "postgresql"
}
