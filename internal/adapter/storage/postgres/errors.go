package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// Constraint names from migrations/0001_init.up.sql.
const (
	constraintWalletPK        = "user_wallets_pkey"
	constraintEntryPK         = "wallet_ledger_entries_pkey"
	constraintEntryUserVerUnq = "wallet_ledger_entries_user_version_key"
)

// uniqueViolationOn reports whether err is a unique violation and returns the constraint.
func uniqueViolationOn(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}
