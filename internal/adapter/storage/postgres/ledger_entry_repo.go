package postgres

import (
	"context"
	"errors"
	"fmt"

	"pocket-ledger/internal/core/domain"
	"pocket-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

const entryColumns = `entry_id, user_id, delta, reason, resulting_balance, wallet_version, prev_hash, hash, created_at`

// LedgerEntryRepo implements ports.LedgerEntryRepository.
type LedgerEntryRepo struct {
	pool Pool
}

// NewLedgerEntryRepo creates a new LedgerEntryRepo.
func NewLedgerEntryRepo(pool Pool) *LedgerEntryRepo {
	return &LedgerEntryRepo{pool: pool}
}

// GetByEntryID fetches a single entry by its idempotency key.
func (r *LedgerEntryRepo) GetByEntryID(ctx context.Context, entryID string) (*domain.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM wallet_ledger_entries WHERE entry_id = $1`

	e, err := scanEntry(r.pool.QueryRow(ctx, query, entryID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get entry by id: %w", err)
	}
	return e, nil
}

// ListByUserID returns one newest-first page of a user's entries and the total count.
func (r *LedgerEntryRepo) ListByUserID(ctx context.Context, params ports.EntryListParams) ([]domain.LedgerEntry, int64, error) {
	var total int64
	countQuery := `SELECT COUNT(*) FROM wallet_ledger_entries WHERE user_id = $1`
	if err := r.pool.QueryRow(ctx, countQuery, params.UserID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count entries: %w", err)
	}

	query := `SELECT ` + entryColumns + ` FROM wallet_ledger_entries
		WHERE user_id = $1
		ORDER BY created_at DESC, wallet_version DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, params.UserID, params.PageSize, params.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	entries, err := collectEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// ListChain returns all of a user's entries in version order.
func (r *LedgerEntryRepo) ListChain(ctx context.Context, userID string) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM wallet_ledger_entries
		WHERE user_id = $1
		ORDER BY wallet_version ASC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list chain: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

func scanEntry(row pgx.Row) (*domain.LedgerEntry, error) {
	e := &domain.LedgerEntry{}
	err := row.Scan(
		&e.EntryID, &e.UserID, &e.Delta, &e.Reason, &e.ResultingBalance,
		&e.WalletVersion, &e.PrevHash, &e.Hash, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func collectEntries(rows pgx.Rows) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}
