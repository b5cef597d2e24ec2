package postgres

import (
	"context"
	"errors"
	"fmt"

	"pocket-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
	tx   *Transactor
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool, tx: NewTransactor(pool)}
}

// Create inserts a new wallet into the database.
func (r *WalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	query := `INSERT INTO user_wallets (user_id, balance, currency, version, last_entry_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		w.UserID, w.Balance, w.Currency, w.Version,
		w.LastEntryHash, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		if c, ok := uniqueViolationOn(err); ok && c == constraintWalletPK {
			return domain.ErrWalletExists
		}
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// GetByUserID fetches a wallet by its owner (plain read, no locking).
func (r *WalletRepo) GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error) {
	query := `SELECT user_id, balance, currency, version, last_entry_hash, created_at, updated_at
		FROM user_wallets WHERE user_id = $1`

	w := &domain.Wallet{}
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&w.UserID, &w.Balance, &w.Currency, &w.Version,
		&w.LastEntryHash, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get wallet by user id: %w", err)
	}
	return w, nil
}

// ApplyVersioned writes next only while the stored version is still
// expectedVersion, and inserts entry in the same transaction.
func (r *WalletRepo) ApplyVersioned(ctx context.Context, next *domain.Wallet, expectedVersion int64, entry *domain.LedgerEntry) error {
	return r.tx.WithTx(ctx, func(tx pgx.Tx) error {
		update := `UPDATE user_wallets
			SET balance = $1, version = $2, last_entry_hash = $3, updated_at = $4
			WHERE user_id = $5 AND version = $6`

		tag, err := tx.Exec(ctx, update,
			next.Balance, next.Version, next.LastEntryHash, next.UpdatedAt,
			next.UserID, expectedVersion,
		)
		if err != nil {
			return fmt.Errorf("update wallet: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrVersionConflict
		}

		insert := `INSERT INTO wallet_ledger_entries
			(entry_id, user_id, delta, reason, resulting_balance, wallet_version, prev_hash, hash, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

		_, err = tx.Exec(ctx, insert,
			entry.EntryID, entry.UserID, entry.Delta, entry.Reason,
			entry.ResultingBalance, entry.WalletVersion, entry.PrevHash,
			entry.Hash, entry.CreatedAt,
		)
		if err != nil {
			switch c, ok := uniqueViolationOn(err); {
			case ok && c == constraintEntryPK:
				return domain.ErrDuplicateEntry
			case ok && c == constraintEntryUserVerUnq:
				return domain.ErrVersionConflict
			}
			return fmt.Errorf("insert ledger entry: %w", err)
		}
		return nil
	})
}
