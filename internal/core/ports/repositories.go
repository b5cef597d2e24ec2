package ports

import (
	"context"

	"pocket-ledger/internal/core/domain"
)

//go:generate mockgen -source=repositories.go -destination=mocks/mock_repositories.go -package=mocks

// WalletRepository defines persistence operations for wallets.
type WalletRepository interface {
	// Create inserts a new wallet. Returns domain.ErrWalletExists if the user already has one.
	Create(ctx context.Context, wallet *domain.Wallet) error
	// GetByUserID returns nil, nil when no wallet exists.
	GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error)
	// ApplyVersioned atomically replaces the wallet with next if its stored
	// version still equals expectedVersion, and records entry.
	// Returns domain.ErrVersionConflict or domain.ErrDuplicateEntry; on any
	// error neither the wallet nor the entry is changed.
	ApplyVersioned(ctx context.Context, next *domain.Wallet, expectedVersion int64, entry *domain.LedgerEntry) error
}

// LedgerEntryRepository reads the append-only entry log.
type LedgerEntryRepository interface {
	// GetByEntryID returns nil, nil when the entry does not exist.
	GetByEntryID(ctx context.Context, entryID string) (*domain.LedgerEntry, error)
	// ListByUserID returns a newest-first page and the total count.
	ListByUserID(ctx context.Context, params EntryListParams) ([]domain.LedgerEntry, int64, error)
	// ListChain returns every entry of a user oldest-first.
	ListChain(ctx context.Context, userID string) ([]domain.LedgerEntry, error)
}

// EntryListParams holds pagination for listing entries.
type EntryListParams struct {
	UserID   string
	Page     int
	PageSize int
}

// Offset returns the row offset of the page (pages start at 1).
func (p EntryListParams) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.PageSize
}

// AuditRepository persists audit logs.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}
