package ports

import (
	"context"
	"time"

	"pocket-ledger/internal/core/domain"

	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=services.go -destination=mocks/mock_services.go -package=mocks

// TokenService validates identity provider bearer tokens.
type TokenService interface {
	Generate(userID string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	UserID string
}

// IdempotencyCache is the Redis-layer idempotency check (fast path).
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// UserLocker serialises mutations of one user within its reach.
// It only reduces conflicts; the versioned write decides correctness.
type UserLocker interface {
	// Lock blocks until the user's lock is held or ctx is done.
	Lock(ctx context.Context, userID string) (unlock func(), err error)
}

// --- Service Ports (Business Logic) ---

// LedgerService owns wallet balances.
type LedgerService interface {
	CreateWallet(ctx context.Context, userID, currency string) (*domain.Wallet, error)
	GetBalance(ctx context.Context, userID string) (*Balance, error)
	ApplyDelta(ctx context.Context, req ApplyDeltaRequest) (*ApplyDeltaResult, error)
	ListEntries(ctx context.Context, params EntryListParams) ([]domain.LedgerEntry, int64, error)
	VerifyChain(ctx context.Context, userID string) (*domain.ChainResult, error)
}

// Balance is the read view of a wallet.
type Balance struct {
	Balance  decimal.Decimal
	Currency string
	Version  int64
}

// ApplyDeltaRequest holds validated input for a balance mutation.
type ApplyDeltaRequest struct {
	UserID  string
	Delta   decimal.Decimal
	EntryID string // empty: generated by the service
	Reason  string
	// EnforceNonNegative overrides the configured policy when not nil.
	EnforceNonNegative *bool
}

// ApplyDeltaResult is the outcome of ApplyDelta.
type ApplyDeltaResult struct {
	EntryID  string
	Balance  decimal.Decimal
	Version  int64
	Replayed bool
}

// AuditService records audit entries without blocking the caller.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}
