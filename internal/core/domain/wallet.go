package domain

import (
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

var (
	identifierRe = regexp.MustCompile(`^[A-Za-z0-9_.\-]{1,128}$`)
	currencyRe   = regexp.MustCompile(`^[A-Z]{3}$`)
)

// Wallet holds one user's balance. Version increases by one on every mutation.
type Wallet struct {
	UserID        string          `json:"user_id"`
	Balance       decimal.Decimal `json:"balance"`
	Currency      string          `json:"currency"`
	Version       int64           `json:"version"`
	LastEntryHash *string         `json:"-"` // Head of the entry hash chain
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NewWallet returns an empty wallet at version 0.
func NewWallet(userID, currency string, now time.Time) *Wallet {
	return &Wallet{
		UserID:    userID,
		Balance:   decimal.Zero,
		Currency:  currency,
		Version:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Permits reports whether delta may be applied under the non-negative policy.
// Credits are always permitted.
func (w *Wallet) Permits(delta decimal.Decimal, enforceNonNegative bool) bool {
	if !enforceNonNegative || !delta.IsNegative() {
		return true
	}
	return !w.Balance.Add(delta).IsNegative()
}

// Next returns the wallet state after applying delta together with the
// ledger entry recording it. w is not modified.
func (w *Wallet) Next(entryID string, delta decimal.Decimal, reason string, now time.Time) (*Wallet, *LedgerEntry) {
	entry := &LedgerEntry{
		EntryID:          entryID,
		UserID:           w.UserID,
		Delta:            delta,
		Reason:           reason,
		ResultingBalance: w.Balance.Add(delta),
		WalletVersion:    w.Version + 1,
		PrevHash:         w.LastEntryHash,
		CreatedAt:        now,
	}
	entry.Hash = entry.ComputeHash()

	hash := entry.Hash
	next := &Wallet{
		UserID:        w.UserID,
		Balance:       entry.ResultingBalance,
		Currency:      w.Currency,
		Version:       entry.WalletVersion,
		LastEntryHash: &hash,
		CreatedAt:     w.CreatedAt,
		UpdatedAt:     now,
	}
	return next, entry
}

// ValidIdentifier reports whether s is usable as a user or entry id.
func ValidIdentifier(s string) bool {
	return identifierRe.MatchString(s)
}

// ValidCurrency reports whether s is a three-letter uppercase currency code.
func ValidCurrency(s string) bool {
	return currencyRe.MatchString(s)
}
