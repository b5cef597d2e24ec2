package domain

import (
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/blake2b"
)

const (
	// MaxDeltaScale is the number of fractional digits a delta may carry.
	MaxDeltaScale = 4
	// MaxReasonLength bounds the free-form reason tag.
	MaxReasonLength = 255
)

// maxDeltaMagnitude keeps deltas inside NUMERIC(20,4).
var maxDeltaMagnitude = decimal.New(1, 16)

// Exponent bounds checked before any rescaling arithmetic. Inputs such as
// 1e-20000000 would otherwise make Round and Cmp build enormous big.Ints.
const (
	minDeltaExponent = -18
	maxDeltaExponent = 16
)

// LedgerEntry is an append-only record of one applied delta.
type LedgerEntry struct {
	EntryID          string          `json:"entry_id"`
	UserID           string          `json:"user_id"`
	Delta            decimal.Decimal `json:"delta"`
	Reason           string          `json:"reason"`
	ResultingBalance decimal.Decimal `json:"resulting_balance"`
	WalletVersion    int64           `json:"wallet_version"`
	PrevHash         *string         `json:"prev_hash,omitempty"`
	Hash             string          `json:"hash"`
	CreatedAt        time.Time       `json:"created_at"`
}

// ComputeHash returns the chain hash of e over its previous hash and payload.
func (e *LedgerEntry) ComputeHash() string {
	prev := ""
	if e.PrevHash != nil {
		prev = *e.PrevHash
	}
	payload := strings.Join([]string{
		prev,
		e.EntryID,
		e.UserID,
		e.Delta.String(),
		e.ResultingBalance.String(),
		strconv.FormatInt(e.WalletVersion, 10),
	}, "|")
	sum := blake2b.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// Matches reports whether a replayed request describes the same operation as e.
func (e *LedgerEntry) Matches(userID string, delta decimal.Decimal) bool {
	return e.UserID == userID && e.Delta.Equal(delta)
}

// ValidateDelta returns a short reason when delta cannot be applied, or "".
func ValidateDelta(delta decimal.Decimal) string {
	switch {
	case delta.IsZero():
		return "must be non-zero"
	case delta.Exponent() < minDeltaExponent || delta.Exponent() > maxDeltaExponent:
		return "out of range"
	case !delta.Equal(delta.Round(MaxDeltaScale)):
		return "at most 4 fractional digits"
	case delta.Abs().GreaterThanOrEqual(maxDeltaMagnitude):
		return "magnitude too large"
	}
	return ""
}

// ChainResult summarises a hash chain verification.
type ChainResult struct {
	Valid          bool   `json:"valid"`
	EntriesChecked int    `json:"entries_checked"`
	BrokenAt       string `json:"broken_at,omitempty"`
}

// VerifyChain walks entries oldest-first, recomputing every hash and
// checking each link, then compares the final hash with head.
func VerifyChain(entries []LedgerEntry, head *string) ChainResult {
	var prev *string
	for i := range entries {
		e := &entries[i]
		if !sameHash(prev, e.PrevHash) || e.ComputeHash() != e.Hash {
			return ChainResult{Valid: false, EntriesChecked: i + 1, BrokenAt: e.EntryID}
		}
		h := e.Hash
		prev = &h
	}
	if !sameHash(prev, head) {
		return ChainResult{Valid: false, EntriesChecked: len(entries)}
	}
	return ChainResult{Valid: true, EntriesChecked: len(entries)}
}

func sameHash(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
