package dto

import (
	"time"

	"pocket-ledger/internal/core/domain"
	"pocket-ledger/internal/core/ports"

	"github.com/shopspring/decimal"
)

// CreateWalletRequest is the request body for wallet creation.
type CreateWalletRequest struct {
	UserID   string `json:"userId" binding:"required,max=128,safe_id"`
	Currency string `json:"currency" binding:"required,currency"`
}

// ApplyDeltaRequest is the request body for POST /wallet/apply.
// Delta accepts a JSON string or number; strings avoid float rounding.
type ApplyDeltaRequest struct {
	UserID             string           `json:"userId" binding:"required,max=128,safe_id"`
	Delta              *decimal.Decimal `json:"delta" binding:"required"`
	EntryID            string           `json:"entryId" binding:"omitempty,max=128,safe_id"`
	Reason             string           `json:"reason" binding:"max=255" sanitize:"trim"`
	EnforceNonNegative *bool            `json:"enforceNonNegative,omitempty"`
}

// ToPort converts the body into the service request.
func (r ApplyDeltaRequest) ToPort() ports.ApplyDeltaRequest {
	req := ports.ApplyDeltaRequest{
		UserID:             r.UserID,
		EntryID:            r.EntryID,
		Reason:             r.Reason,
		EnforceNonNegative: r.EnforceNonNegative,
	}
	if r.Delta != nil {
		req.Delta = *r.Delta
	}
	return req
}

// EntryListQuery binds GET /wallet/:userId/entries query parameters.
type EntryListQuery struct {
	Page     int `form:"page" binding:"omitempty,min=1"`
	PageSize int `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// WalletResponse is returned on wallet creation.
type WalletResponse struct {
	UserID   string          `json:"userId"`
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
	Version  int64           `json:"version"`
}

// NewWalletResponse maps a domain wallet.
func NewWalletResponse(w *domain.Wallet) WalletResponse {
	return WalletResponse{
		UserID:   w.UserID,
		Balance:  w.Balance,
		Currency: w.Currency,
		Version:  w.Version,
	}
}

// BalanceResponse is the response for a balance query.
type BalanceResponse struct {
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
	Version  int64           `json:"version"`
}

// ApplyDeltaResponse is the response for an applied or replayed delta.
type ApplyDeltaResponse struct {
	Balance  decimal.Decimal `json:"balance"`
	Version  int64           `json:"version"`
	EntryID  string          `json:"entryId"`
	Replayed bool            `json:"replayed"`
}

// EntryResponse is one ledger entry in a listing.
type EntryResponse struct {
	EntryID          string          `json:"entryId"`
	Delta            decimal.Decimal `json:"delta"`
	Reason           string          `json:"reason,omitempty"`
	ResultingBalance decimal.Decimal `json:"resultingBalance"`
	WalletVersion    int64           `json:"walletVersion"`
	Hash             string          `json:"hash"`
	CreatedAt        string          `json:"createdAt"`
}

// EntryListResponse wraps a paginated entry list.
type EntryListResponse struct {
	Items      []EntryResponse `json:"items"`
	Total      int64           `json:"total"`
	Page       int             `json:"page"`
	PageSize   int             `json:"pageSize"`
	TotalPages int             `json:"totalPages"`
}

// NewEntryListResponse maps one page of entries.
func NewEntryListResponse(entries []domain.LedgerEntry, total int64, page, pageSize int) EntryListResponse {
	items := make([]EntryResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, EntryResponse{
			EntryID:          e.EntryID,
			Delta:            e.Delta,
			Reason:           e.Reason,
			ResultingBalance: e.ResultingBalance,
			WalletVersion:    e.WalletVersion,
			Hash:             e.Hash,
			CreatedAt:        e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	totalPages := 0
	if pageSize > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return EntryListResponse{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}
}

// ChainResponse reports a hash chain verification.
type ChainResponse struct {
	UserID         string `json:"userId"`
	Valid          bool   `json:"valid"`
	EntriesChecked int    `json:"entriesChecked"`
	BrokenAt       string `json:"brokenAt,omitempty"`
}
