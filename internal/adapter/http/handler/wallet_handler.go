package handler

import (
	"pocket-ledger/internal/adapter/http/dto"
	"pocket-ledger/internal/adapter/http/middleware"
	"pocket-ledger/internal/core/ports"
	"pocket-ledger/pkg/apperror"
	"pocket-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

const defaultPageSize = 20

// WalletHandler handles wallet and ledger endpoints.
type WalletHandler struct {
	ledgerSvc ports.LedgerService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(ledgerSvc ports.LedgerService) *WalletHandler {
	return &WalletHandler{ledgerSvc: ledgerSvc}
}

// CreateWallet handles POST /wallet.
func (h *WalletHandler) CreateWallet(c *gin.Context) {
	var req dto.CreateWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)
	if !middleware.AuthorizeUser(c, req.UserID) {
		return
	}

	wallet, err := h.ledgerSvc.CreateWallet(c.Request.Context(), req.UserID, req.Currency)
	if err != nil {
		response.Error(c, err)
		return
	}

	middleware.SetAuditSubject(c, wallet.UserID, wallet.UserID)
	response.Created(c, dto.NewWalletResponse(wallet))
}

// GetBalance handles GET /wallet/:userId.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	userID := c.Param("userId")
	if !middleware.AuthorizeUser(c, userID) {
		return
	}

	bal, err := h.ledgerSvc.GetBalance(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.BalanceResponse{
		Balance:  bal.Balance,
		Currency: bal.Currency,
		Version:  bal.Version,
	})
}

// ApplyDelta handles POST /wallet/apply.
func (h *WalletHandler) ApplyDelta(c *gin.Context) {
	var req dto.ApplyDeltaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)
	if !middleware.AuthorizeUser(c, req.UserID) {
		return
	}

	result, err := h.ledgerSvc.ApplyDelta(c.Request.Context(), req.ToPort())
	if err != nil {
		response.Error(c, err)
		return
	}

	middleware.SetAuditSubject(c, req.UserID, result.EntryID)
	response.OK(c, dto.ApplyDeltaResponse{
		Balance:  result.Balance,
		Version:  result.Version,
		EntryID:  result.EntryID,
		Replayed: result.Replayed,
	})
}

// ListEntries handles GET /wallet/:userId/entries.
func (h *WalletHandler) ListEntries(c *gin.Context) {
	userID := c.Param("userId")
	if !middleware.AuthorizeUser(c, userID) {
		return
	}

	var q dto.EntryListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize == 0 {
		q.PageSize = defaultPageSize
	}

	entries, total, err := h.ledgerSvc.ListEntries(c.Request.Context(), ports.EntryListParams{
		UserID:   userID,
		Page:     q.Page,
		PageSize: q.PageSize,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.NewEntryListResponse(entries, total, q.Page, q.PageSize))
}

// VerifyChain handles GET /wallet/:userId/verify.
func (h *WalletHandler) VerifyChain(c *gin.Context) {
	userID := c.Param("userId")
	if !middleware.AuthorizeUser(c, userID) {
		return
	}

	result, err := h.ledgerSvc.VerifyChain(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.ChainResponse{
		UserID:         userID,
		Valid:          result.Valid,
		EntriesChecked: result.EntriesChecked,
		BrokenAt:       result.BrokenAt,
	})
}
