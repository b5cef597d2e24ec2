package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pocket-ledger/internal/adapter/http/middleware"
	"pocket-ledger/internal/core/domain"
	"pocket-ledger/internal/core/ports"
	"pocket-ledger/internal/core/ports/mocks"
	"pocket-ledger/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newContext(method, target string, body interface{}) (*gin.Context, *httptest.ResponseRecorder) {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		_ = json.NewEncoder(&buf).Encode(b)
	}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, target, &buf)
	c.Request.Header.Set("Content-Type", "application/json")
	return c, w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data, ok := resp["data"].(map[string]interface{})
	require.True(t, ok, "response has no data: %s", w.Body.String())
	return data
}

func decodeErr(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// --- CreateWallet ---

func TestCreateWallet_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockLedger := mocks.NewMockLedgerService(ctrl)
	h := NewWalletHandler(mockLedger)

	mockLedger.EXPECT().CreateWallet(gomock.Any(), "alice", "USD").
		Return(domain.NewWallet("alice", "USD", time.Now()), nil)

	c, w := newContext(http.MethodPost, "/wallet", map[string]string{"userId": "alice", "currency": "USD"})
	h.CreateWallet(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "alice", data["userId"])
	assert.Equal(t, "0", data["balance"])
	assert.Equal(t, "USD", data["currency"])
	assert.Equal(t, float64(0), data["version"])
}

func TestCreateWallet_ValidationError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := NewWalletHandler(mocks.NewMockLedgerService(ctrl))

	for _, body := range []string{
		`{}`,
		`{"userId":"alice","currency":"usd"}`,
		`{"userId":"al ice","currency":"USD"}`,
		`not json`,
	} {
		c, w := newContext(http.MethodPost, "/wallet", body)
		h.CreateWallet(c)

		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, apperror.CodeValidation, decodeErr(t, w)["error_code"])
	}
}

func TestCreateWallet_AlreadyExists(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockLedger := mocks.NewMockLedgerService(ctrl)
	h := NewWalletHandler(mockLedger)

	mockLedger.EXPECT().CreateWallet(gomock.Any(), "alice", "USD").Return(nil, apperror.ErrAlreadyExists("wallet"))

	c, w := newContext(http.MethodPost, "/wallet", map[string]string{"userId": "alice", "currency": "USD"})
	h.CreateWallet(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, apperror.CodeAlreadyExists, decodeErr(t, w)["error_code"])
}

func TestCreateWallet_OtherIdentityForbidden(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := NewWalletHandler(mocks.NewMockLedgerService(ctrl))

	c, w := newContext(http.MethodPost, "/wallet", map[string]string{"userId": "alice", "currency": "USD"})
	c.Set(middleware.CtxUserID, "mallory")
	h.CreateWallet(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

// --- GetBalance ---

func TestGetBalance_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockLedger := mocks.NewMockLedgerService(ctrl)
	h := NewWalletHandler(mockLedger)

	mockLedger.EXPECT().GetBalance(gomock.Any(), "alice").Return(&ports.Balance{
		Balance:  decimal.RequireFromString("150.25"),
		Currency: "USD",
		Version:  2,
	}, nil)

	c, w := newContext(http.MethodGet, "/wallet/alice", nil)
	c.Params = gin.Params{{Key: "userId", Value: "alice"}}
	h.GetBalance(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "150.25", data["balance"])
	assert.Equal(t, "USD", data["currency"])
	assert.Equal(t, float64(2), data["version"])
}

func TestGetBalance_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockLedger := mocks.NewMockLedgerService(ctrl)
	h := NewWalletHandler(mockLedger)

	mockLedger.EXPECT().GetBalance(gomock.Any(), "ghost").Return(nil, apperror.ErrNotFound("wallet"))

	c, w := newContext(http.MethodGet, "/wallet/ghost", nil)
	c.Params = gin.Params{{Key: "userId", Value: "ghost"}}
	h.GetBalance(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apperror.CodeNotFound, decodeErr(t, w)["error_code"])
}

// --- ApplyDelta ---

func TestApplyDelta_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockLedger := mocks.NewMockLedgerService(ctrl)
	h := NewWalletHandler(mockLedger)

	mockLedger.EXPECT().ApplyDelta(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req ports.ApplyDeltaRequest) (*ports.ApplyDeltaResult, error) {
			assert.Equal(t, "alice", req.UserID)
			assert.True(t, req.Delta.Equal(decimal.RequireFromString("-20.5")))
			assert.Equal(t, "D", req.EntryID)
			assert.Equal(t, "groceries", req.Reason)
			require.NotNil(t, req.EnforceNonNegative)
			assert.True(t, *req.EnforceNonNegative)
			return &ports.ApplyDeltaResult{
				EntryID: "D",
				Balance: decimal.RequireFromString("29.5"),
				Version: 3,
			}, nil
		},
	)

	body := `{"userId":"alice","delta":"-20.5","entryId":"D","reason":"groceries","enforceNonNegative":true}`
	c, w := newContext(http.MethodPost, "/wallet/apply", body)
	h.ApplyDelta(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "29.5", data["balance"])
	assert.Equal(t, float64(3), data["version"])
	assert.Equal(t, "D", data["entryId"])
	assert.Equal(t, false, data["replayed"])
}

func TestApplyDelta_NumericDeltaAndOptionalFields(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockLedger := mocks.NewMockLedgerService(ctrl)
	h := NewWalletHandler(mockLedger)

	mockLedger.EXPECT().ApplyDelta(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req ports.ApplyDeltaRequest) (*ports.ApplyDeltaResult, error) {
			assert.True(t, req.Delta.Equal(decimal.NewFromInt(100)))
			assert.Empty(t, req.EntryID)
			assert.Nil(t, req.EnforceNonNegative)
			return &ports.ApplyDeltaResult{EntryID: "generated", Balance: decimal.NewFromInt(100), Version: 1}, nil
		},
	)

	c, w := newContext(http.MethodPost, "/wallet/apply", `{"userId":"alice","delta":100}`)
	h.ApplyDelta(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "generated", decodeData(t, w)["entryId"])
}

func TestApplyDelta_Replayed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockLedger := mocks.NewMockLedgerService(ctrl)
	h := NewWalletHandler(mockLedger)

	mockLedger.EXPECT().ApplyDelta(gomock.Any(), gomock.Any()).Return(&ports.ApplyDeltaResult{
		EntryID: "D", Balance: decimal.NewFromInt(50), Version: 2, Replayed: true,
	}, nil)

	c, w := newContext(http.MethodPost, "/wallet/apply", `{"userId":"alice","delta":"20","entryId":"D"}`)
	h.ApplyDelta(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, true, data["replayed"])
	assert.Equal(t, "50", data["balance"])
}

func TestApplyDelta_BindingErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := NewWalletHandler(mocks.NewMockLedgerService(ctrl))

	for _, body := range []string{
		`{"userId":"alice"}`,
		`{"delta":"5"}`,
		`{"userId":"alice","delta":"abc"}`,
		`{"userId":"alice","delta":"5","entryId":"has space"}`,
	} {
		c, w := newContext(http.MethodPost, "/wallet/apply", body)
		h.ApplyDelta(c)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestApplyDelta_ServiceErrors(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		status    int
		code      string
		retryable bool
	}{
		{"insufficient funds", apperror.ErrInsufficientFunds(), http.StatusConflict, apperror.CodeInsufficientFunds, false},
		{"contention", apperror.ErrContention(domain.ErrVersionConflict), http.StatusConflict, apperror.CodeContention, true},
		{"idempotency key reuse", apperror.ErrIdempotencyKeyReuse(), http.StatusUnprocessableEntity, apperror.CodeIdempotencyKeyReuse, false},
		{"invalid delta", apperror.ErrInvalidDelta("must be non-zero"), http.StatusBadRequest, apperror.CodeInvalidDelta, false},
		{"not found", apperror.ErrNotFound("wallet"), http.StatusNotFound, apperror.CodeNotFound, false},
		{"store unavailable", apperror.ErrStoreUnavailable(errors.New("conn refused")), http.StatusServiceUnavailable, apperror.CodeStoreUnavailable, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockLedger := mocks.NewMockLedgerService(ctrl)
			h := NewWalletHandler(mockLedger)
			mockLedger.EXPECT().ApplyDelta(gomock.Any(), gomock.Any()).Return(nil, tc.err)

			c, w := newContext(http.MethodPost, "/wallet/apply", `{"userId":"alice","delta":"-50","entryId":"C"}`)
			h.ApplyDelta(c)

			assert.Equal(t, tc.status, w.Code)
			resp := decodeErr(t, w)
			assert.Equal(t, tc.code, resp["error_code"])
			if tc.retryable {
				assert.Equal(t, true, resp["retryable"])
			} else {
				assert.Nil(t, resp["retryable"])
			}
		})
	}
}

// --- ListEntries / VerifyChain ---

func TestListEntries_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockLedger := mocks.NewMockLedgerService(ctrl)
	h := NewWalletHandler(mockLedger)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mockLedger.EXPECT().ListEntries(gomock.Any(), ports.EntryListParams{UserID: "alice", Page: 2, PageSize: 1}).
		Return([]domain.LedgerEntry{{
			EntryID:          "A",
			UserID:           "alice",
			Delta:            decimal.NewFromInt(100),
			ResultingBalance: decimal.NewFromInt(100),
			WalletVersion:    1,
			Hash:             "abc",
			CreatedAt:        at,
		}}, int64(2), nil)

	c, w := newContext(http.MethodGet, "/wallet/alice/entries?page=2&page_size=1", nil)
	c.Params = gin.Params{{Key: "userId", Value: "alice"}}
	h.ListEntries(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(2), data["total"])
	assert.Equal(t, float64(2), data["totalPages"])
	items := data["items"].([]interface{})
	require.Len(t, items, 1)
	item := items[0].(map[string]interface{})
	assert.Equal(t, "A", item["entryId"])
	assert.Equal(t, "100", item["resultingBalance"])
}

func TestListEntries_Defaults(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockLedger := mocks.NewMockLedgerService(ctrl)
	h := NewWalletHandler(mockLedger)

	mockLedger.EXPECT().ListEntries(gomock.Any(), ports.EntryListParams{UserID: "alice", Page: 1, PageSize: defaultPageSize}).
		Return(nil, int64(0), nil)

	c, w := newContext(http.MethodGet, "/wallet/alice/entries", nil)
	c.Params = gin.Params{{Key: "userId", Value: "alice"}}
	h.ListEntries(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Empty(t, data["items"])
	assert.Equal(t, float64(defaultPageSize), data["pageSize"])
}

func TestListEntries_InvalidPageSize(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := NewWalletHandler(mocks.NewMockLedgerService(ctrl))

	c, w := newContext(http.MethodGet, "/wallet/alice/entries?page_size=500", nil)
	c.Params = gin.Params{{Key: "userId", Value: "alice"}}
	h.ListEntries(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerifyChain_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockLedger := mocks.NewMockLedgerService(ctrl)
	h := NewWalletHandler(mockLedger)

	mockLedger.EXPECT().VerifyChain(gomock.Any(), "alice").
		Return(&domain.ChainResult{Valid: false, EntriesChecked: 3, BrokenAt: "B"}, nil)

	c, w := newContext(http.MethodGet, "/wallet/alice/verify", nil)
	c.Params = gin.Params{{Key: "userId", Value: "alice"}}
	h.VerifyChain(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "alice", data["userId"])
	assert.Equal(t, false, data["valid"])
	assert.Equal(t, float64(3), data["entriesChecked"])
	assert.Equal(t, "B", data["brokenAt"])
}

// --- Health Check Tests ---

func TestHealthCheck(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

	HealthCheck()(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
}

func TestHealthCheck_Degraded(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	pg := mocks.NewMockHealthChecker(ctrl)
	pg.EXPECT().Ping(gomock.Any()).Return(nil)
	pg.EXPECT().Name().Return("postgresql").AnyTimes()

	rd := ports.CheckFunc{Dependency: "redis", Fn: func(context.Context) error { return errors.New("connection refused") }}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

	HealthCheck(pg, rd)(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp struct {
		Status       string                       `json:"status"`
		Dependencies map[string]map[string]string `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "healthy", resp.Dependencies["postgresql"]["status"])
	assert.Equal(t, "unhealthy", resp.Dependencies["redis"]["status"])
	assert.Equal(t, "connection refused", resp.Dependencies["redis"]["error"])
}

// --- API docs ---

func TestAPIDocs_Page(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/swagger", nil)

	NewAPIDocs(nil).Page(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "Pocket Ledger API")
	assert.Contains(t, w.Body.String(), "/swagger/spec")
	assert.Contains(t, w.Body.String(), "persistAuthorization")
}

func TestAPIDocs_Spec(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/swagger/spec", nil)

	NewAPIDocs([]byte("openapi: 3.0.3\ninfo:\n  title: Ledger")).Spec(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/yaml", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "title: Ledger")
}

func TestAPIDocs_SpecMissing(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/swagger/spec", nil)

	NewAPIDocs(nil).Spec(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
