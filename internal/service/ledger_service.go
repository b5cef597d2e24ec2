package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"pocket-ledger/internal/core/domain"
	"pocket-ledger/internal/core/ports"
	"pocket-ledger/internal/metrics"
	"pocket-ledger/pkg/apperror"
	"pocket-ledger/pkg/retrier"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultIdempotencyTTL = 24 * time.Hour
	defaultPageSize       = 20
	maxPageSize           = 100
)

// LedgerOptions tunes the ledger service.
type LedgerOptions struct {
	EnforceNonNegative bool
	MaxRetries         int
	BackoffInitial     time.Duration
	BackoffMax         time.Duration
	IdempotencyTTL     time.Duration
	LockBackend        string // metrics label only
}

// LedgerServiceImpl implements ports.LedgerService.
type LedgerServiceImpl struct {
	walletRepo ports.WalletRepository
	entryRepo  ports.LedgerEntryRepository
	idempCache ports.IdempotencyCache // optional
	locker     ports.UserLocker       // optional
	retrier    *retrier.Retrier
	opts       LedgerOptions
	now        func() time.Time
	log        zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl. idempCache and locker may be nil.
func NewLedgerService(
	walletRepo ports.WalletRepository,
	entryRepo ports.LedgerEntryRepository,
	idempCache ports.IdempotencyCache,
	locker ports.UserLocker,
	opts LedgerOptions,
	log zerolog.Logger,
) *LedgerServiceImpl {
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = defaultIdempotencyTTL
	}

	s := &LedgerServiceImpl{
		walletRepo: walletRepo,
		entryRepo:  entryRepo,
		idempCache: idempCache,
		locker:     locker,
		opts:       opts,
		now:        func() time.Time { return time.Now().UTC() },
		log:        log,
	}

	retryOpts := []retrier.Option{
		retrier.WithMaxRetries(opts.MaxRetries),
		retrier.WithRetryIf(isConflict),
		retrier.WithOnRetry(func(attempt int, err error) {
			metrics.ApplyRetries.Inc()
			s.log.Debug().Err(err).Int("attempt", attempt).Msg("retrying apply after conflict")
		}),
	}
	if opts.BackoffInitial > 0 {
		retryOpts = append(retryOpts, retrier.WithInitialInterval(opts.BackoffInitial))
	}
	if opts.BackoffMax > 0 {
		retryOpts = append(retryOpts, retrier.WithMaxInterval(opts.BackoffMax))
	}
	s.retrier = retrier.New(retryOpts...)

	return s
}

func isConflict(err error) bool {
	return errors.Is(err, domain.ErrVersionConflict) || errors.Is(err, domain.ErrDuplicateEntry)
}

// CreateWallet opens an empty wallet for userID.
func (s *LedgerServiceImpl) CreateWallet(ctx context.Context, userID, currency string) (*domain.Wallet, error) {
	if !domain.ValidIdentifier(userID) {
		return nil, apperror.Validation("invalid user_id")
	}
	if !domain.ValidCurrency(currency) {
		return nil, apperror.Validation("currency must be a 3-letter uppercase code")
	}

	wallet := domain.NewWallet(userID, currency, s.now())
	if err := s.walletRepo.Create(ctx, wallet); err != nil {
		if errors.Is(err, domain.ErrWalletExists) {
			return nil, apperror.ErrAlreadyExists("wallet")
		}
		return nil, storeError(ctx, "create wallet", err)
	}

	metrics.WalletsCreated.Inc()
	s.log.Info().
		Str("user_id", userID).
		Str("currency", currency).
		Msg("wallet created")

	return wallet, nil
}

// GetBalance returns the current balance and version of a wallet.
func (s *LedgerServiceImpl) GetBalance(ctx context.Context, userID string) (*ports.Balance, error) {
	wallet, err := s.loadWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &ports.Balance{
		Balance:  wallet.Balance,
		Currency: wallet.Currency,
		Version:  wallet.Version,
	}, nil
}

// ApplyDelta applies a signed delta exactly once per entry id.
//
// Each attempt first looks the entry id up (cache, then store), then reads
// the wallet and commits a write conditioned on the version it read. Lost
// races are retried with backoff until the budget is spent.
func (s *LedgerServiceImpl) ApplyDelta(ctx context.Context, req ports.ApplyDeltaRequest) (*ports.ApplyDeltaResult, error) {
	if err := validateApply(&req); err != nil {
		metrics.ApplyTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, err
	}
	if req.EntryID == "" {
		req.EntryID = uuid.NewString()
	}

	enforce := s.opts.EnforceNonNegative
	if req.EnforceNonNegative != nil {
		enforce = *req.EnforceNonNegative
	}

	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, req.UserID)
		switch {
		case err == nil:
			defer unlock()
		case ctx.Err() != nil:
			return nil, apperror.ErrCanceled(ctx.Err())
		default:
			metrics.LockFailures.WithLabelValues(s.opts.LockBackend).Inc()
			s.log.Warn().Err(err).Str("user_id", req.UserID).Msg("user lock unavailable, applying without it")
		}
	}

	result, err := retrier.DoWithData(ctx, s.retrier, func(ctx context.Context) (*ports.ApplyDeltaResult, error) {
		return s.attemptApply(ctx, req, enforce)
	})
	if err != nil {
		err = s.applyError(ctx, req, err)
		s.recordOutcome(err)
		return nil, err
	}

	if result.Replayed {
		metrics.ApplyTotal.WithLabelValues(metrics.OutcomeReplayed).Inc()
		s.log.Info().
			Str("user_id", req.UserID).
			Str("entry_id", result.EntryID).
			Msg("ledger entry replayed")
	} else {
		metrics.ApplyTotal.WithLabelValues(metrics.OutcomeApplied).Inc()
		s.log.Info().
			Str("user_id", req.UserID).
			Str("entry_id", result.EntryID).
			Str("delta", req.Delta.String()).
			Str("balance", result.Balance.String()).
			Int64("version", result.Version).
			Msg("ledger entry applied")
	}
	return result, nil
}

func (s *LedgerServiceImpl) attemptApply(ctx context.Context, req ports.ApplyDeltaRequest, enforce bool) (*ports.ApplyDeltaResult, error) {
	// Replay check
	prior, err := s.findEntry(ctx, req.EntryID)
	if err != nil {
		return nil, err
	}
	if prior != nil {
		if !prior.Matches(req.UserID, req.Delta) {
			return nil, apperror.ErrIdempotencyKeyReuse()
		}
		return &ports.ApplyDeltaResult{
			EntryID:  prior.EntryID,
			Balance:  prior.ResultingBalance,
			Version:  prior.WalletVersion,
			Replayed: true,
		}, nil
	}

	wallet, err := s.walletRepo.GetByUserID(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}

	// Business rule: non-negative balance for debits
	if !wallet.Permits(req.Delta, enforce) {
		return nil, apperror.ErrInsufficientFunds()
	}

	next, entry := wallet.Next(req.EntryID, req.Delta, req.Reason, s.now())
	if err := s.walletRepo.ApplyVersioned(ctx, next, wallet.Version, entry); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			metrics.VersionConflicts.Inc()
		}
		return nil, err
	}

	s.cacheEntry(ctx, entry)

	return &ports.ApplyDeltaResult{
		EntryID: entry.EntryID,
		Balance: next.Balance,
		Version: next.Version,
	}, nil
}

// findEntry checks the cache (best effort) and then the store.
func (s *LedgerServiceImpl) findEntry(ctx context.Context, entryID string) (*domain.LedgerEntry, error) {
	key := domain.BuildIdempotencyKey(entryID)

	if s.idempCache != nil {
		cached, err := s.idempCache.Get(ctx, key)
		if err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("redis idempotency check failed, falling through to store")
		}
		if cached != nil {
			var e domain.LedgerEntry
			if err := json.Unmarshal(cached, &e); err == nil {
				return &e, nil
			}
			s.log.Warn().Str("key", key).Msg("discarding unreadable cached entry")
		}
	}

	e, err := s.entryRepo.GetByEntryID(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return e, nil
}

func (s *LedgerServiceImpl) cacheEntry(ctx context.Context, entry *domain.LedgerEntry) {
	if s.idempCache == nil {
		return
	}
	key := domain.BuildIdempotencyKey(entry.EntryID)
	body, err := json.Marshal(entry)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("failed to marshal entry for cache")
		return
	}
	// The entry is committed; a cancelled request must not skip the cache write.
	if err := s.idempCache.Set(context.WithoutCancel(ctx), key, body, s.opts.IdempotencyTTL); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("failed to cache idempotency in redis")
	}
}

// applyError maps whatever ended the retry loop onto the public taxonomy.
func (s *LedgerServiceImpl) applyError(ctx context.Context, req ports.ApplyDeltaRequest, err error) error {
	if isConflict(err) {
		s.log.Warn().
			Str("user_id", req.UserID).
			Str("entry_id", req.EntryID).
			Int("max_retries", s.retrier.MaxRetries()).
			Msg("apply gave up after repeated conflicts")
		return apperror.ErrContention(err)
	}
	return storeError(ctx, "apply delta", err)
}

func (s *LedgerServiceImpl) recordOutcome(err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		metrics.ApplyTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return
	}
	switch appErr.Code {
	case apperror.CodeInsufficientFunds:
		metrics.ApplyTotal.WithLabelValues(metrics.OutcomeInsufficientFunds).Inc()
	case apperror.CodeContention:
		metrics.ApplyTotal.WithLabelValues(metrics.OutcomeContention).Inc()
	case apperror.CodeNotFound, apperror.CodeIdempotencyKeyReuse:
		metrics.ApplyTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
	default:
		metrics.ApplyTotal.WithLabelValues(metrics.OutcomeError).Inc()
	}
}

// ListEntries returns a newest-first page of a wallet's entries.
func (s *LedgerServiceImpl) ListEntries(ctx context.Context, params ports.EntryListParams) ([]domain.LedgerEntry, int64, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	switch {
	case params.PageSize == 0:
		params.PageSize = defaultPageSize
	case params.PageSize < 0 || params.PageSize > maxPageSize:
		return nil, 0, apperror.Validation(fmt.Sprintf("page_size must be between 1 and %d", maxPageSize))
	}

	if _, err := s.loadWallet(ctx, params.UserID); err != nil {
		return nil, 0, err
	}

	entries, total, err := s.entryRepo.ListByUserID(ctx, params)
	if err != nil {
		return nil, 0, storeError(ctx, "list entries", err)
	}
	return entries, total, nil
}

// VerifyChain recomputes the entry hash chain up to the wallet's current version.
func (s *LedgerServiceImpl) VerifyChain(ctx context.Context, userID string) (*domain.ChainResult, error) {
	wallet, err := s.loadWallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	entries, err := s.entryRepo.ListChain(ctx, userID)
	if err != nil {
		return nil, storeError(ctx, "list chain", err)
	}

	// Entries committed after the wallet read are not covered by its head hash.
	n := len(entries)
	for n > 0 && entries[n-1].WalletVersion > wallet.Version {
		n--
	}

	result := domain.VerifyChain(entries[:n], wallet.LastEntryHash)
	if !result.Valid {
		s.log.Error().
			Str("user_id", userID).
			Str("broken_at", result.BrokenAt).
			Int("entries_checked", result.EntriesChecked).
			Msg("ledger hash chain verification failed")
	}
	return &result, nil
}

func (s *LedgerServiceImpl) loadWallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	if !domain.ValidIdentifier(userID) {
		return nil, apperror.Validation("invalid user_id")
	}
	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, storeError(ctx, "get wallet", err)
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}
	return wallet, nil
}

func validateApply(req *ports.ApplyDeltaRequest) error {
	if !domain.ValidIdentifier(req.UserID) {
		return apperror.Validation("invalid user_id")
	}
	if reason := domain.ValidateDelta(req.Delta); reason != "" {
		return apperror.ErrInvalidDelta(reason)
	}
	if req.EntryID != "" && !domain.ValidIdentifier(req.EntryID) {
		return apperror.Validation("invalid entry_id")
	}
	if utf8.RuneCountInString(req.Reason) > domain.MaxReasonLength {
		return apperror.Validation(fmt.Sprintf("reason exceeds %d characters", domain.MaxReasonLength))
	}
	return nil
}

// storeError passes AppErrors through and classifies everything else as
// cancellation or an unavailable store.
func storeError(ctx context.Context, op string, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return apperror.ErrCanceled(err)
	}
	return apperror.ErrStoreUnavailable(fmt.Errorf("%s: %w", op, err))
}
