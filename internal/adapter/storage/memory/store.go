// Package memory holds in-process storage used in single-instance mode and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"pocket-ledger/internal/core/domain"
	"pocket-ledger/internal/core/ports"
)

// Store implements ports.WalletRepository, ports.LedgerEntryRepository and
// ports.AuditRepository. Returned values are copies.
type Store struct {
	mu      sync.RWMutex
	wallets map[string]domain.Wallet
	entries map[string]domain.LedgerEntry
	byUser  map[string][]string // entry ids in version order
	audit   []domain.AuditLog
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		wallets: make(map[string]domain.Wallet),
		entries: make(map[string]domain.LedgerEntry),
		byUser:  make(map[string][]string),
	}
}

func (s *Store) Create(ctx context.Context, w *domain.Wallet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.wallets[w.UserID]; ok {
		return domain.ErrWalletExists
	}
	s.wallets[w.UserID] = copyWallet(w)
	return nil
}

func (s *Store) GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.wallets[userID]
	if !ok {
		return nil, nil
	}
	out := copyWallet(&w)
	return &out, nil
}

// ApplyVersioned swaps the wallet when its version still matches and records entry.
func (s *Store) ApplyVersioned(ctx context.Context, next *domain.Wallet, expectedVersion int64, entry *domain.LedgerEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.wallets[next.UserID]
	if !ok || cur.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	if _, dup := s.entries[entry.EntryID]; dup {
		return domain.ErrDuplicateEntry
	}

	s.wallets[next.UserID] = copyWallet(next)
	s.entries[entry.EntryID] = copyEntry(entry)
	s.byUser[entry.UserID] = append(s.byUser[entry.UserID], entry.EntryID)
	return nil
}

func (s *Store) GetByEntryID(ctx context.Context, entryID string) (*domain.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[entryID]
	if !ok {
		return nil, nil
	}
	out := copyEntry(&e)
	return &out, nil
}

// ListByUserID returns one newest-first page and the total count.
func (s *Store) ListByUserID(ctx context.Context, params ports.EntryListParams) ([]domain.LedgerEntry, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byUser[params.UserID]
	total := int64(len(ids))

	start := params.Offset()
	if start >= len(ids) {
		return nil, total, nil
	}
	end := start + params.PageSize
	if end > len(ids) {
		end = len(ids)
	}

	page := make([]domain.LedgerEntry, 0, end-start)
	for i := start; i < end; i++ {
		page = append(page, copyEntry(ptr(s.entries[ids[len(ids)-1-i]])))
	}
	return page, total, nil
}

func (s *Store) ListChain(ctx context.Context, userID string) ([]domain.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byUser[userID]
	chain := make([]domain.LedgerEntry, 0, len(ids))
	for _, id := range ids {
		chain = append(chain, copyEntry(ptr(s.entries[id])))
	}
	sort.SliceStable(chain, func(i, j int) bool {
		return chain[i].WalletVersion < chain[j].WalletVersion
	})
	return chain, nil
}

// Ping reports whether the store can serve requests.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// AuditRepository returns an audit sink backed by this store.
func (s *Store) AuditRepository() ports.AuditRepository {
	return auditSink{s}
}

// AuditLogs returns a copy of every recorded audit log.
func (s *Store) AuditLogs() []domain.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.AuditLog(nil), s.audit...)
}

type auditSink struct{ s *Store }

func (a auditSink) Create(ctx context.Context, log *domain.AuditLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	a.s.audit = append(a.s.audit, *log)
	return nil
}

func ptr[T any](v T) *T { return &v }

func copyWallet(w *domain.Wallet) domain.Wallet {
	out := *w
	if w.LastEntryHash != nil {
		out.LastEntryHash = ptr(*w.LastEntryHash)
	}
	return out
}

func copyEntry(e *domain.LedgerEntry) domain.LedgerEntry {
	out := *e
	if e.PrevHash != nil {
		out.PrevHash = ptr(*e.PrevHash)
	}
	return out
}
