package service

import (
	"context"
	"time"

	"pocket-ledger/internal/core/domain"
	"pocket-ledger/internal/core/ports"
	"pocket-ledger/internal/metrics"
	"pocket-ledger/pkg/workerpool"

	"github.com/rs/zerolog"
)

const auditWriteTimeout = 5 * time.Second

// AuditServiceImpl writes audit logs on a bounded worker pool.
type AuditServiceImpl struct {
	repo ports.AuditRepository
	pool *workerpool.Pool
	log  zerolog.Logger
}

// NewAuditService creates a new audit service.
// If repo is nil, audit logs are only written to the logger.
func NewAuditService(repo ports.AuditRepository, workers int, log zerolog.Logger) *AuditServiceImpl {
	s := &AuditServiceImpl{repo: repo, log: log}
	if repo != nil {
		s.pool = workerpool.NewPool(workers, workerpool.DefaultQueueSize, func(depth int) {
			metrics.AuditQueueDepth.Set(float64(depth))
		})
	}
	return s
}

// Log records an audit entry without blocking. A full queue drops the entry.
func (s *AuditServiceImpl) Log(ctx context.Context, entry *domain.AuditLog) {
	s.log.Info().
		Str("action", string(entry.Action)).
		Str("resource_type", entry.ResourceType).
		Str("resource_id", entry.ResourceID).
		Str("ip", entry.IPAddress).
		Msg("audit")

	if s.pool == nil {
		return
	}

	// The request may finish before the job runs.
	jobCtx := context.WithoutCancel(ctx)
	err := s.pool.TrySubmit(func() {
		ctx, cancel := context.WithTimeout(jobCtx, auditWriteTimeout)
		defer cancel()
		if err := s.repo.Create(ctx, entry); err != nil {
			s.log.Warn().Err(err).Str("action", string(entry.Action)).Msg("failed to persist audit log")
		}
	})
	if err != nil {
		metrics.AuditDropped.Inc()
		s.log.Warn().Err(err).Str("action", string(entry.Action)).Msg("audit log dropped")
	}
}

// Stop drains queued audit writes.
func (s *AuditServiceImpl) Stop() {
	if s.pool != nil {
		s.pool.Stop()
	}
}
