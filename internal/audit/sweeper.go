package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitdeck/backend/internal/config"
	"github.com/rabbitdeck/backend/internal/metrics"
	"github.com/rabbitdeck/backend/internal/repository"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// sweepBatchSize rows deleted per transaction. Fixed independently of the
	// write-path batch size so cleanup tuning never touches the hot path.
	sweepBatchSize = 1000

	sweepLockKey = "rabbitdeck:audit:retention:lock"
	sweepLockTTL = 10 * time.Minute
)

// Sweeper periodically deletes audit records older than the retention
// horizon, in bounded batches so no delete holds a long transaction. A sweep
// is idempotent: it recomputes the cutoff and re-queries every cycle, so an
// aborted run simply leaves work for the next trigger.
type Sweeper struct {
	cfg     config.RetentionConfig
	repo    repository.AuditRecordRepository
	redis   *redis.Client // optional; single-flight lock across replicas
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewSweeper creates the retention sweeper. The redis client may be nil, in
// which case sweeps run unguarded (fine for a single replica; concurrent
// sweeps only duplicate idempotent deletes).
func NewSweeper(
	cfg config.RetentionConfig,
	repo repository.AuditRecordRepository,
	redisClient *redis.Client,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Sweeper {
	return &Sweeper{
		cfg:     cfg,
		repo:    repo,
		redis:   redisClient,
		logger:  logger,
		metrics: m,
	}
}

// Run executes one full sweep cycle and reports how many records were
// deleted. A batch error aborts the cycle; the caller (cron or the manual
// trigger) just retries later.
func (s *Sweeper) Run(ctx context.Context) (int64, error) {
	if s.redis != nil {
		locked, err := s.acquireLock(ctx)
		if err != nil {
			s.logger.Warn("Retention lock check failed, skipping sweep", zap.Error(err))
			return 0, nil
		}
		if !locked {
			s.logger.Debug("Retention sweep already running elsewhere, skipping")
			return 0, nil
		}
		defer s.releaseLock(ctx)
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -s.cfg.Days)
	start := time.Now()

	var total int64
	for {
		deleted, err := s.repo.DeleteOlderThan(ctx, cutoff, sweepBatchSize)
		total += deleted
		if err != nil {
			if s.metrics != nil {
				s.metrics.RetentionSweepFailures.Inc()
			}
			s.logger.Error("Retention sweep aborted",
				zap.Error(err),
				zap.Int64("deleted_before_abort", total),
				zap.Time("cutoff", cutoff),
			)
			return total, fmt.Errorf("retention sweep: %w", err)
		}
		if deleted < sweepBatchSize {
			break
		}
	}

	if s.metrics != nil {
		s.metrics.RetentionDeletedRows.Add(float64(total))
		s.metrics.RetentionSweepDuration.Observe(time.Since(start).Seconds())
	}

	if total > 0 {
		s.logger.Info("Retention sweep completed",
			zap.Int64("deleted", total),
			zap.Time("cutoff", cutoff),
			zap.Duration("took", time.Since(start)),
		)
	}
	return total, nil
}

func (s *Sweeper) acquireLock(ctx context.Context) (bool, error) {
	return s.redis.SetNX(ctx, sweepLockKey, "1", sweepLockTTL).Result()
}

func (s *Sweeper) releaseLock(ctx context.Context) {
	if err := s.redis.Del(ctx, sweepLockKey).Err(); err != nil {
		s.logger.Warn("Failed to release retention lock", zap.Error(err))
	}
}
