// Package audit implements the write-operation audit subsystem: the
// interceptor that wraps every mutating cluster call, the recorder that
// persists outcomes synchronously or through a batched background queue, and
// the retention sweeper that purges expired records. Audit data is
// observability for administrators, not a correctness-critical ledger: a
// persistence failure is logged and counted but never changes the outcome of
// the operation that triggered it.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/rabbitdeck/backend/internal/config"
	"github.com/rabbitdeck/backend/internal/domain"
	"github.com/rabbitdeck/backend/internal/metrics"
	"github.com/rabbitdeck/backend/internal/repository"
	"go.uber.org/zap"
)

// flushInterval caps how long an async record waits before a short batch is
// flushed anyway.
const flushInterval = time.Second

// minQueueCapacity floor for the async queue regardless of batch size.
const minQueueCapacity = 1024

// Recorder persists completed audit records. Record is fire-and-forget: it
// never returns an error because audit failures must not reach the business
// operation's caller.
type Recorder interface {
	// Record hands over one completed record for persistence
	Record(ctx context.Context, record *domain.AuditRecord)

	// Enabled reports whether auditing is active. The interceptor checks
	// this before building a record so a disabled recorder costs nothing.
	Enabled() bool

	// Close flushes pending records (async mode) and releases the worker
	Close(ctx context.Context) error
}

// NewRecorder selects the recorder implementation from configuration: a no-op
// when auditing is disabled, inline persistence in synchronous mode, or a
// single background worker draining a bounded queue in asynchronous mode.
func NewRecorder(
	cfg *config.AuditConfig,
	repo repository.AuditRecordRepository,
	logger *zap.Logger,
	m *metrics.Metrics,
) Recorder {
	if !cfg.Enabled {
		return &nopRecorder{}
	}
	if !cfg.AsyncProcessing {
		return &syncRecorder{repo: repo, logger: logger, metrics: m}
	}

	capacity := cfg.BatchSize * 4
	if capacity < minQueueCapacity {
		capacity = minQueueCapacity
	}
	r := &asyncRecorder{
		repo:      repo,
		logger:    logger,
		metrics:   m,
		batchSize: cfg.BatchSize,
		queue:     make(chan *domain.AuditRecord, capacity),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go r.run()
	return r
}

// nopRecorder used when auditing is disabled
type nopRecorder struct{}

func (r *nopRecorder) Record(context.Context, *domain.AuditRecord) {}
func (r *nopRecorder) Enabled() bool                               { return false }
func (r *nopRecorder) Close(context.Context) error                 { return nil }

// syncRecorder persists inline on the caller's goroutine. The record is
// durable before the write operation's HTTP response goes out, at the cost of
// one extra insert on every mutating request.
type syncRecorder struct {
	repo    repository.AuditRecordRepository
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func (r *syncRecorder) Record(ctx context.Context, record *domain.AuditRecord) {
	if err := r.repo.Create(ctx, record); err != nil {
		r.logger.Error("Failed to persist audit record",
			zap.Error(err),
			zap.String("operation_type", string(record.OperationType)),
			zap.String("resource_name", record.ResourceName),
		)
		if r.metrics != nil {
			r.metrics.AuditWriteFailures.Inc()
		}
		return
	}
	if r.metrics != nil {
		r.metrics.AuditRecordsWritten.WithLabelValues("sync", string(record.Status)).Inc()
	}
}

func (r *syncRecorder) Enabled() bool { return true }

func (r *syncRecorder) Close(context.Context) error { return nil }

// asyncRecorder enqueues records and returns immediately; a single worker
// drains the queue and persists in batches. Durability is eventual: records
// still queued at a crash are lost, which the retention contract accepts.
type asyncRecorder struct {
	repo      repository.AuditRecordRepository
	logger    *zap.Logger
	metrics   *metrics.Metrics
	batchSize int

	queue     chan *domain.AuditRecord
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Record enqueues without blocking. A full queue drops the record with a
// warning: audit backpressure must never stall the triggering write request.
func (r *asyncRecorder) Record(_ context.Context, record *domain.AuditRecord) {
	select {
	case r.queue <- record:
		if r.metrics != nil {
			r.metrics.AuditQueueDepth.Set(float64(len(r.queue)))
		}
	default:
		r.logger.Warn("Audit queue full, dropping record",
			zap.String("operation_type", string(record.OperationType)),
			zap.String("resource_name", record.ResourceName),
		)
		if r.metrics != nil {
			r.metrics.AuditQueueDropped.Inc()
		}
	}
}

func (r *asyncRecorder) Enabled() bool { return true }

// Close stops the worker and waits for the final drain, bounded by ctx.
func (r *asyncRecorder) Close(ctx context.Context) error {
	r.closeOnce.Do(func() { close(r.stop) })
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the sole consumer of the queue. Batches flush when full or on the
// ticker, so a quiet period never strands records.
func (r *asyncRecorder) run() {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*domain.AuditRecord, 0, r.batchSize)

	for {
		select {
		case record := <-r.queue:
			batch = append(batch, record)
			if len(batch) >= r.batchSize {
				batch = r.flush(batch)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				batch = r.flush(batch)
			}
		case <-r.stop:
			// best-effort drain before shutdown
			for {
				select {
				case record := <-r.queue:
					batch = append(batch, record)
					if len(batch) >= r.batchSize {
						batch = r.flush(batch)
					}
				default:
					if len(batch) > 0 {
						r.flush(batch)
					}
					close(r.done)
					return
				}
			}
		}
	}
}

// flush persists the batch in one insert and returns the reset slice.
func (r *asyncRecorder) flush(batch []*domain.AuditRecord) []*domain.AuditRecord {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := r.repo.CreateBatch(ctx, batch); err != nil {
		r.logger.Error("Failed to persist audit batch",
			zap.Error(err),
			zap.Int("batch_size", len(batch)),
		)
		if r.metrics != nil {
			r.metrics.AuditWriteFailures.Inc()
		}
	} else if r.metrics != nil {
		for _, record := range batch {
			r.metrics.AuditRecordsWritten.WithLabelValues("async", string(record.Status)).Inc()
		}
	}

	if r.metrics != nil {
		r.metrics.AuditQueueDepth.Set(float64(len(r.queue)))
	}
	return batch[:0]
}
