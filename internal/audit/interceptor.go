package audit

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rabbitdeck/backend/internal/domain"
	"go.uber.org/zap"
)

// maxErrorMessageLen bound on the persisted error message column.
const maxErrorMessageLen = 2000

// Actor is the authenticated user performing an operation. Username is
// snapshotted into the record so later renames cannot rewrite history.
type Actor struct {
	ID       uuid.UUID
	Username string
}

// ClusterRef identifies the targeted cluster, name included for the same
// snapshot reason as Actor.Username.
type ClusterRef struct {
	ID   uuid.UUID
	Name string
}

// Operation describes the mutating call being wrapped.
type Operation struct {
	Type         domain.OperationType
	ResourceType string
	ResourceName string
	Details      domain.JSONB
}

// RequestMeta best-effort request attribution, carried on the context by the
// HTTP layer.
type RequestMeta struct {
	ClientIP  string
	UserAgent string
}

type requestMetaKey struct{}

// WithRequestMeta attaches request attribution to the context.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFrom extracts request attribution, if any.
func RequestMetaFrom(ctx context.Context) (RequestMeta, bool) {
	meta, ok := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta, ok
}

// Interceptor wraps every mutating cluster operation so that exactly one
// audit record is produced per call, whatever the outcome. This is explicit
// decoration: services call Do around the underlying invocation instead of
// relying on middleware to guess the operation from the route.
type Interceptor struct {
	recorder Recorder
	logger   *zap.Logger
}

// NewInterceptor creates the interceptor
func NewInterceptor(recorder Recorder, logger *zap.Logger) *Interceptor {
	return &Interceptor{recorder: recorder, logger: logger}
}

// Do invokes fn and records its outcome. The caller sees fn's result
// unchanged: errors propagate as-is, panics re-panic after the record is
// handed off, and a failure inside the audit path itself is swallowed after
// logging. When auditing is disabled Do is a plain passthrough and no record
// is even built.
func (i *Interceptor) Do(
	ctx context.Context,
	actor Actor,
	cluster ClusterRef,
	op Operation,
	fn func() error,
) (err error) {
	if !i.recorder.Enabled() {
		return fn()
	}

	start := time.Now().UTC()

	defer func() {
		recovered := recover()
		i.handOff(ctx, i.buildRecord(ctx, actor, cluster, op, start, err, recovered))
		if recovered != nil {
			panic(recovered)
		}
	}()

	err = fn()
	return err
}

// buildRecord derives the audit record from the call outcome. Status and
// error message stay consistent: errorMessage is set exactly when the status
// is not SUCCESS.
func (i *Interceptor) buildRecord(
	ctx context.Context,
	actor Actor,
	cluster ClusterRef,
	op Operation,
	start time.Time,
	err error,
	recovered interface{},
) *domain.AuditRecord {
	record := &domain.AuditRecord{
		ID:              uuid.New(),
		ActorID:         actor.ID,
		ActorUsername:   actor.Username,
		ClusterID:       cluster.ID,
		ClusterName:     cluster.Name,
		OperationType:   op.Type,
		ResourceType:    op.ResourceType,
		ResourceName:    op.ResourceName,
		ResourceDetails: op.Details,
		Status:          domain.StatusSuccess,
		Timestamp:       start,
	}

	switch {
	case recovered != nil:
		record.Status = domain.StatusFailure
		record.ErrorMessage = boundedMessage(fmt.Sprintf("panic: %v", recovered))
	case err != nil:
		var partial *domain.PartialError
		if errors.As(err, &partial) {
			record.Status = domain.StatusPartial
		} else {
			record.Status = domain.StatusFailure
		}
		record.ErrorMessage = boundedMessage(err.Error())
	}

	if meta, ok := RequestMetaFrom(ctx); ok {
		if meta.ClientIP != "" {
			clientIP := meta.ClientIP
			record.ClientIP = &clientIP
		}
		if meta.UserAgent != "" {
			userAgent := meta.UserAgent
			record.UserAgent = &userAgent
		}
	}

	return record
}

// handOff delivers the record to the recorder, shielding the caller from any
// panic inside the audit path.
func (i *Interceptor) handOff(ctx context.Context, record *domain.AuditRecord) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("Audit record hand-off panicked",
				zap.Any("panic", r),
				zap.String("operation_type", string(record.OperationType)),
			)
		}
	}()
	i.recorder.Record(ctx, record)
}

func boundedMessage(msg string) *string {
	if msg == "" {
		msg = "unknown error"
	}
	if len(msg) > maxErrorMessageLen {
		cut := maxErrorMessageLen
		// back up so the cut does not split a multi-byte rune
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut]
	}
	return &msg
}
