package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rabbitdeck/backend/internal/audit"
	"github.com/rabbitdeck/backend/internal/domain"
	"github.com/rabbitdeck/backend/internal/rabbit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// recordSink captures audit records handed off by the interceptor
type recordSink struct {
	records []*domain.AuditRecord
}

func (s *recordSink) Record(_ context.Context, record *domain.AuditRecord) {
	s.records = append(s.records, record)
}

func (s *recordSink) Enabled() bool               { return true }
func (s *recordSink) Close(context.Context) error { return nil }

// fakeClusterRepo serves a single cluster
type fakeClusterRepo struct {
	cluster *domain.Cluster
}

func (f *fakeClusterRepo) Create(context.Context, *domain.Cluster) error { return nil }

func (f *fakeClusterRepo) FindByID(_ context.Context, id uuid.UUID) (*domain.Cluster, error) {
	if f.cluster != nil && f.cluster.ID == id {
		return f.cluster, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeClusterRepo) FindByName(_ context.Context, name string) (*domain.Cluster, error) {
	if f.cluster != nil && f.cluster.Name == name {
		return f.cluster, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeClusterRepo) FindAll(context.Context) ([]*domain.Cluster, error) {
	if f.cluster == nil {
		return nil, nil
	}
	return []*domain.Cluster{f.cluster}, nil
}

func (f *fakeClusterRepo) Delete(context.Context, uuid.UUID) error { return nil }

// opsFixture wires the service against a fake management API
type opsFixture struct {
	svc     *ClusterOpsService
	sink    *recordSink
	cluster *domain.Cluster
	admin   *domain.User
	member  *domain.User
}

func newOpsFixture(t *testing.T, handler http.Handler) *opsFixture {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cluster := &domain.Cluster{
		ID:       uuid.New(),
		Name:     "prod-east",
		ApiUrl:   server.URL,
		Username: "console",
		Password: "console-pass",
		IsActive: true,
	}
	sink := &recordSink{}
	svc := NewClusterOpsService(
		&fakeClusterRepo{cluster: cluster},
		rabbit.NewClient(),
		audit.NewInterceptor(sink, zap.NewNop()),
		zap.NewNop(),
	)
	return &opsFixture{
		svc:     svc,
		sink:    sink,
		cluster: cluster,
		admin:   &domain.User{ID: uuid.New(), Username: "alice", Role: domain.RoleAdministrator},
		member:  &domain.User{ID: uuid.New(), Username: "bob", Role: domain.RoleUser},
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestCreateQueueAuditsSuccess(t *testing.T) {
	var gotPath, gotMethod string
	fx := newOpsFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.EscapedPath(), r.Method
		w.WriteHeader(http.StatusCreated)
	}))

	err := fx.svc.CreateQueue(context.Background(), fx.admin, fx.cluster.ID, "/", "orders", rabbit.QueueSettings{Durable: true})

	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/api/queues/%2F/orders", gotPath)

	require.Len(t, fx.sink.records, 1)
	record := fx.sink.records[0]
	assert.Equal(t, domain.OpCreateQueue, record.OperationType)
	assert.Equal(t, domain.StatusSuccess, record.Status)
	assert.Equal(t, "orders", record.ResourceName)
	assert.Equal(t, "alice", record.ActorUsername)
	assert.Equal(t, "prod-east", record.ClusterName)
	assert.Equal(t, true, record.ResourceDetails["durable"])
}

func TestDeleteExchangeAuditsFailure(t *testing.T) {
	fx := newOpsFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "Object Not Found", "reason": "no exchange 'logs'"})
	}))

	err := fx.svc.DeleteExchange(context.Background(), fx.admin, fx.cluster.ID, "/", "logs")

	var apiErr *rabbit.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)

	require.Len(t, fx.sink.records, 1)
	record := fx.sink.records[0]
	assert.Equal(t, domain.OpDeleteExchange, record.OperationType)
	assert.Equal(t, domain.StatusFailure, record.Status)
	require.NotNil(t, record.ErrorMessage)
	assert.Contains(t, *record.ErrorMessage, "no exchange 'logs'")
}

func TestAccessDeniedProducesNoRecord(t *testing.T) {
	fx := newOpsFixture(t, okHandler())

	err := fx.svc.PurgeQueue(context.Background(), fx.member, fx.cluster.ID, "/", "orders")

	require.ErrorIs(t, err, ErrAccessDenied)
	assert.Empty(t, fx.sink.records)
}

func TestAssignedMemberCanOperate(t *testing.T) {
	fx := newOpsFixture(t, okHandler())
	fx.member.Clusters = []*domain.Cluster{{ID: fx.cluster.ID}}

	err := fx.svc.PurgeQueue(context.Background(), fx.member, fx.cluster.ID, "/", "orders")

	require.NoError(t, err)
	require.Len(t, fx.sink.records, 1)
	assert.Equal(t, domain.OpPurgeQueue, fx.sink.records[0].OperationType)
}

func TestUnknownClusterProducesNoRecord(t *testing.T) {
	fx := newOpsFixture(t, okHandler())

	err := fx.svc.DeleteQueue(context.Background(), fx.admin, uuid.New(), "/", "orders")

	require.ErrorIs(t, err, ErrClusterNotFound)
	assert.Empty(t, fx.sink.records)
}

func TestCreateBindingOperationTypeByDestination(t *testing.T) {
	fx := newOpsFixture(t, okHandler())

	err := fx.svc.CreateBinding(context.Background(), fx.admin, fx.cluster.ID, "/", "logs", "audit-q", true, "rk", nil)
	require.NoError(t, err)

	err = fx.svc.CreateBinding(context.Background(), fx.admin, fx.cluster.ID, "/", "logs", "fanout-2", false, "rk", nil)
	require.NoError(t, err)

	require.Len(t, fx.sink.records, 2)
	assert.Equal(t, domain.OpCreateBindingQueue, fx.sink.records[0].OperationType)
	assert.Equal(t, "logs->audit-q", fx.sink.records[0].ResourceName)
	assert.Equal(t, domain.OpCreateBindingExchange, fx.sink.records[1].OperationType)
}

func TestPublishToExchangeReportsRouted(t *testing.T) {
	fx := newOpsFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/exchanges/%2F/logs/publish", r.URL.EscapedPath())
		json.NewEncoder(w).Encode(map[string]bool{"routed": true})
	}))

	routed, err := fx.svc.PublishToExchange(context.Background(), fx.admin, fx.cluster.ID, "/", "logs", "rk", "hello", nil)

	require.NoError(t, err)
	assert.True(t, routed)
	require.Len(t, fx.sink.records, 1)
	record := fx.sink.records[0]
	assert.Equal(t, domain.OpPublishMessageExchange, record.OperationType)
	assert.Equal(t, 5, record.ResourceDetails["payload_size"])
}

func TestMoveMessagesCountsInDetails(t *testing.T) {
	// source holds 2 messages; one get round drains it, then an empty round
	// ends the loop
	var served bool
	fx := newOpsFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			// depth probe on the source queue
			json.NewEncoder(w).Encode(map[string]int{"messages": 2})
		case r.URL.EscapedPath() == "/api/queues/%2F/staging/get":
			if served {
				json.NewEncoder(w).Encode([]rabbit.Message{})
				return
			}
			served = true
			json.NewEncoder(w).Encode([]rabbit.Message{
				{Payload: "m1"},
				{Payload: "m2"},
			})
		default:
			// republish via default exchange
			json.NewEncoder(w).Encode(map[string]bool{"routed": true})
		}
	}))

	moved, err := fx.svc.MoveMessages(context.Background(), fx.admin, fx.cluster.ID, "/", "staging", "orders", 500)

	require.NoError(t, err)
	assert.Equal(t, 2, moved)

	require.Len(t, fx.sink.records, 1)
	record := fx.sink.records[0]
	assert.Equal(t, domain.OpMoveMessagesQueue, record.OperationType)
	assert.Equal(t, domain.StatusSuccess, record.Status)
	assert.Equal(t, "staging->orders", record.ResourceName)
	assert.Equal(t, 2, record.ResourceDetails["moved_count"])
	assert.Equal(t, 500, record.ResourceDetails["requested_count"])
	assert.Equal(t, 2, record.ResourceDetails["source_depth"])
}

func TestReadsAreNotAudited(t *testing.T) {
	fx := newOpsFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]interface{}{{"name": "orders"}})
	}))

	queues, err := fx.svc.ListQueues(context.Background(), fx.admin, fx.cluster.ID)

	require.NoError(t, err)
	require.Len(t, queues, 1)
	assert.Empty(t, fx.sink.records)
}
