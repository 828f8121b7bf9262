package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rabbitdeck/backend/cmd/console-api/internal/handler"
	"github.com/rabbitdeck/backend/internal/audit"
	"github.com/rabbitdeck/backend/internal/auth"
	"github.com/rabbitdeck/backend/internal/config"
	"github.com/rabbitdeck/backend/internal/domain"
	"github.com/rabbitdeck/backend/internal/metrics"
	"github.com/rabbitdeck/backend/internal/middleware"
	"github.com/rabbitdeck/backend/internal/rabbit"
	"github.com/rabbitdeck/backend/internal/repository"
	"github.com/rabbitdeck/backend/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// collectors register globally; build them once for the test binary
var (
	testMetrics     *metrics.Metrics
	testMetricsOnce sync.Once
)

func sharedMetrics() *metrics.Metrics {
	testMetricsOnce.Do(func() { testMetrics = metrics.New() })
	return testMetrics
}

// --- in-memory repositories ---

type memUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*domain.User
}

func (r *memUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
	return nil
}

func (r *memUserRepo) FindByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memUserRepo) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memUserRepo) UpdateLastLogin(context.Context, uuid.UUID, time.Time) error { return nil }

type memClusterRepo struct {
	mu       sync.Mutex
	clusters map[uuid.UUID]*domain.Cluster
}

func (r *memClusterRepo) Create(_ context.Context, cluster *domain.Cluster) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clusters[cluster.ID] = cluster
	return nil
}

func (r *memClusterRepo) FindByID(_ context.Context, id uuid.UUID) (*domain.Cluster, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clusters[id]; ok {
		return c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memClusterRepo) FindByName(_ context.Context, name string) (*domain.Cluster, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.clusters {
		if c.Name == name {
			return c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memClusterRepo) FindAll(context.Context) ([]*domain.Cluster, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Cluster, 0, len(r.clusters))
	for _, c := range r.clusters {
		out = append(out, c)
	}
	return out, nil
}

func (r *memClusterRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clusters, id)
	return nil
}

type memAuditRepo struct {
	mu      sync.Mutex
	records []*domain.AuditRecord
}

func (r *memAuditRepo) Create(_ context.Context, record *domain.AuditRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}

func (r *memAuditRepo) CreateBatch(_ context.Context, records []*domain.AuditRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, records...)
	return nil
}

func (r *memAuditRepo) FindByID(context.Context, uuid.UUID) (*domain.AuditRecord, error) {
	return nil, errors.New("not implemented")
}

func (r *memAuditRepo) FindByFilters(_ context.Context, filters *repository.AuditRecordFilters) ([]*domain.AuditRecord, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.AuditRecord, len(r.records))
	copy(out, r.records)
	return out, int64(len(out)), nil
}

func (r *memAuditRepo) DeleteOlderThan(_ context.Context, cutoff time.Time, batchSize int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.records[:0]
	var deleted int64
	for _, record := range r.records {
		if record.Timestamp.Before(cutoff) && deleted < int64(batchSize) {
			deleted++
			continue
		}
		kept = append(kept, record)
	}
	r.records = kept
	return deleted, nil
}

func (r *memAuditRepo) CountOlderThan(context.Context, time.Time) (int64, error) { return 0, nil }

func (r *memAuditRepo) stored() []*domain.AuditRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.AuditRecord, len(r.records))
	copy(out, r.records)
	return out
}

// --- fixture ---

type apiFixture struct {
	engine     *gin.Engine
	jwtManager *auth.JWTManager
	auditRepo  *memAuditRepo
	cluster    *domain.Cluster
	admin      *domain.User
	member     *domain.User
}

func newAPIFixture(t *testing.T) *apiFixture {
	return newFixtureWithAudit(t, true)
}

func newFixtureWithAudit(t *testing.T, auditEnabled bool) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// fake RabbitMQ management API accepting everything
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/publish"):
			json.NewEncoder(w).Encode(map[string]bool{"routed": true})
		case r.Method == http.MethodGet:
			json.NewEncoder(w).Encode([]map[string]interface{}{})
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	t.Cleanup(upstream.Close)

	cfg := &config.Config{
		Logging: config.LoggingConfig{Level: "info"},
		Metrics: config.MetricsConfig{Enabled: false},
		Audit: config.AuditConfig{
			Enabled:         auditEnabled,
			RetentionDays:   90,
			BatchSize:       100,
			AsyncProcessing: false,
		},
		Retention: config.RetentionConfig{Enabled: true, Days: 90, CleanSchedule: "0 3 * * *"},
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)

	cluster := &domain.Cluster{
		ID:       uuid.New(),
		Name:     "prod-east",
		ApiUrl:   upstream.URL,
		Username: "console",
		Password: "console-pass",
		IsActive: true,
	}
	admin := &domain.User{
		ID:           uuid.New(),
		Username:     "alice",
		PasswordHash: string(hash),
		Role:         domain.RoleAdministrator,
		IsActive:     true,
	}
	member := &domain.User{
		ID:           uuid.New(),
		Username:     "bob",
		PasswordHash: string(hash),
		Role:         domain.RoleUser,
		IsActive:     true,
		Clusters:     []*domain.Cluster{cluster},
	}

	userRepo := &memUserRepo{users: map[uuid.UUID]*domain.User{admin.ID: admin, member.ID: member}}
	clusterRepo := &memClusterRepo{clusters: map[uuid.UUID]*domain.Cluster{cluster.ID: cluster}}
	auditRepo := &memAuditRepo{}

	log := zap.NewNop()
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	recorder := audit.NewRecorder(&cfg.Audit, auditRepo, log, nil)
	t.Cleanup(func() { recorder.Close(context.Background()) })
	interceptor := audit.NewInterceptor(recorder, log)
	sweeper := audit.NewSweeper(cfg.Retention, auditRepo, nil, log, nil)

	userService := service.NewUserService(userRepo, log)
	clusterService := service.NewClusterService(clusterRepo, log)
	queryService := service.NewAuditQueryService(auditRepo, log)
	opsService := service.NewClusterOpsService(clusterRepo, rabbit.NewClient(), interceptor, log)

	engine := SetupRouter(
		cfg,
		sharedMetrics(),
		middleware.NewAuthenticator(jwtManager),
		handler.NewAuthHandler(userService, jwtManager),
		handler.NewClusterHandler(clusterService, opsService, userService),
		handler.NewAuditHandler(queryService, sweeper, cfg),
	)

	return &apiFixture{
		engine:     engine,
		jwtManager: jwtManager,
		auditRepo:  auditRepo,
		cluster:    cluster,
		admin:      admin,
		member:     member,
	}
}

func (fx *apiFixture) request(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("User-Agent", "console-test/1.0")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	fx.engine.ServeHTTP(w, req)
	return w
}

func (fx *apiFixture) tokenFor(t *testing.T, user *domain.User) string {
	t.Helper()
	token, err := fx.jwtManager.GenerateToken(user)
	require.NoError(t, err)
	return token
}

// --- tests ---

func TestHealthEndpoint(t *testing.T) {
	fx := newAPIFixture(t)

	w := fx.request(t, http.MethodGet, "/health", "", "")

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLoginFlow(t *testing.T) {
	fx := newAPIFixture(t)

	w := fx.request(t, http.MethodPost, "/api/auth/login", "", `{"username":"alice","password":"correct-horse"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)

	// the issued token works
	w = fx.request(t, http.MethodGet, "/api/auth/me", resp.Token, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	fx := newAPIFixture(t)

	w := fx.request(t, http.MethodPost, "/api/auth/login", "", `{"username":"alice","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = fx.request(t, http.MethodPost, "/api/auth/login", "", `{"username":"alice"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuditEndpointsRequireAuth(t *testing.T) {
	fx := newAPIFixture(t)

	w := fx.request(t, http.MethodGet, "/api/audits", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = fx.request(t, http.MethodGet, "/api/audits", "not-a-token", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuditEndpointsRequireAdministrator(t *testing.T) {
	fx := newAPIFixture(t)
	token := fx.tokenFor(t, fx.member)

	for _, path := range []string{"/api/audits", "/api/audits/operation-types", "/api/audits/status"} {
		w := fx.request(t, http.MethodGet, path, token, "")
		assert.Equal(t, http.StatusForbidden, w.Code, path)
	}
}

func TestAuditListForAdministrator(t *testing.T) {
	fx := newAPIFixture(t)
	token := fx.tokenFor(t, fx.admin)

	w := fx.request(t, http.MethodGet, "/api/audits", token, "")
	require.Equal(t, http.StatusOK, w.Code)

	var page struct {
		Items      []json.RawMessage `json:"items"`
		Page       int               `json:"page"`
		PageSize   int               `json:"pageSize"`
		TotalItems int64             `json:"totalItems"`
		TotalPages int               `json:"totalPages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.NotNil(t, page.Items)
	assert.Equal(t, service.DefaultPageSize, page.PageSize)
}

func TestAuditListValidatesQueryParams(t *testing.T) {
	fx := newAPIFixture(t)
	token := fx.tokenFor(t, fx.admin)

	tests := []struct {
		query string
		field string
	}{
		{"?page=abc", "page"},
		{"?pageSize=abc", "pageSize"},
		{"?pageSize=501", "pageSize"},
		{"?sortBy=errorMessage", "sortBy"},
		{"?sortDirection=sideways", "sortDirection"},
		{"?operationType=DROP_TABLE", "operationType"},
		{"?status=MAYBE", "status"},
		{"?resourceType=vhost", "resourceType"},
		{"?startTime=yesterday", "startTime"},
		{"?endTime=2026-01-01T00:00:00Z&startTime=2026-06-01T00:00:00Z", "dateRange"},
	}

	for _, tt := range tests {
		w := fx.request(t, http.MethodGet, "/api/audits"+tt.query, token, "")
		require.Equal(t, http.StatusBadRequest, w.Code, tt.query)
		var resp struct {
			Error string `json:"error"`
			Field string `json:"field"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "validation_failed", resp.Error, tt.query)
		assert.Equal(t, tt.field, resp.Field, tt.query)
	}
}

func TestAuditRecordsAreImmutableOverHTTP(t *testing.T) {
	fx := newAPIFixture(t)
	token := fx.tokenFor(t, fx.admin)
	id := uuid.NewString()

	for _, method := range []string{http.MethodPut, http.MethodDelete, http.MethodPatch} {
		w := fx.request(t, method, "/api/audits/"+id, token, "")
		assert.Equal(t, http.StatusNotFound, w.Code, method)
	}
	w := fx.request(t, http.MethodPost, "/api/audits", token, "{}")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOperationTypesCatalog(t *testing.T) {
	fx := newAPIFixture(t)
	token := fx.tokenFor(t, fx.admin)

	w := fx.request(t, http.MethodGet, "/api/audits/operation-types", token, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		OperationTypes []string `json:"operationTypes"`
		ResourceTypes  []string `json:"resourceTypes"`
		Statuses       []string `json:"statuses"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.OperationTypes, 11)
	assert.Contains(t, resp.OperationTypes, "MOVE_MESSAGES_QUEUE")
	assert.Equal(t, []string{"exchange", "queue", "binding", "message"}, resp.ResourceTypes)
	assert.Equal(t, []string{"SUCCESS", "FAILURE", "PARTIAL"}, resp.Statuses)
}

func TestAuditStatusEndpoint(t *testing.T) {
	fx := newAPIFixture(t)
	token := fx.tokenFor(t, fx.admin)

	w := fx.request(t, http.MethodGet, "/api/audits/status", token, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Enabled       bool `json:"enabled"`
		RetentionDays int  `json:"retentionDays"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Enabled)
	assert.Equal(t, 90, resp.RetentionDays)
}

func TestAuditsQueryReportsDisabledFeature(t *testing.T) {
	fx := newFixtureWithAudit(t, false)
	token := fx.tokenFor(t, fx.admin)

	w := fx.request(t, http.MethodGet, "/api/audits", token, "")
	require.Equal(t, http.StatusConflict, w.Code)

	var resp struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "audit_disabled", resp.Error)

	// the status endpoint still answers so the UI can explain the state
	w = fx.request(t, http.MethodGet, "/api/audits/status", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	var status struct {
		Enabled bool `json:"enabled"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.False(t, status.Enabled)
}

func TestWriteOperationProducesAuditRecord(t *testing.T) {
	fx := newAPIFixture(t)
	token := fx.tokenFor(t, fx.member)

	w := fx.request(t, http.MethodPost, "/api/clusters/"+fx.cluster.ID.String()+"/queues", token,
		`{"vhost":"/","name":"orders","durable":true}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	records := fx.auditRepo.stored()
	require.Len(t, records, 1)
	record := records[0]
	assert.Equal(t, domain.OpCreateQueue, record.OperationType)
	assert.Equal(t, domain.StatusSuccess, record.Status)
	assert.Equal(t, "bob", record.ActorUsername)
	assert.Equal(t, "prod-east", record.ClusterName)
	require.NotNil(t, record.ClientIP)
	require.NotNil(t, record.UserAgent)
}

func TestBrowseDoesNotProduceAuditRecord(t *testing.T) {
	fx := newAPIFixture(t)
	token := fx.tokenFor(t, fx.member)

	w := fx.request(t, http.MethodGet, "/api/clusters/"+fx.cluster.ID.String()+"/queues", token, "")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Empty(t, fx.auditRepo.stored())
}

func TestClusterManagementIsAdminOnly(t *testing.T) {
	fx := newAPIFixture(t)
	memberToken := fx.tokenFor(t, fx.member)
	adminToken := fx.tokenFor(t, fx.admin)

	w := fx.request(t, http.MethodGet, "/api/clusters", memberToken, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = fx.request(t, http.MethodGet, "/api/clusters", adminToken, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = fx.request(t, http.MethodPost, "/api/users", memberToken,
		`{"username":"carol","password":"longenough","role":"user"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestManualRetentionRun(t *testing.T) {
	fx := newAPIFixture(t)
	adminToken := fx.tokenFor(t, fx.admin)
	memberToken := fx.tokenFor(t, fx.member)

	// seed one expired record
	old := &domain.AuditRecord{
		ID:        uuid.New(),
		Timestamp: time.Now().UTC().AddDate(0, 0, -120),
		Status:    domain.StatusSuccess,
	}
	require.NoError(t, fx.auditRepo.Create(context.Background(), old))

	w := fx.request(t, http.MethodPost, "/api/audits/retention/run", memberToken, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = fx.request(t, http.MethodPost, "/api/audits/retention/run", adminToken, "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Deleted int64 `json:"deleted"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.Deleted)
	assert.Empty(t, fx.auditRepo.stored())
}

func TestUnknownClusterIs404(t *testing.T) {
	fx := newAPIFixture(t)
	token := fx.tokenFor(t, fx.admin)

	w := fx.request(t, http.MethodPost, "/api/clusters/"+uuid.NewString()+"/queues", token,
		`{"vhost":"/","name":"orders"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMalformedClusterIDIs400(t *testing.T) {
	fx := newAPIFixture(t)
	token := fx.tokenFor(t, fx.admin)

	w := fx.request(t, http.MethodDelete, "/api/clusters/not-a-uuid/queues/orders", token, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
