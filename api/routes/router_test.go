package routes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/supplytrace-backend/internal/evidence"
	product "github.com/angelmondragon/supplytrace-backend/internal/products"
	"github.com/angelmondragon/supplytrace-backend/internal/submission"
	"github.com/angelmondragon/supplytrace-backend/internal/verification"
	"github.com/angelmondragon/supplytrace-backend/pkg/config"
	"github.com/angelmondragon/supplytrace-backend/pkg/db/models"
	"github.com/angelmondragon/supplytrace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/supplytrace-backend/pkg/errors"
	"github.com/angelmondragon/supplytrace-backend/pkg/logger"
	"github.com/angelmondragon/supplytrace-backend/pkg/metrics"
	"github.com/angelmondragon/supplytrace-backend/pkg/pagination"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type memoryRedis struct {
	mu   sync.Mutex
	data map[string]string
	hits map[string]int64
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{data: map[string]string{}, hits: map[string]int64{}}
}

func (m *memoryRedis) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryRedis) IdempotencyKey(scope, id string) string {
	return "idem:" + scope + ":" + id
}

func (m *memoryRedis) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryRedis) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits[scope]++
	return m.hits[scope] <= limit, m.hits[scope], nil
}

func (m *memoryRedis) Ping(context.Context) error {
	return nil
}

type stubSubmitter struct {
	mu    sync.Mutex
	calls int
}

func (s *stubSubmitter) Submit(_ context.Context, input submission.Input, _ []evidence.Blob) (*submission.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if input.ProductID == "" {
		return nil, pkgerrors.Validation("productId is required")
	}
	return &submission.Result{
		EventID:            uuid.New(),
		TransactionLocator: "0xfeed",
		EvidenceLocator:    "QmFeed",
		VerificationStatus: enums.VerificationStatusPending,
	}, nil
}

type stubEvents struct{}

func (stubEvents) ListByProduct(context.Context, string) ([]models.SupplyEvent, error) {
	return []models.SupplyEvent{}, nil
}

func (stubEvents) Get(context.Context, uuid.UUID) (*models.SupplyEvent, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "event not found")
}

type stubProducts struct{}

func (stubProducts) List(context.Context, pagination.Params) (*product.ListResult, error) {
	return &product.ListResult{Products: []models.Product{}}, nil
}

func (stubProducts) Get(context.Context, string) (*product.Detail, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
}

func (stubProducts) Create(_ context.Context, in product.CreateProductInput) (*models.Product, error) {
	return &models.Product{ProductID: in.ProductID, BatchID: in.BatchID, Submitter: in.Submitter, CurrentStage: enums.StageFarm}, nil
}

type stubVerification struct{}

func (stubVerification) HandleCallback(_ context.Context, in verification.CallbackInput) (*models.VerificationResult, error) {
	return &models.VerificationResult{EventID: uuid.MustParse(in.EventID), Status: enums.VerificationStatus(in.Status)}, nil
}

func (stubVerification) GetResult(context.Context, string) (*models.VerificationResult, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "verification result not found")
}

func testConfig() *config.Config {
	return &config.Config{
		App:       config.AppConfig{Env: "test", Port: "8080"},
		CORS:      config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
		Evidence:  config.EvidenceConfig{MaxUploadMB: 1, MaxFiles: 10},
		Eventing:  config.EventingConfig{IdempotencyTTL: time.Hour},
		RateLimit: config.RateLimitConfig{Window: time.Minute, SubmissionsPerIP: 100, CallbacksPerIP: 100},
	}
}

type harness struct {
	router    http.Handler
	submitter *stubSubmitter
	registry  *prometheus.Registry
}

func newHarness(cfg *config.Config, store RedisStore) *harness {
	reg := prometheus.NewRegistry()
	sub := &stubSubmitter{}
	router := NewRouter(Deps{
		Config:       cfg,
		Logger:       logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard}),
		HTTPMetrics:  metrics.NewHTTPMetrics(reg),
		Gatherer:     reg,
		Database:     stubPinger{},
		Redis:        store,
		Submissions:  sub,
		Events:       stubEvents{},
		Products:     stubProducts{},
		Verification: stubVerification{},
	})
	return &harness{router: router, submitter: sub, registry: reg}
}

func (h *harness) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestRoutesResolve(t *testing.T) {
	h := newHarness(testConfig(), nil)

	tests := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodGet, "/health", "", http.StatusOK},
		{http.MethodGet, "/health/live", "", http.StatusOK},
		{http.MethodGet, "/health/ready", "", http.StatusOK},
		{http.MethodPost, "/api/events", `{"productId":"P1","stage":"farm","submitter":"s"}`, http.StatusCreated},
		{http.MethodGet, "/api/events/product/UNKNOWN", "", http.StatusOK},
		{http.MethodGet, "/api/events/" + uuid.NewString(), "", http.StatusNotFound},
		{http.MethodGet, "/api/products", "", http.StatusOK},
		{http.MethodGet, "/api/products/P404", "", http.StatusNotFound},
		{http.MethodPost, "/api/products", `{"productId":"P1","batchId":"B1","submitter":"s"}`, http.StatusCreated},
		{http.MethodGet, "/api/verification/event/" + uuid.NewString(), "", http.StatusNotFound},
		{http.MethodPost, "/api/verification/callback", `{"eventId":"` + uuid.NewString() + `","status":"verified"}`, http.StatusOK},
		{http.MethodGet, "/api/ledger/verify", "", http.StatusNotFound},
		{http.MethodGet, "/api/unknown", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		rec := h.do(jsonRequest(tt.method, tt.path, tt.body))
		assert.Equal(t, tt.want, rec.Code, "%s %s: %s", tt.method, tt.path, rec.Body.String())
	}
}

func TestMetricsEndpointExposesHTTPMetrics(t *testing.T) {
	h := newHarness(testConfig(), nil)
	h.do(httptest.NewRequest(http.MethodGet, "/api/products", nil))

	rec := h.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Regexp(t, `supplytrace_http_requests_total\{method="GET",route="/api/products/?",status="200"\} 1`, rec.Body.String())
}

func TestSubmissionIdempotentReplay(t *testing.T) {
	h := newHarness(testConfig(), newMemoryRedis())
	body := `{"productId":"P1","stage":"farm","submitter":"s"}`

	first := jsonRequest(http.MethodPost, "/api/events", body)
	first.Header.Set("Idempotency-Key", "submit-1")
	firstRec := h.do(first)
	require.Equal(t, http.StatusCreated, firstRec.Code)

	retry := jsonRequest(http.MethodPost, "/api/events", body)
	retry.Header.Set("Idempotency-Key", "submit-1")
	retryRec := h.do(retry)
	require.Equal(t, http.StatusCreated, retryRec.Code)
	assert.Equal(t, firstRec.Body.String(), retryRec.Body.String())
	assert.Equal(t, 1, h.submitter.calls)

	changed := jsonRequest(http.MethodPost, "/api/events", `{"productId":"P2","stage":"farm","submitter":"s"}`)
	changed.Header.Set("Idempotency-Key", "submit-1")
	assert.Equal(t, http.StatusConflict, h.do(changed).Code)
}

func TestSubmissionRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.SubmissionsPerIP = 1
	h := newHarness(cfg, newMemoryRedis())

	body := `{"productId":"P1","stage":"farm","submitter":"s"}`
	assert.Equal(t, http.StatusCreated, h.do(jsonRequest(http.MethodPost, "/api/events", body)).Code)
	assert.Equal(t, http.StatusTooManyRequests, h.do(jsonRequest(http.MethodPost, "/api/events", body)).Code)
	assert.Equal(t, http.StatusOK, h.do(httptest.NewRequest(http.MethodGet, "/api/products", nil)).Code)
}

func TestCallbackRequiresTokenWhenSecretConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.Callback = config.CallbackConfig{JWTSecret: "s3cret", JWTIssuer: "supplytrace-verifier"}
	h := newHarness(cfg, nil)

	rec := h.do(jsonRequest(http.MethodPost, "/api/verification/callback", `{"eventId":"`+uuid.NewString()+`","status":"verified"}`))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
