package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/splax/unhazzle/internal/domain"
	"github.com/splax/unhazzle/internal/repository"
	"github.com/splax/unhazzle/internal/repository/memory"
	"github.com/splax/unhazzle/internal/service/pricing"
	"github.com/splax/unhazzle/internal/service/session"
	"github.com/splax/unhazzle/internal/service/state"
	"github.com/splax/unhazzle/internal/ws"
)

type rateLimiterStub struct {
	mu      sync.Mutex
	calls   []string
	allowFn func(key string, rule RateRule) RateDecision
}

func (rl *rateLimiterStub) Allow(_ context.Context, key string, rule RateRule) RateDecision {
	rl.mu.Lock()
	rl.calls = append(rl.calls, key)
	fn := rl.allowFn
	rl.mu.Unlock()
	if fn != nil {
		return fn(key, rule)
	}
	return RateDecision{Allowed: true, Remaining: rule.Limit - 1, ResetAt: time.Now().Add(rule.Window)}
}

func (rl *rateLimiterStub) Close() {}

type testEnv struct {
	router  *Router
	sched   *state.ManualScheduler
	repo    *memory.Repository
	limiter *rateLimiterStub
}

func setupRouter(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := &testEnv{
		sched:   state.NewManualScheduler(),
		repo:    memory.New(),
		limiter: &rateLimiterStub{},
	}
	hub := ws.NewHub()
	manager := session.New(env.repo, state.NewCodec("", "example.dev"), hub, session.Config{
		Secret:   "test-secret",
		TokenTTL: time.Hour,
		Store: state.Options{
			Scheduler:    env.sched,
			SettleDelay:  time.Second,
			DomainSuffix: "example.dev",
		},
	}, logger)
	env.router = NewRouter(Deps{
		Logger:    logger,
		Sessions:  manager,
		Estimator: pricing.New(logger),
		Hub:       hub,
		Limiter:   env.limiter,
		Registry:  prometheus.NewRegistry(),
		Health: map[string]HealthCheck{
			"repository": func(context.Context) error { return nil },
		},
	})
	t.Cleanup(func() {
		env.router.Close()
		manager.Close()
		hub.Close()
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) signIn(t *testing.T) string {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/session", "", map[string]string{"name": "Ada"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("sign in: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var payload struct {
		Session session.Session `json:"session"`
	}
	decode(t, rr, &payload)
	return payload.Session.Token
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
}

func TestHealthz(t *testing.T) {
	env := setupRouter(t)
	rr := env.do(t, http.MethodGet, "/healthz", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var payload struct {
		Status     string                    `json:"status"`
		Components map[string]map[string]any `json:"components"`
	}
	decode(t, rr, &payload)
	if payload.Status != "ok" || payload.Components["repository"]["status"] != "up" {
		t.Fatalf("unexpected health payload %s", rr.Body.String())
	}
}

func TestHealthzDegraded(t *testing.T) {
	env := setupRouter(t)
	env.router.health["postgres"] = func(context.Context) error { return errors.New("connection refused") }
	rr := env.do(t, http.MethodGet, "/healthz", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "connection refused") {
		t.Fatalf("expected failing component in body: %s", rr.Body.String())
	}
}

func TestStateRequiresSession(t *testing.T) {
	env := setupRouter(t)
	if rr := env.do(t, http.MethodGet, "/state", "", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/state", "not-a-token", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", rr.Code)
	}
}

func TestSessionLifecycle(t *testing.T) {
	env := setupRouter(t)
	token := env.signIn(t)

	rr := env.do(t, http.MethodGet, "/state", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var st domain.State
	decode(t, rr, &st)
	if st.User == nil || st.User.Name != "Ada" {
		t.Fatalf("expected signed-in user in state, got %+v", st.User)
	}

	if rr := env.do(t, http.MethodDelete, "/session", token, nil); rr.Code != http.StatusOK {
		t.Fatalf("sign out: expected 200, got %d", rr.Code)
	}
	if keys := env.repo.Keys(); len(keys) != 0 {
		t.Fatalf("expected blob removed, have %v", keys)
	}
}

func TestSignInValidatesName(t *testing.T) {
	env := setupRouter(t)
	rr := env.do(t, http.MethodPost, "/session", "", map[string]string{"name": " "})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	rr = env.do(t, http.MethodPost, "/session", "", map[string]string{"nickname": "x"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rr.Code)
	}
}

func TestQuestionnaireToManifest(t *testing.T) {
	env := setupRouter(t)
	token := env.signIn(t)

	rr := env.do(t, http.MethodPut, "/questionnaire", token, domain.QuestionnaireAnswers{
		AppType:  domain.AppTypeWebApp,
		Traffic:  domain.TrafficBurst,
		Database: domain.DatabasePostgres,
		Cache:    domain.CacheNone,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("questionnaire: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var rec struct {
		Resources domain.ResourceConfig `json:"resources"`
		Estimate  domain.CostBreakdown  `json:"estimate"`
	}
	decode(t, rr, &rec)
	if rec.Resources.Replicas.Max != 10 || rec.Resources.Database == nil || rec.Estimate.Total <= 0 {
		t.Fatalf("unexpected recommendation %s", rr.Body.String())
	}
	if rr := env.do(t, http.MethodGet, "/recommendation", token, nil); rr.Code != http.StatusOK {
		t.Fatalf("recommendation: expected 200, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/containers/catalog", token, map[string]string{"catalogId": "node"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("catalog container: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var container domain.Container
	decode(t, rr, &container)
	if container.ID == "" || container.Name != "node-app" || container.Resources.Replicas.Max != 10 {
		t.Fatalf("unexpected container %+v", container)
	}

	rr = env.do(t, http.MethodPost, "/deploy", token, map[string]string{"projectName": "Shop Front"})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("deploy: expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
	var project domain.Project
	decode(t, rr, &project)
	if project.Slug != "shop-front" || len(project.Environments) != 1 {
		t.Fatalf("unexpected project %+v", project)
	}
	envID := project.Environments[0].ID
	if project.Environments[0].Status != domain.StatusProvisioning {
		t.Fatalf("expected provisioning, got %s", project.Environments[0].Status)
	}
	env.sched.Advance(time.Second)

	rr = env.do(t, http.MethodGet, "/manifest", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("manifest: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/yaml" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if body := rr.Body.String(); !strings.Contains(body, "node-app") || !strings.Contains(body, "status: active") {
		t.Fatalf("unexpected manifest:\n%s", body)
	}

	rr = env.do(t, http.MethodGet, "/environments/"+envID+"/estimate", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("estimate: expected 200, got %d", rr.Code)
	}
	var cost domain.CostBreakdown
	decode(t, rr, &cost)
	if cost.Bandwidth != pricing.Bandwidth[domain.TrafficBurst] || cost.Servers != 3 {
		t.Fatalf("unexpected environment estimate %+v", cost)
	}
}

func TestErrorMapping(t *testing.T) {
	env := setupRouter(t)
	token := env.signIn(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown container", http.MethodPatch, "/containers/missing", map[string]any{"port": 8080}, http.StatusNotFound},
		{"invalid container", http.MethodPost, "/containers", map[string]any{"name": "X", "imageUrl": "nginx", "port": 80}, http.StatusBadRequest},
		{"environment before deploy", http.MethodPost, "/environments", map[string]string{"name": "staging"}, http.StatusBadRequest},
		{"manifest before deploy", http.MethodGet, "/manifest", nil, http.StatusBadRequest},
		{"unknown service", http.MethodPut, "/containers/abc/access/queue", map[string]bool{"enabled": true}, http.StatusBadRequest},
		{"unknown catalog entry", http.MethodPost, "/containers/catalog", map[string]string{"catalogId": "cobol"}, http.StatusNotFound},
		{"recommendation without answers", http.MethodGet, "/recommendation", nil, http.StatusNotFound},
		{"malformed body", http.MethodPut, "/questionnaire", "not an object", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := env.do(t, tc.method, tc.path, token, tc.body)
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		repository.ErrNotFound:                                   http.StatusNotFound,
		state.ErrNoProject:                                       http.StatusBadRequest,
		state.ErrEnvironmentNotFound:                             http.StatusNotFound,
		session.ErrUnauthorized:                                  http.StatusUnauthorized,
		state.ErrClosed:                                          http.StatusServiceUnavailable,
		fmt.Errorf("update: %w", state.ErrClosed):                http.StatusServiceUnavailable,
		fmt.Errorf("wrapped: %w", repository.ErrInvalidArgument): http.StatusBadRequest,
	}
	for err, want := range cases {
		if got := statusFor(err); got != want {
			t.Fatalf("statusFor(%v) = %d, want %d", err, got, want)
		}
	}
}

func TestEvictedStoreAsksClientToRetry(t *testing.T) {
	env := setupRouter(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/questionnaire", nil)
	env.router.writeServiceError(rr, req, fmt.Errorf("set questionnaire: %w", state.ErrClosed))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "1" {
		t.Fatalf("expected Retry-After 1, got %q", got)
	}
}

func TestEnvironmentActions(t *testing.T) {
	env := setupRouter(t)
	token := env.signIn(t)
	env.do(t, http.MethodPost, "/containers", token, map[string]any{"name": "web", "imageUrl": "nginx:1.27", "port": 80})
	if rr := env.do(t, http.MethodPost, "/deploy", token, nil); rr.Code != http.StatusAccepted {
		t.Fatalf("deploy: expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
	env.sched.Advance(time.Second)

	rr := env.do(t, http.MethodPost, "/environments", token, map[string]string{"name": "Staging", "type": "staging"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var staging domain.Environment
	decode(t, rr, &staging)

	rr = env.do(t, http.MethodPost, "/environments/"+staging.ID+"/pause", token, nil)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("pause: expected 202, got %d", rr.Code)
	}
	var paused domain.Environment
	decode(t, rr, &paused)
	if paused.Status != domain.StatusPaused {
		t.Fatalf("expected paused, got %s", paused.Status)
	}

	rr = env.do(t, http.MethodPost, "/environments/"+staging.ID+"/resume", token, nil)
	var resumed domain.Environment
	decode(t, rr, &resumed)
	if resumed.Status != domain.StatusProvisioning {
		t.Fatalf("expected provisioning, got %s", resumed.Status)
	}

	rr = env.do(t, http.MethodPost, "/environments/"+staging.ID+"/explode", token, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown action: expected 404, got %d", rr.Code)
	}

	if rr := env.do(t, http.MethodDelete, "/environments/"+staging.ID, token, nil); rr.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", rr.Code)
	}
	rr = env.do(t, http.MethodPost, "/environments/"+staging.ID+"/deploy", token, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("deploy deleted: expected 400, got %d", rr.Code)
	}
}

func TestRateLimitExceeded(t *testing.T) {
	env := setupRouter(t)
	reset := time.Unix(1_950_000_000, 0)
	env.limiter.allowFn = func(key string, rule RateRule) RateDecision {
		return RateDecision{ResetAt: reset}
	}
	rr := env.do(t, http.MethodGet, "/catalog", "", nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if got := rr.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("unexpected remaining header %q", got)
	}
	if got := rr.Header().Get("X-RateLimit-Reset"); got != "1950000000" {
		t.Fatalf("unexpected reset header %q", got)
	}
	hits := testutil.ToFloat64(env.router.rateLimitHits.With(prometheus.Labels{"route": "catalog", "key": "ip"}))
	if hits != 1 {
		t.Fatalf("expected one rate limit hit, got %v", hits)
	}
}

func TestRateLimitKeysBySession(t *testing.T) {
	env := setupRouter(t)
	token := env.signIn(t)
	env.do(t, http.MethodGet, "/state", token, nil)

	env.limiter.mu.Lock()
	defer env.limiter.mu.Unlock()
	last := env.limiter.calls[len(env.limiter.calls)-1]
	if !strings.HasPrefix(last, "session:") {
		t.Fatalf("expected session rate key, got %q", last)
	}
}

func TestRequestMetricsRecorded(t *testing.T) {
	env := setupRouter(t)
	env.do(t, http.MethodGet, "/catalog", "", nil)
	got := testutil.ToFloat64(env.router.requestTotal.With(prometheus.Labels{"method": "GET", "route": "GET /catalog", "status": "200"}))
	if got != 1 {
		t.Fatalf("expected one recorded request, got %v", got)
	}
	rr := env.do(t, http.MethodGet, "/metrics", "", nil)
	if !strings.Contains(rr.Body.String(), "unhazzle_api_http_requests_total") {
		t.Fatalf("metrics output missing request counter")
	}
}

func TestMemoryRateLimiterWindow(t *testing.T) {
	rl := NewMemoryRateLimiter().(*memoryRateLimiter)
	defer rl.Close()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	rule := RateRule{Limit: 2, Window: time.Minute}
	ctx := context.Background()

	for i, wantRemaining := range []int{1, 0} {
		d := rl.Allow(ctx, "ip:1", rule)
		if !d.Allowed || d.Remaining != wantRemaining {
			t.Fatalf("request %d: got %+v", i, d)
		}
	}
	if d := rl.Allow(ctx, "ip:1", rule); d.Allowed || !d.ResetAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("third request should be limited, got %+v", d)
	}
	if d := rl.Allow(ctx, "ip:2", rule); !d.Allowed {
		t.Fatalf("other keys keep their own budget")
	}
	now = now.Add(time.Minute)
	if !rl.Allow(ctx, "ip:1", rule).Allowed {
		t.Fatalf("new window should reset the counter")
	}
	if removed := rl.prune(now.Add(2 * time.Minute)); removed != 2 {
		t.Fatalf("expected both windows pruned, got %d", removed)
	}
	if !rl.Allow(ctx, "ip:1", RateRule{}).Allowed {
		t.Fatalf("zero limit means unlimited")
	}
}

func TestRateMetricKey(t *testing.T) {
	cases := map[string]string{
		"session:abc": "session",
		"ip:10.0.0.1": "ip",
		"":            "unknown",
		"weird":       "unknown",
	}
	for in, want := range cases {
		if got := rateMetricKey(in); got != want {
			t.Fatalf("rateMetricKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStateWebsocketStreamsCommits(t *testing.T) {
	env := setupRouter(t)
	token := env.signIn(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	header := http.Header{"Authorization": []string{"Bearer " + token}}
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/state", header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first session.Event
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if first.Operation != "snapshot" || first.State.User == nil {
		t.Fatalf("unexpected first event %+v", first)
	}
	if n := env.router.hub.Subscribers(sessionIDFor(t, env, token)); n != 1 {
		t.Fatalf("expected subscription before snapshot, have %d subscribers", n)
	}

	body := strings.NewReader(`{"appType":"api","traffic":"low","database":"none","cache":"none"}`)
	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/questionnaire", body)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("questionnaire: %v", err)
	}
	resp.Body.Close()

	var next session.Event
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatalf("read change: %v", err)
	}
	if next.Operation != "set_questionnaire" || next.Version != first.Version+1 {
		t.Fatalf("unexpected change event %+v", next)
	}
}

func sessionIDFor(t *testing.T, env *testEnv, token string) string {
	t.Helper()
	id, err := env.router.sessions.Authenticate(token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	return id
}
