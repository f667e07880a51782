package httpx

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/splax/unhazzle/internal/service/pricing"
	"github.com/splax/unhazzle/internal/service/session"
	"github.com/splax/unhazzle/internal/ws"
)

// HealthCheck probes one dependency.
type HealthCheck func(context.Context) error

// Deps are the collaborators of a Router.
type Deps struct {
	Logger    *slog.Logger
	Sessions  *session.Manager
	Estimator pricing.Estimator
	Hub       *ws.Hub
	Limiter   RateLimiter
	Registry  prometheus.Registerer
	Health    map[string]HealthCheck
	// Heartbeat is the SSE keep-alive interval.
	Heartbeat time.Duration
}

// Router wires HTTP endpoints to services.
type Router struct {
	mux       *http.ServeMux
	logger    *slog.Logger
	sessions  *session.Manager
	estimator pricing.Estimator
	hub       *ws.Hub
	upgrader  websocket.Upgrader
	limiter   RateLimiter
	health    map[string]HealthCheck
	heartbeat time.Duration

	registry           prometheus.Registerer
	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
	sessionsActive     prometheus.GaugeFunc
}

const (
	healthCheckTimeout = 2 * time.Second
	defaultHeartbeat   = 25 * time.Second
)

var (
	ruleSignIn = RateRule{Limit: 10, Window: time.Minute}
	rulePublic = RateRule{Limit: 120, Window: time.Minute}
	ruleWrite  = RateRule{Limit: 60, Window: time.Minute}
	ruleRead   = RateRule{Limit: 240, Window: time.Minute}
	ruleStream = RateRule{Limit: 30, Window: 30 * time.Second}
)

// NewRouter assembles routes with dependencies.
func NewRouter(deps Deps) *Router {
	r := &Router{
		mux:       http.NewServeMux(),
		logger:    deps.Logger,
		sessions:  deps.Sessions,
		estimator: deps.Estimator,
		hub:       deps.Hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:   deps.Limiter,
		health:    deps.Health,
		heartbeat: deps.Heartbeat,
		registry:  deps.Registry,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	if r.registry == nil {
		r.registry = prometheus.DefaultRegisterer
	}
	if r.heartbeat <= 0 {
		r.heartbeat = defaultHeartbeat
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, r.audit(pattern, h))
}

func (r *Router) register() {
	r.handle("GET /healthz", r.handleHealthz)
	r.handle("GET /metrics", r.metricsHandler())
	r.handle("GET /catalog", r.withRateLimit("catalog", rulePublic, rateLimitKeyIP, r.handleCatalog))
	r.handle("POST /estimate", r.withRateLimit("estimate", rulePublic, rateLimitKeyIP, r.handleEstimate))

	r.handle("POST /session", r.withRateLimit("session", ruleSignIn, rateLimitKeyIP, r.handleSignIn))
	r.handle("DELETE /session", r.requireSession(r.withRateLimit("session", ruleWrite, rateLimitKeySession, r.handleSignOut)))

	r.handle("GET /state", r.sessionRoute("state", ruleRead, r.handleState))
	r.handle("PUT /questionnaire", r.sessionRoute("questionnaire", ruleWrite, r.handleQuestionnaire))
	r.handle("GET /recommendation", r.sessionRoute("recommendation", ruleRead, r.handleRecommendation))

	r.handle("POST /containers", r.sessionRoute("containers", ruleWrite, r.handleAddContainer))
	r.handle("POST /containers/catalog", r.sessionRoute("containers", ruleWrite, r.handleAddCatalogContainer))
	r.handle("PATCH /containers/{id}", r.sessionRoute("containers", ruleWrite, r.handleUpdateContainer))
	r.handle("DELETE /containers/{id}", r.sessionRoute("containers", ruleWrite, r.handleRemoveContainer))
	r.handle("PUT /containers/{id}/access/{service}", r.sessionRoute("containers", ruleWrite, r.handleServiceAccess))

	r.handle("PUT /database", r.sessionRoute("services", ruleWrite, r.handleSetDatabase))
	r.handle("DELETE /database", r.sessionRoute("services", ruleWrite, r.handleRemoveDatabase))
	r.handle("PUT /cache", r.sessionRoute("services", ruleWrite, r.handleSetCache))
	r.handle("DELETE /cache", r.sessionRoute("services", ruleWrite, r.handleRemoveCache))

	r.handle("POST /deploy", r.sessionRoute("deploy", ruleWrite, r.handleMarkDeployed))
	r.handle("PATCH /project", r.sessionRoute("project", ruleWrite, r.handleUpdateProject))
	r.handle("POST /environments", r.sessionRoute("environments", ruleWrite, r.handleCreateEnvironment))
	r.handle("PATCH /environments/{id}", r.sessionRoute("environments", ruleWrite, r.handleUpdateEnvironment))
	r.handle("DELETE /environments/{id}", r.sessionRoute("environments", ruleWrite, r.handleDeleteEnvironment))
	r.handle("POST /environments/{id}/{action}", r.sessionRoute("environments", ruleWrite, r.handleEnvironmentAction))
	r.handle("GET /environments/{id}/estimate", r.sessionRoute("estimate", ruleRead, r.handleEnvironmentEstimate))
	r.handle("GET /manifest", r.sessionRoute("manifest", ruleRead, r.handleManifest))

	r.handle("GET /ws/state", r.requireSession(r.withRateLimit("stream", ruleStream, rateLimitKeySession, r.handleStateWS)))
	r.handle("GET /events", r.requireSession(r.withRateLimit("stream", ruleStream, rateLimitKeySession, r.handleEvents)))
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	components := make(map[string]any)
	status := "ok"
	names := make([]string, 0, len(r.health))
	for name := range r.health {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		err := r.health[name](ctx)
		cancel()
		if err != nil {
			status = "degraded"
			components[name] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
			continue
		}
		components[name] = map[string]any{"status": "up"}
	}
	components["sessions"] = map[string]any{"status": "up", "active": len(r.sessions.Active())}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if info, ok := sessionFromContext(ctx); ok {
			actor = "session"
			fields = append(fields, "session_id", info.SessionID)
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Debug("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		sr.status = http.StatusSwitchingProtocols
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
