package httpx

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const rateSweepEvery = 5 * time.Minute

// RateRule is a request budget per key over a fixed window.
type RateRule struct {
	Limit  int
	Window time.Duration
}

func (rule RateRule) unlimited() bool {
	return rule.Limit <= 0
}

func (rule RateRule) withDefaults() RateRule {
	if rule.Window <= 0 {
		rule.Window = time.Minute
	}
	return rule
}

// RateDecision is the limiter's answer for one request.
type RateDecision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

func decide(rule RateRule, hits int, resetAt time.Time) RateDecision {
	return RateDecision{
		Allowed:   hits <= rule.Limit,
		Remaining: max(rule.Limit-hits, 0),
		ResetAt:   resetAt,
	}
}

// RateLimiter counts hits per key. Implementations are safe for concurrent use.
type RateLimiter interface {
	Allow(ctx context.Context, key string, rule RateRule) RateDecision
	Close()
}

type rateKeyFunc func(*http.Request) string

type fixedWindow struct {
	hits    int
	resetAt time.Time
}

type memoryRateLimiter struct {
	mu      sync.Mutex
	windows map[string]*fixedWindow
	now     func() time.Time
	stop    context.CancelFunc
}

// NewMemoryRateLimiter returns a limiter local to this process.
func NewMemoryRateLimiter() RateLimiter {
	ctx, stop := context.WithCancel(context.Background())
	rl := &memoryRateLimiter{
		windows: make(map[string]*fixedWindow),
		now:     time.Now,
		stop:    stop,
	}
	go rl.sweep(ctx, rateSweepEvery)
	return rl
}

// Allow does not count requests once the window is exhausted.
func (rl *memoryRateLimiter) Allow(_ context.Context, key string, rule RateRule) RateDecision {
	if rule.unlimited() {
		return RateDecision{Allowed: true}
	}
	rule = rule.withDefaults()
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	win, ok := rl.windows[key]
	if !ok || !now.Before(win.resetAt) {
		win = &fixedWindow{resetAt: now.Add(rule.Window)}
		rl.windows[key] = win
	}
	if win.hits >= rule.Limit {
		return RateDecision{ResetAt: win.resetAt}
	}
	win.hits++
	return decide(rule, win.hits, win.resetAt)
}

func (rl *memoryRateLimiter) sweep(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.prune(rl.now())
		}
	}
}

func (rl *memoryRateLimiter) prune(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	removed := 0
	for key, win := range rl.windows {
		if !now.Before(win.resetAt) {
			delete(rl.windows, key)
			removed++
		}
	}
	return removed
}

func (rl *memoryRateLimiter) Close() {
	rl.stop()
}

// withRateLimit rejects requests over the rule's budget with 429. An empty
// key falls back to the client address.
func (r *Router) withRateLimit(route string, rule RateRule, keyFn rateKeyFunc, next http.HandlerFunc) http.HandlerFunc {
	if rule.unlimited() || r.limiter == nil {
		return next
	}
	return func(w http.ResponseWriter, req *http.Request) {
		key := keyFn(req)
		if key == "" {
			key = rateLimitKeyIP(req)
		}
		decision := r.limiter.Allow(req.Context(), key, rule)
		writeRateHeaders(w, rule, decision)
		if !decision.Allowed {
			r.recordRateLimitHit(route, rateMetricKey(key))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, req)
	}
}

// sessionRoute authenticates, rate limits per session and resolves the store.
func (r *Router) sessionRoute(route string, rule RateRule, next storeHandler) http.HandlerFunc {
	return r.requireSession(r.withRateLimit(route, rule, rateLimitKeySession, r.withStore(next)))
}

func writeRateHeaders(w http.ResponseWriter, rule RateRule, decision RateDecision) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	if !decision.ResetAt.IsZero() {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
	}
}

func rateLimitKeySession(req *http.Request) string {
	if info, ok := sessionFromContext(req.Context()); ok && info.SessionID != "" {
		return "session:" + info.SessionID
	}
	return ""
}

func rateLimitKeyIP(req *http.Request) string {
	ip := clientIP(req)
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}

// rateMetricKey keeps only the key kind so metric labels stay bounded.
func rateMetricKey(key string) string {
	kind, _, found := strings.Cut(key, ":")
	if !found || kind == "" {
		return "unknown"
	}
	return kind
}
