package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/splax/unhazzle/internal/service/state"
)

type authContextKey string

type sessionInfo struct {
	SessionID string
}

const contextKeySession authContextKey = "unhazzle-session"

type contextSetter interface {
	SetContext(context.Context)
}

// storeHandler receives the state store of the authenticated session.
type storeHandler func(w http.ResponseWriter, req *http.Request, store *state.Store)

// requireSession ensures the request carries a valid session token before invoking the handler.
func (r *Router) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, _, ok := r.ensureSession(w, req)
		if !ok {
			return
		}
		if setter, ok := w.(contextSetter); ok {
			setter.SetContext(ctx)
		}
		next(w, req.WithContext(ctx))
	}
}

// ensureSession validates the bearer token and enriches the context.
// Browsers opening event streams cannot set headers, so the token may also
// arrive as the access_token query parameter.
func (r *Router) ensureSession(w http.ResponseWriter, req *http.Request) (context.Context, sessionInfo, bool) {
	token, err := bearerToken(req.Header.Get("Authorization"))
	if err != nil {
		token = strings.TrimSpace(req.URL.Query().Get("access_token"))
	}
	if token == "" {
		r.logger.Warn("authorization header invalid", "error", err, "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, "authentication required")
		return req.Context(), sessionInfo{}, false
	}
	id, err := r.sessions.Authenticate(token)
	if err != nil {
		r.logger.Warn("session token rejected", "error", err, "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, "authentication failed")
		return req.Context(), sessionInfo{}, false
	}
	info := sessionInfo{SessionID: id}
	return context.WithValue(req.Context(), contextKeySession, info), info, true
}

// withStore resolves the session's store for next.
func (r *Router) withStore(next storeHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		info, ok := sessionFromContext(req.Context())
		if !ok {
			r.logger.Error("session context missing", "path", req.URL.Path)
			writeError(w, http.StatusInternalServerError, "authorization context missing")
			return
		}
		store, err := r.sessions.Store(req.Context(), info.SessionID)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		next(w, req, store)
	}
}

// sessionFromContext extracts session metadata from context.
func sessionFromContext(ctx context.Context) (sessionInfo, bool) {
	info, ok := ctx.Value(contextKeySession).(sessionInfo)
	return info, ok
}

func bearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty bearer token")
	}
	return token, nil
}
