package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/splax/unhazzle/internal/domain"
)

func TestNewNormalisesBaseURL(t *testing.T) {
	cli, err := New("localhost:4000/")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if cli.BaseURL() != "http://localhost:4000" {
		t.Fatalf("unexpected base url %q", cli.BaseURL())
	}
}

func TestSignInAndState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/session":
			var user domain.User
			_ = json.NewDecoder(r.Body).Decode(&user)
			if user.Name != "Ada" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"session":{"id":"s1","token":"tok"}}`))
		case r.URL.Path == "/state":
			if r.Header.Get("Authorization") != "Bearer tok" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"authentication failed"}`))
				return
			}
			_, _ = w.Write([]byte(`{"containers":[],"deployed":false,"version":3,"user":{"name":"Ada"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cli, err := New(srv.URL)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	sess, err := cli.SignIn(ctx, "Ada", "")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if sess.Token != "tok" {
		t.Fatalf("unexpected session %+v", sess)
	}
	st, err := cli.State(ctx, sess.Token)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if st.Version != 3 || st.User == nil || st.User.Name != "Ada" {
		t.Fatalf("unexpected state %+v", st)
	}

	_, err = cli.State(ctx, "stale")
	var apiErr APIError
	if !errors.As(err, &apiErr) || !apiErr.Unauthorized() || apiErr.Message != "authentication failed" {
		t.Fatalf("expected unauthorized APIError, got %v", err)
	}
}

func TestManifestReturnsRawBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/manifest" || r.URL.Query().Get("environment") != "env 1" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write([]byte("apiVersion: unhazzle.app/v1\n"))
	}))
	defer srv.Close()

	cli, _ := New(srv.URL)
	doc, err := cli.Manifest(context.Background(), "tok", "env 1")
	if err != nil {
		t.Fatalf("manifest: %v", err)
	}
	if string(doc) != "apiVersion: unhazzle.app/v1\n" {
		t.Fatalf("unexpected manifest %q", doc)
	}
}

func TestEnvironmentActionPath(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		var payload map[string]string
		_ = json.NewDecoder(r.Body).Decode(&payload)
		gotBody = payload["targetId"]
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"id":"prod","status":"provisioning"}`))
	}))
	defer srv.Close()

	cli, _ := New(srv.URL)
	env, err := cli.PromoteEnvironment(context.Background(), "tok", "staging", "prod")
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if gotPath != "POST /environments/staging/promote" || gotBody != "prod" {
		t.Fatalf("unexpected request %q body %q", gotPath, gotBody)
	}
	if env.Status != domain.StatusProvisioning {
		t.Fatalf("unexpected env %+v", env)
	}
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	for _, base := range []string{"ftp://example.com", "http://"} {
		if _, err := New(base); err == nil {
			t.Fatalf("expected %q to be rejected", base)
		}
	}
}

func TestRequestsKeepBasePathAndQuery(t *testing.T) {
	var gotPath, gotQuery, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery, gotUA = r.URL.Path, r.URL.Query().Get("environment"), r.UserAgent()
		_, _ = w.Write([]byte("project: demo\n"))
	}))
	defer srv.Close()

	cli, err := New(srv.URL+"/api/", WithUserAgent("unhazzle-test"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	body, err := cli.Manifest(context.Background(), "tok", "env 1")
	if err != nil {
		t.Fatalf("manifest: %v", err)
	}
	if string(body) != "project: demo\n" {
		t.Fatalf("unexpected body %q", body)
	}
	if gotPath != "/api/manifest" || gotQuery != "env 1" || gotUA != "unhazzle-test" {
		t.Fatalf("unexpected request path=%q environment=%q ua=%q", gotPath, gotQuery, gotUA)
	}
}
