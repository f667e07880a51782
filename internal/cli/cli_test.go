package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/splax/unhazzle/internal/domain"
)

type fakeAPI struct {
	*httptest.Server
	signedOut bool
	lastAuth  string
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /session", func(w http.ResponseWriter, r *http.Request) {
		var user domain.User
		_ = json.NewDecoder(r.Body).Decode(&user)
		if user.Name == "" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "user name is required"})
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"session": map[string]string{"id": "sess-1", "token": "tok-" + user.Name}})
	})
	mux.HandleFunc("DELETE /session", func(w http.ResponseWriter, r *http.Request) {
		f.signedOut = true
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /state", func(w http.ResponseWriter, r *http.Request) {
		f.lastAuth = r.Header.Get("Authorization")
		st := domain.State{
			User:                &domain.User{Name: "Ada"},
			ActiveEnvironmentID: "env-1",
			Project: &domain.Project{
				Name: "My App",
				Slug: "my-app",
				Environments: []domain.Environment{
					{ID: "env-1", Name: "production", Type: domain.EnvironmentProduction, Status: domain.StatusActive, BaseDomain: "production.my-app.unhazzle.app"},
					{ID: "env-2", Name: "old", Status: domain.StatusDeleted},
				},
			},
		}
		_ = json.NewEncoder(w).Encode(st)
	})
	mux.HandleFunc("POST /estimate", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(domain.CostBreakdown{Application: 10, Total: 12.5, Tier: "CX22", Servers: 1})
	})
	mux.HandleFunc("GET /manifest", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write([]byte("project: my-app\n"))
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func run(t *testing.T, cfgPath string, args ...string) (string, string, error) {
	t.Helper()
	return runWithInput(t, "", cfgPath, args...)
}

func runWithInput(t *testing.T, input, cfgPath string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCommand(strings.NewReader(input), &out, &errOut)
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func readConfig(t *testing.T, path string) map[string]any {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var cfg map[string]any
	require.NoError(t, yaml.Unmarshal(raw, &cfg))
	return cfg
}

func TestLoginStoresTokenAndURL(t *testing.T) {
	api := newFakeAPI(t)
	cfgPath := filepath.Join(t.TempDir(), "unhazzle.yaml")

	out, _, err := run(t, cfgPath, "--api-url", api.URL, "login", "--name", "Ada")
	require.NoError(t, err)
	assert.Contains(t, out, "signed in as Ada")

	cfg := readConfig(t, cfgPath)
	assert.Equal(t, "tok-Ada", cfg[keyToken])
	assert.Equal(t, api.URL, cfg[keyAPIURL])

	info, err := os.Stat(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestStatusUsesStoredSession(t *testing.T) {
	api := newFakeAPI(t)
	cfgPath := filepath.Join(t.TempDir(), "unhazzle.yaml")
	_, _, err := run(t, cfgPath, "--api-url", api.URL, "login", "--name", "Ada")
	require.NoError(t, err)

	out, _, err := run(t, cfgPath, "status")
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-Ada", api.lastAuth)
	assert.Contains(t, out, "My App")
	assert.Contains(t, out, "production.my-app.unhazzle.app")
	assert.NotContains(t, out, "old")
}

func TestCommandsRequireLogin(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "unhazzle.yaml")
	_, errOut, err := run(t, cfgPath, "status")
	require.Error(t, err)
	assert.Contains(t, errOut, "not signed in")
}

func TestLoginPromptsForName(t *testing.T) {
	api := newFakeAPI(t)
	cfgPath := filepath.Join(t.TempDir(), "unhazzle.yaml")

	out, _, err := runWithInput(t, "Grace\n", cfgPath, "--api-url", api.URL, "login")
	require.NoError(t, err)
	assert.Contains(t, out, "Name: ")
	assert.Equal(t, "tok-Grace", readConfig(t, cfgPath)[keyToken])

	_, errOut, err := runWithInput(t, "\n", cfgPath, "login")
	require.Error(t, err)
	assert.Contains(t, errOut, "user name is required")
}

func TestLogoutClearsToken(t *testing.T) {
	api := newFakeAPI(t)
	cfgPath := filepath.Join(t.TempDir(), "unhazzle.yaml")
	_, _, err := run(t, cfgPath, "--api-url", api.URL, "login", "--name", "Ada")
	require.NoError(t, err)

	_, _, err = run(t, cfgPath, "logout")
	require.NoError(t, err)
	assert.True(t, api.signedOut)
	assert.Equal(t, "", readConfig(t, cfgPath)[keyToken])
}

func TestEstimateRendersBreakdown(t *testing.T) {
	api := newFakeAPI(t)
	cfgPath := filepath.Join(t.TempDir(), "unhazzle.yaml")
	out, _, err := run(t, cfgPath, "--api-url", api.URL, "estimate", "--database", "postgres")
	require.NoError(t, err)
	assert.Contains(t, out, "€12.50")
	assert.Contains(t, out, "tier CX22 on 1 server(s)")
}

func TestManifestWritesFile(t *testing.T) {
	api := newFakeAPI(t)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "unhazzle.yaml")
	_, _, err := run(t, cfgPath, "--api-url", api.URL, "login", "--name", "Ada")
	require.NoError(t, err)

	target := filepath.Join(dir, "stack.yaml")
	_, _, err = run(t, cfgPath, "manifest", "-o", target)
	require.NoError(t, err)
	body, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "project: my-app\n", string(body))
}
