package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ptrus/mobile-pipeline/cache"
	"github.com/ptrus/mobile-pipeline/config"
	"github.com/ptrus/mobile-pipeline/db"
	"github.com/ptrus/mobile-pipeline/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, database.InitSchema())
	return database
}

func newTestServer(t *testing.T, cfg config.ServerConfig, backend cache.Backend, database *db.DB) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(cfg, backend, database, testLogger()).Router())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, token string, body io.Reader) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, config.ServerConfig{Token: "secret"}, cache.NewMemoryBackend(), nil)

	resp := do(t, http.MethodGet, srv.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "OK", string(body))
}

func TestCacheRoutes(t *testing.T) {
	srv := newTestServer(t, config.ServerConfig{Token: "secret"}, cache.NewMemoryBackend(), nil)

	resp := do(t, http.MethodPut, srv.URL+"/cache/node-modules-linux-abc", "", strings.NewReader("data"))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = do(t, http.MethodPut, srv.URL+"/cache/node-modules-linux-abc", "wrong", strings.NewReader("data"))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = do(t, http.MethodPut, srv.URL+"/cache/node-modules-linux-abc", "secret", strings.NewReader("data"))
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = do(t, http.MethodPut, srv.URL+"/cache/node-modules-linux-abc", "secret", strings.NewReader("other"))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/cache/node-modules-linux-abc", "secret", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "data", string(body))

	resp = do(t, http.MethodHead, srv.URL+"/cache/node-modules-linux-abc", "secret", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodHead, srv.URL+"/cache/missing", "secret", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/cache/missing", "secret", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/cache?prefix=node-modules-linux-", "secret", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var latest cache.LatestResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&latest))
	assert.Equal(t, "node-modules-linux-abc", latest.Key)

	resp = do(t, http.MethodGet, srv.URL+"/cache?prefix=gradle-", "secret", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/cache", "secret", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestArchiveThroughServer(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)
	backend, err := cache.NewLocalBackend(t.TempDir(), database)
	require.NoError(t, err)
	srv := newTestServer(t, config.ServerConfig{Token: "secret"}, backend, database)

	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "node_modules", "react"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "node_modules", "react", "index.js"), []byte("module.exports = {}"), 0o644))

	store := cache.NewArchive(cache.NewHTTPBackend(srv.URL, "secret"), src, testLogger())
	require.NoError(t, store.Save(ctx, []string{"node_modules"}, "node-modules-linux-abc"))
	require.ErrorIs(t, store.Save(ctx, []string{"node_modules"}, "node-modules-linux-abc"), cache.ErrKeyExists)

	dst := t.TempDir()
	store = cache.NewArchive(cache.NewHTTPBackend(srv.URL, "secret"), dst, testLogger())
	matched, err := store.Restore(ctx, []string{"node_modules"}, "node-modules-linux-def", "node-modules-linux-")
	require.NoError(t, err)
	assert.Equal(t, "node-modules-linux-abc", matched)

	data, err := os.ReadFile(filepath.Join(dst, "node_modules", "react", "index.js"))
	require.NoError(t, err)
	assert.Equal(t, "module.exports = {}", string(data))

	n, err := database.CountCacheEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunRoutes(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)
	srv := newTestServer(t, config.ServerConfig{}, cache.NewMemoryBackend(), database)

	run, err := database.CreateRun(ctx, models.PlatformIOS, "production")
	require.NoError(t, err)
	require.NoError(t, database.FinishRun(ctx, run.ID, db.RunOutcome{
		Mode:            models.BuildModeNative,
		FingerprintHash: "h1",
		BuildNumber:     "42",
		Status:          models.RunStatusSucceeded,
	}))

	resp := do(t, http.MethodGet, srv.URL+"/runs", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var runs []models.Run
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&runs))
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
	assert.Equal(t, "42", runs[0].BuildNumber.String)

	resp = do(t, http.MethodGet, srv.URL+"/runs/"+run.ID, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got models.Run
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, models.RunStatusSucceeded, got.Status)

	resp = do(t, http.MethodGet, srv.URL+"/runs/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/runs?limit=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRunRoutesWithoutDB(t *testing.T) {
	srv := newTestServer(t, config.ServerConfig{}, cache.NewMemoryBackend(), nil)

	resp := do(t, http.MethodGet, srv.URL+"/runs", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestCORS(t *testing.T) {
	srv := newTestServer(t, config.ServerConfig{AllowedOrigins: []string{"https://ci.example.com"}}, cache.NewMemoryBackend(), nil)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://ci.example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()
	assert.Equal(t, "https://ci.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}
