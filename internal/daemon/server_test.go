package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/matrixci/internal/config"
)

func testDaemon(t *testing.T) *Daemon {
	t.Helper()
	cfg := &config.Config{
		Project:  config.ProjectConfig{Name: "acme"},
		Tool:     config.ToolConfig{Binary: "/bin/true"},
		Matrix:   config.MatrixConfig{Channels: []string{"stable"}},
		Branches: []string{"master"},
		Packages: []config.Package{{Name: "core", Dir: ".", Steps: []string{"build"}}},
		Daemon:   &config.DaemonConfig{Listen: "127.0.0.1:0", DataDir: t.TempDir()},
	}
	d, err := New("matrixci.yaml", cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = d.scheduler.Stop()
		_ = d.history.Close()
	})
	return d
}

func postWebhook(t *testing.T, d *Daemon, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	rec := httptest.NewRecorder()
	d.server.http.Handler.ServeHTTP(rec, req)
	return rec
}

func TestWebhookQueuesRunForAllowedBranch(t *testing.T) {
	d := testDaemon(t)

	rec := postWebhook(t, d, `{"branch":"master","commit":"abc123"}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "queued", resp["status"])

	// Let the queued run drain so cleanup does not race it.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, d.workers.StopAndWait(ctx))
}

func TestWebhookSkipsGatedBranch(t *testing.T) {
	d := testDaemon(t)

	rec := postWebhook(t, d, `{"branch":"feature/wip","commit":"abc123"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "skipped", resp["status"])
}

func TestWebhookRejectsBadPayload(t *testing.T) {
	d := testDaemon(t)

	assert.Equal(t, http.StatusBadRequest, postWebhook(t, d, `{not json`).Code)
	assert.Equal(t, http.StatusBadRequest, postWebhook(t, d, `{"commit":"abc123"}`).Code)
}

func TestHealthEndpoint(t *testing.T) {
	d := testDaemon(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	d.server.http.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestMetricsEndpoint(t *testing.T) {
	d := testDaemon(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	d.server.http.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRunsEndpointEmptyHistory(t *testing.T) {
	d := testDaemon(t)

	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	rec := httptest.NewRecorder()
	d.server.http.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
