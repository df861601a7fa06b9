package server_test

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/systmms/secretxfer/internal/logging"
	"github.com/systmms/secretxfer/internal/server"
	"github.com/systmms/secretxfer/pkg/secretstore"
	"github.com/systmms/secretxfer/tests/fakes"
)

func newTestServer(t *testing.T, store secretstore.Store, secretName string) *httptest.Server {
	t.Helper()
	cfg := server.DefaultConfig()
	cfg.SecretName = secretName
	ts := httptest.NewServer(server.New(store, cfg, nil).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string) (int, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	return decode(t, resp)
}

func decode(t *testing.T, resp *http.Response) (int, map[string]interface{}) {
	t.Helper()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func seeded(value string) *fakes.FlakyStore {
	store := fakes.NewFlakyStore("app-vault")
	store.Put("success-code", secretstore.NewRecord("success-code", value))
	return store
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t, seeded("42"), "success-code")

	for _, path := range []string{"/", "/health"} {
		t.Run(path, func(t *testing.T) {
			status, body := getJSON(t, ts.URL+path)
			assert.Equal(t, http.StatusOK, status)
			assert.Equal(t, "healthy", body["status"])
			assert.Equal(t, "app-vault", body["store"])
		})
	}

	resp, err := http.Get(ts.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSecretEndpoint(t *testing.T) {
	store := seeded("open-sesame")
	ts := newTestServer(t, store, "success-code")

	status, body := getJSON(t, ts.URL+"/api/secret")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "open-sesame", body["code"])
	assert.Equal(t, 1, store.FetchCalls())
}

func TestSecretEndpointLogsRedactedValue(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	cfg := server.DefaultConfig()
	cfg.SecretName = "success-code"
	ts := httptest.NewServer(server.New(seeded("open-sesame"), cfg, logging.NewFromZap(zap.New(core))).Handler())
	t.Cleanup(ts.Close)

	status, _ := getJSON(t, ts.URL+"/api/secret")
	require.Equal(t, http.StatusOK, status)

	require.Equal(t, 1, logs.FilterMessageSnippet("Retrieved success-code").Len())
	for _, entry := range logs.All() {
		assert.NotContains(t, entry.Message, "open-sesame")
	}
	assert.Contains(t, logs.FilterMessageSnippet("Retrieved success-code").All()[0].Message, "[REDACTED]")
}

func TestSecretEndpointFailures(t *testing.T) {
	tests := []struct {
		name  string
		store *fakes.FlakyStore
	}{
		{name: "missing_secret", store: fakes.NewFlakyStore("app-vault")},
		{name: "transient_error_not_retried", store: seeded("v").FailFetch(1, 503)},
		{name: "forbidden", store: seeded("v").FailFetch(1, 403)},
		{name: "empty_value", store: seeded("")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, tt.store, "success-code")

			status, body := getJSON(t, ts.URL+"/api/secret")
			assert.Equal(t, http.StatusInternalServerError, status)
			assert.Equal(t, "failure", body["status"])
			assert.NotEmpty(t, body["error"])
			assert.NotContains(t, body, "code")
			assert.Equal(t, 1, tt.store.FetchCalls())
		})
	}
}

func TestStatusEndpoint(t *testing.T) {
	ts := newTestServer(t, seeded("open-sesame"), "success-code")

	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, string(raw), "open-sesame")

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, true, body["secret_retrieved"])
}

func TestStatusEndpointFailure(t *testing.T) {
	ts := newTestServer(t, fakes.NewFlakyStore("app-vault"), "success-code")

	status, body := getJSON(t, ts.URL+"/api/status")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, false, body["secret_retrieved"])
}

func TestNoSecretNameConfigured(t *testing.T) {
	store := seeded("v")
	ts := newTestServer(t, store, "")

	status, _ := getJSON(t, ts.URL+"/api/secret")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Zero(t, store.FetchCalls())
}

func TestCheckSecretEndpoint(t *testing.T) {
	ts := newTestServer(t, seeded("open-sesame"), "success-code")

	post := func(body string) (int, map[string]interface{}) {
		resp, err := http.Post(ts.URL+"/api/check-secret", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		return decode(t, resp)
	}

	status, body := post(`{"input":"hello"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "hello", body["input"])
	assert.NotContains(t, body, "secretValue")

	status, body = post(`{"input":"Secret"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "open-sesame", body["secretValue"])

	status, _ = post(`{}`)
	assert.Equal(t, http.StatusBadRequest, status)

	resp, err := http.Get(ts.URL + "/api/check-secret")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, seeded("v"), "success-code")

	status, _ := getJSON(t, ts.URL+"/api/status")
	require.Equal(t, http.StatusOK, status)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "go_goroutines")
	assert.Contains(t, string(raw), `secretxfer_store_attempts_total{op="fetch",outcome="success",store="app-vault"}`)
}

func TestServeStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	srv := server.New(seeded("v"), server.Config{SecretName: "success-code"}, nil)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
