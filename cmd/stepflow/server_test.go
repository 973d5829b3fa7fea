package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/stepflow/api/handlers"
	"github.com/BaSui01/stepflow/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var serverSeq atomic.Int64

// newTestServer 每个实例使用独立的指标命名空间，避免默认注册表冲突
func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	cfg := testConfig()
	cfg.Server.HTTPPort = 0
	cfg.Server.ShutdownTimeout = 5 * time.Second
	if mutate != nil {
		mutate(cfg)
	}

	s := NewServer(cfg, zaptest.NewLogger(t))
	s.namespace = fmt.Sprintf("stepflow_test_%d", serverSeq.Add(1))
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(s.Shutdown)
	return s
}

func getJSON(t *testing.T, h http.Handler, method, path, body string, header http.Header) (*httptest.ResponseRecorder, handlers.Response) {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	for k, v := range header {
		r.Header[k] = v
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	var resp handlers.Response
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestServer_Routes(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	t.Run("health", func(t *testing.T) {
		w, _ := getJSON(t, h, http.MethodGet, "/health", "", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
		assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	})

	t.Run("ready", func(t *testing.T) {
		w, _ := getJSON(t, h, http.MethodGet, "/ready", "", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("version", func(t *testing.T) {
		w, _ := getJSON(t, h, http.MethodGet, "/version", "", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), Version)
	})

	t.Run("tools", func(t *testing.T) {
		w, resp := getJSON(t, h, http.MethodGet, "/api/v1/tools", "", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, resp.Success)
	})

	t.Run("execute then budget", func(t *testing.T) {
		body := `{"context_id":"srv","steps":[{"tool":"echo","params":{"text":"hi there"}}]}`
		w, resp := getJSON(t, h, http.MethodPost, "/api/v1/workflows/execute", body, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.True(t, resp.Success)

		w, resp = getJSON(t, h, http.MethodGet, "/api/v1/budgets/srv", "", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		data, ok := resp.Data.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "srv", data["context_id"])
	})

	t.Run("execute requires POST", func(t *testing.T) {
		w, _ := getJSON(t, h, http.MethodGet, "/api/v1/workflows/execute", "", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})

	t.Run("config is redacted", func(t *testing.T) {
		w, _ := getJSON(t, h, http.MethodGet, "/api/v1/config", "", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotContains(t, w.Body.String(), `"password":"secret`)
	})
}

func TestServer_Metrics(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	getJSON(t, h, http.MethodGet, "/api/v1/tools", "", nil)
	getJSON(t, h, http.MethodGet, "/api/v1/budgets/a", "", nil)
	getJSON(t, h, http.MethodGet, "/api/v1/budgets/b", "", nil)

	name := s.namespace + "_http_requests_total"
	count, err := testutil.GatherAndCount(prometheus.DefaultGatherer, name)
	require.NoError(t, err)
	assert.Equal(t, 2, count, "budget paths share one series")

	w := httptest.NewRecorder()
	s.MetricsHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), name+`{method="GET",path="/api/v1/budgets/:context_id",status="2xx"} 2`)
}

func TestServer_JWT(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.JWT = config.JWTConfig{Enabled: true, Secret: "k"}
	})
	h := s.Handler()

	w, _ := getJSON(t, h, http.MethodGet, "/api/v1/tools", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = getJSON(t, h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	token := signToken(t, jwt.SigningMethodHS256, "k", jwt.MapClaims{
		"exp":       time.Now().Add(time.Minute).Unix(),
		"tenant_id": "acme",
	})
	w, _ = getJSON(t, h, http.MethodGet, "/api/v1/tools", "", http.Header{"Authorization": {"Bearer " + token}})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_StartAndShutdown(t *testing.T) {
	s := newTestServer(t, nil)
	require.NoError(t, s.Start())

	addr := s.httpManager.ListenAddr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/health")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	s.Shutdown()
	assert.False(t, s.httpManager.IsRunning())
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	s := newTestServer(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
