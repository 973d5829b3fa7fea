package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BaSui01/stepflow/api/handlers"
	"github.com/BaSui01/stepflow/config"
	"github.com/BaSui01/stepflow/types"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) handlers.Response {
	t.Helper()
	var resp handlers.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(okHandler(), mark("a"), mark("b"), mark("c"))
	serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestSecurityHeaders(t *testing.T) {
	w := serve(SecurityHeaders()(okHandler()), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-referrer", w.Header().Get("Referrer-Policy"))
	assert.NotEmpty(t, w.Header().Get("Content-Security-Policy"))
}

func TestRecovery(t *testing.T) {
	panicking := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	w := serve(Recovery(zaptest.NewLogger(t))(panicking), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeEnvelope(t, w)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(types.ErrInternalError), resp.Error.Code)
}

func TestRequestID(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = types.RequestID(r.Context())
	})
	h := RequestID()(inner)

	t.Run("generated", func(t *testing.T) {
		w := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, w.Header().Get("X-Request-ID"))
	})

	t.Run("propagated", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Request-ID", "req-42")
		w := serve(h, r)
		assert.Equal(t, "req-42", seen)
		assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
	})
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health", "/health"},
		{"/api/v1/workflows/execute", "/api/v1/workflows/execute"},
		{"/api/v1/tools", "/api/v1/tools"},
		{"/api/v1/budgets/ctx-1", "/api/v1/budgets/:context_id"},
		{"/api/v1/budgets/another", "/api/v1/budgets/:context_id"},
		{"/wp-admin", "other"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizePath(tt.path))
		})
	}
}

func TestOTelTracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	var traceID string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID, _ = types.TraceID(r.Context())
		w.WriteHeader(http.StatusBadGateway)
	})

	serve(OTelTracing(tp.Tracer("test"))(inner), httptest.NewRequest(http.MethodGet, "/api/v1/budgets/ctx-9", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /api/v1/budgets/:context_id", spans[0].Name())
	assert.Equal(t, spans[0].SpanContext().TraceID().String(), traceID)
	assert.Equal(t, "Error", spans[0].Status().Code.String())
}

// =============================================================================
// 🔐 JWT
// =============================================================================

func signToken(t *testing.T, method jwt.SigningMethod, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestJWTAuth(t *testing.T) {
	cfg := config.JWTConfig{Enabled: true, Secret: "s3cret", Issuer: "stepflow", Audience: "api"}
	valid := jwt.MapClaims{
		"iss":       "stepflow",
		"aud":       "api",
		"exp":       time.Now().Add(time.Hour).Unix(),
		"tenant_id": "acme",
		"user_id":   "u-1",
	}

	var tenant, user string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant, _ = types.TenantID(r.Context())
		user, _ = types.UserID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	h := JWTAuth(cfg, publicPaths, zaptest.NewLogger(t))(inner)

	request := func(path, token string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, path, nil)
		if token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
		return serve(h, r)
	}

	t.Run("valid token carries identity", func(t *testing.T) {
		w := request("/api/v1/tools", signToken(t, jwt.SigningMethodHS256, "s3cret", valid))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "acme", tenant)
		assert.Equal(t, "u-1", user)
	})

	t.Run("public path skips auth", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, request("/health", "").Code)
	})

	rejected := map[string]string{
		"missing":      "",
		"garbage":      "not.a.jwt",
		"wrong secret": signToken(t, jwt.SigningMethodHS256, "other", valid),
		"wrong alg":    signToken(t, jwt.SigningMethodHS512, "s3cret", valid),
		"expired": signToken(t, jwt.SigningMethodHS256, "s3cret", jwt.MapClaims{
			"iss": "stepflow", "aud": "api", "exp": time.Now().Add(-time.Minute).Unix(),
		}),
		"no expiry": signToken(t, jwt.SigningMethodHS256, "s3cret", jwt.MapClaims{
			"iss": "stepflow", "aud": "api",
		}),
		"wrong issuer": signToken(t, jwt.SigningMethodHS256, "s3cret", jwt.MapClaims{
			"iss": "evil", "aud": "api", "exp": time.Now().Add(time.Hour).Unix(),
		}),
	}
	for name, token := range rejected {
		t.Run(name, func(t *testing.T) {
			w := request("/api/v1/tools", token)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			resp := decodeEnvelope(t, w)
			require.NotNil(t, resp.Error)
			assert.Equal(t, string(types.ErrUnauthorized), resp.Error.Code)
		})
	}
}

// =============================================================================
// 🚦 限流与 CORS
// =============================================================================

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := RateLimiter(ctx, 0.001, 1, zaptest.NewLogger(t))(okHandler())

	fromIP := func(ip string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/tools", nil)
		r.RemoteAddr = ip + ":5555"
		return r
	}
	asTenant := func(tenant string) *http.Request {
		r := fromIP("10.0.0.9")
		return r.WithContext(types.WithTenantID(r.Context(), tenant))
	}

	assert.Equal(t, http.StatusOK, serve(h, fromIP("10.0.0.1")).Code)
	w := serve(h, fromIP("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, string(types.ErrRateLimited), decodeEnvelope(t, w).Error.Code)

	// 不同 IP 各自计数
	assert.Equal(t, http.StatusOK, serve(h, fromIP("10.0.0.2")).Code)

	// 租户优先于 IP
	assert.Equal(t, http.StatusOK, serve(h, asTenant("acme")).Code)
	assert.Equal(t, http.StatusOK, serve(h, asTenant("globex")).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, asTenant("acme")).Code)
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://app.example.com"})(okHandler())

	t.Run("allowed origin", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Origin", "https://app.example.com")
		w := serve(h, r)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("allowed preflight", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodOptions, "/", nil)
		r.Header.Set("Origin", "https://app.example.com")
		assert.Equal(t, http.StatusNoContent, serve(h, r).Code)
	})

	t.Run("unknown origin", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Origin", "https://evil.example.com")
		w := serve(h, r)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("unknown preflight", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodOptions, "/", nil)
		r.Header.Set("Origin", "https://evil.example.com")
		assert.Equal(t, http.StatusForbidden, serve(h, r).Code)
	})
}
