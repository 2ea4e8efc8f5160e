package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"

	"github.com/dgellow/resource-desk/internal/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestCorsMiddleware(t *testing.T) {
	tests := []struct {
		name              string
		allowedOrigins    []string
		requestOrigin     string
		method            string
		expectAllowOrigin string
		expectCredentials bool
	}{
		{
			name:              "allowed origin",
			allowedOrigins:    []string{"http://localhost:5173", "app://desk"},
			requestOrigin:     "app://desk",
			expectAllowOrigin: "app://desk",
			expectCredentials: true,
		},
		{
			name:           "disallowed origin",
			allowedOrigins: []string{"http://localhost:5173"},
			requestOrigin:  "https://evil.com",
		},
		{
			name:           "no origin header",
			allowedOrigins: []string{"http://localhost:5173"},
		},
		{
			name:              "empty allow-list is a wildcard",
			requestOrigin:     "http://localhost:3000",
			expectAllowOrigin: "*",
		},
		{
			name:              "preflight request",
			allowedOrigins:    []string{"http://localhost:5173"},
			requestOrigin:     "http://localhost:5173",
			method:            http.MethodOptions,
			expectAllowOrigin: "http://localhost:5173",
			expectCredentials: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			})
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}

			req := httptest.NewRequest(method, "/api/auth/state", nil)
			if tt.requestOrigin != "" {
				req.Header.Set("Origin", tt.requestOrigin)
			}
			rr := httptest.NewRecorder()
			NewCORSMiddleware(tt.allowedOrigins)(next).ServeHTTP(rr, req)

			assert.Equal(t, tt.expectAllowOrigin, rr.Header().Get("Access-Control-Allow-Origin"))
			if tt.expectCredentials {
				assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
			} else {
				assert.Empty(t, rr.Header().Get("Access-Control-Allow-Credentials"))
			}
			assert.Equal(t, "GET, POST, PUT, OPTIONS", rr.Header().Get("Access-Control-Allow-Methods"))
			assert.Equal(t, "3600", rr.Header().Get("Access-Control-Max-Age"))

			assert.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, method != http.MethodOptions, called)
		})
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := NewRequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	t.Run("generated", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

		_, err := uuid.Parse(seen)
		require.NoError(t, err)
		assert.Equal(t, seen, rr.Header().Get(RequestIDHeader))
	})

	t.Run("client supplied", func(t *testing.T) {
		id := uuid.NewString()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, id)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, id, seen)
	})

	t.Run("malformed client value replaced", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "not-a-uuid\nInjected: 1")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.NotEqual(t, "not-a-uuid\nInjected: 1", seen)
		_, err := uuid.Parse(seen)
		assert.NoError(t, err)
	})
}

func TestRecoverMiddleware(t *testing.T) {
	handler := ChainMiddleware(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { panic("boom") }),
		NewRecoverMiddleware("test"),
	)

	rr := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), `"errorCode":"INTERNAL_ERROR"`)
}

func TestBearerTokenMiddlewareDisabled(t *testing.T) {
	rr := httptest.NewRecorder()
	NewBearerTokenMiddleware("")(okHandler).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestBearerTokenQueryOnlyForGet(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout?access_token=secret", nil)
	NewBearerTokenMiddleware("secret")(okHandler).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, `Bearer realm="resource-desk"`, rr.Header().Get("WWW-Authenticate"))
}

func TestRateLimitMiddleware(t *testing.T) {
	limited := NewRateLimitMiddleware(1)
	first := limited(okHandler)
	second := limited(okHandler)

	rr := httptest.NewRecorder()
	first.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	// the bucket is shared between handlers
	rr = httptest.NewRecorder()
	second.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/auth/register", nil))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))
}

func TestRateLimitDisabled(t *testing.T) {
	handler := NewRateLimitMiddleware(0)(okHandler)
	for i := 0; i < 20; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))
		require.Equal(t, http.StatusOK, rr.Code)
	}
}

func TestLoggerMiddlewareRedactsAccessToken(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		_ = log.Configure("info", "text")
	})
	require.NoError(t, log.Configure("info", "json"))

	handler := NewLoggerMiddleware("test")(okHandler)
	req := httptest.NewRequest(http.MethodGet, "/api/events?access_token=s3cret-bridge-token&since=5", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.NotContains(t, buf.String(), "s3cret-bridge-token")

	var entry map[string]any
	for _, line := range bytes.Split(buf.Bytes(), []byte("\n")) {
		var candidate map[string]any
		if json.Unmarshal(line, &candidate) == nil && candidate["msg"] == "request" {
			entry = candidate
		}
	}
	require.NotNil(t, entry, buf.String())
	query, err := url.ParseQuery(entry["query"].(string))
	require.NoError(t, err)
	assert.Equal(t, "[REDACTED]", query.Get("access_token"))
	assert.Equal(t, "5", query.Get("since"))
}

func TestRedactQuery(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{raw: "since=5", want: "since=5"},
		{raw: "access_token=abc", want: "access_token=%5BREDACTED%5D"},
		{raw: "access_token=%zz", want: "[REDACTED]"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, redactQuery(&url.URL{RawQuery: tt.raw}), tt.raw)
	}
}

func TestLoggerMiddlewareKeepsFlusher(t *testing.T) {
	var flushed bool
	handler := NewLoggerMiddleware("test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := w.(http.Flusher)
		require.True(t, ok)
		f.Flush()
		flushed = true
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	assert.True(t, flushed)
	assert.True(t, rr.Flushed)
}
