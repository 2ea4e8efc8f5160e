package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dgellow/resource-desk/internal/crypto"
	jsonwriter "github.com/dgellow/resource-desk/internal/json"
	"github.com/dgellow/resource-desk/internal/log"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// MiddlewareFunc is a function that wraps an http.Handler
type MiddlewareFunc func(http.Handler) http.Handler

// ChainMiddleware chains multiple middleware functions. The first one listed
// is the innermost.
func ChainMiddleware(h http.Handler, middlewares ...MiddlewareFunc) http.Handler {
	for _, mw := range middlewares {
		h = mw(h)
	}
	return h
}

// NewCORSMiddleware adds CORS headers to responses
func NewCORSMiddleware(allowedOrigins []string) MiddlewareFunc {
	allowedMap := make(map[string]bool)
	for _, origin := range allowedOrigins {
		allowedMap[origin] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if origin != "" && allowedMap[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			} else if len(allowedOrigins) == 0 {
				// no allow-list configured: development mode
				w.Header().Set("Access-Control-Allow-Origin", "*")
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Cache-Control, X-Request-Id")
			w.Header().Set("Access-Control-Max-Age", "3600")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// responseWriterDelegator wraps http.ResponseWriter to capture status and bytes written
// while properly delegating all optional interfaces through Unwrap
type responseWriterDelegator struct {
	http.ResponseWriter
	status      int
	written     int
	wroteHeader bool
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriterDelegator {
	return &responseWriterDelegator{
		ResponseWriter: w,
		status:         http.StatusOK,
	}
}

func (r *responseWriterDelegator) Status() int {
	return r.status
}

func (r *responseWriterDelegator) BytesWritten() int {
	return r.written
}

func (r *responseWriterDelegator) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.status = code
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseWriterDelegator) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	n, err := r.ResponseWriter.Write(b)
	r.written += n
	return n, err
}

// Unwrap returns the underlying ResponseWriter for http.ResponseController
func (r *responseWriterDelegator) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Flush implements http.Flusher; the event stream depends on it
func (r *responseWriterDelegator) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

var _ http.ResponseWriter = (*responseWriterDelegator)(nil)
var _ http.Flusher = (*responseWriterDelegator)(nil)

type requestIDKey struct{}

// RequestIDHeader carries the request ID in both directions
const RequestIDHeader = "X-Request-Id"

// RequestIDFromContext returns the ID assigned by NewRequestIDMiddleware
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// NewRequestIDMiddleware tags each request with an ID, reusing a well-formed
// one sent by the client
func NewRequestIDMiddleware() MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.New().String()
			}
			w.Header().Set(RequestIDHeader, id)
			ctx := context.WithValue(r.Context(), requestIDKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewLoggerMiddleware adds request/response logging
func NewLoggerMiddleware(prefix string) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrapResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			fields := map[string]any{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      wrapped.Status(),
				"duration_ms": time.Since(start).Milliseconds(),
				"bytes":       wrapped.BytesWritten(),
				"remote_addr": r.RemoteAddr,
			}
			if id := RequestIDFromContext(r.Context()); id != "" {
				fields["request_id"] = id
			}
			if r.URL.RawQuery != "" {
				fields["query"] = redactQuery(r.URL)
			}

			log.LogInfoWithFields(prefix, "request", fields)
		})
	}
}

// accessTokenParam carries the bridge token for clients that cannot set headers
const accessTokenParam = "access_token"

// redactQuery returns the query string with the bridge token masked
func redactQuery(u *url.URL) string {
	query, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		if strings.Contains(u.RawQuery, accessTokenParam) {
			return "[REDACTED]"
		}
		return u.RawQuery
	}
	if _, ok := query[accessTokenParam]; !ok {
		return u.RawQuery
	}
	query.Set(accessTokenParam, "[REDACTED]")
	return query.Encode()
}

// NewRecoverMiddleware recovers from panics
func NewRecoverMiddleware(prefix string) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.LogErrorWithFields(prefix, "Recovered from panic", map[string]any{
						"panic":      err,
						"path":       r.URL.Path,
						"request_id": RequestIDFromContext(r.Context()),
					})
					jsonwriter.WriteInternalServerError(w, "Internal Server Error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// NewBearerTokenMiddleware requires "Authorization: Bearer <token>". An
// empty token disables the check. Browsers cannot set headers on an
// EventSource, so the token is also accepted as an access_token query
// parameter on GET requests.
func NewBearerTokenMiddleware(token string) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := ""
			if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
				presented = strings.TrimSpace(authHeader[len("Bearer "):])
			} else if r.Method == http.MethodGet {
				presented = r.URL.Query().Get(accessTokenParam)
			}

			if presented == "" {
				log.LogTraceWithFields("bridge_auth", "Missing bridge token", map[string]any{
					"path": r.URL.Path,
				})
				jsonwriter.WriteUnauthorized(w, "Missing bridge token")
				return
			}
			if !crypto.ConstantTimeEqual(presented, token) {
				log.LogWarnWithFields("bridge_auth", "Invalid bridge token", map[string]any{
					"path":        r.URL.Path,
					"remote_addr": r.RemoteAddr,
				})
				jsonwriter.WriteUnauthorized(w, "Invalid bridge token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewRateLimitMiddleware allows perMinute requests per minute with a burst
// of the same size. Every handler wrapped by the returned middleware draws
// from the same bucket; the bridge only listens locally, so there is a
// single client to throttle. perMinute <= 0 disables limiting.
func NewRateLimitMiddleware(perMinute int) MiddlewareFunc {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reservation := limiter.Reserve()
			if delay := reservation.Delay(); delay > 0 {
				reservation.Cancel()
				log.LogWarnWithFields("ratelimit", "Request rate limited", map[string]any{
					"path":        r.URL.Path,
					"retry_after": delay.String(),
				})
				jsonwriter.WriteTooManyRequests(w, "Too many attempts, please wait before trying again", delay)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
