package json

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		write      func(w http.ResponseWriter)
		wantStatus int
		wantCode   string
		wantHeader map[string]string
	}{
		{
			name:       "unauthorized",
			write:      func(w http.ResponseWriter) { WriteUnauthorized(w, "Missing bridge token") },
			wantStatus: http.StatusUnauthorized,
			wantCode:   CodeUnauthorized,
			wantHeader: map[string]string{"WWW-Authenticate": `Bearer realm="resource-desk"`},
		},
		{
			name:       "bad request",
			write:      func(w http.ResponseWriter) { WriteBadRequest(w, "Invalid body") },
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeBadRequest,
		},
		{
			name:       "rate limited rounds retry up",
			write:      func(w http.ResponseWriter) { WriteTooManyRequests(w, "Slow down", 1500*time.Millisecond) },
			wantStatus: http.StatusTooManyRequests,
			wantCode:   CodeRateLimited,
			wantHeader: map[string]string{"Retry-After": "2"},
		},
		{
			name:       "custom code",
			write:      func(w http.ResponseWriter) { WriteError(w, http.StatusForbidden, "Denied", "PERMISSION_DENIED") },
			wantStatus: http.StatusForbidden,
			wantCode:   "PERMISSION_DENIED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %v, want %v", w.Code, tt.wantStatus)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			for key, want := range tt.wantHeader {
				if got := w.Header().Get(key); got != want {
					t.Errorf("%s header = %q, want %q", key, got, want)
				}
			}

			var body ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decoding body: %v", err)
			}
			if body.Success {
				t.Error("success should be false")
			}
			if body.ErrorCode != tt.wantCode {
				t.Errorf("errorCode = %q, want %q", body.ErrorCode, tt.wantCode)
			}
			if body.Error == "" {
				t.Error("expected error message")
			}
		})
	}
}

func TestWrite(t *testing.T) {
	w := httptest.NewRecorder()
	if err := Write(w, map[string]any{"success": true}); err != nil {
		t.Fatal(err)
	}
	if w.Code != http.StatusOK {
		t.Errorf("status = %v", w.Code)
	}
	if got := w.Body.String(); got != "{\"success\":true}\n" {
		t.Errorf("body = %q", got)
	}
}
