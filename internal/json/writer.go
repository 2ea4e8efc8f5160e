package json

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/dgellow/resource-desk/internal/log"
)

// ErrorResponse is the body of every failed bridge call
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode,omitempty"`
}

// Error codes used for failures that never reach the auth manager
const (
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeBadRequest    = "VALIDATION_ERROR"
	CodeRateLimited   = "RATE_LIMITED"
	CodeNotFound      = "NOT_FOUND"
	CodeInternalError = "INTERNAL_ERROR"
)

// WriteResponse writes a JSON response with the given status code
func WriteResponse(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.LogError("Failed to encode JSON response: %v", err)
		return err
	}
	return nil
}

// Write writes a JSON response with 200 OK status
func Write(w http.ResponseWriter, data any) error {
	return WriteResponse(w, http.StatusOK, data)
}

// WriteError writes a JSON error response
func WriteError(w http.ResponseWriter, statusCode int, message, code string) {
	response := ErrorResponse{
		Success:   false,
		Error:     message,
		ErrorCode: code,
	}

	if err := WriteResponse(w, statusCode, response); err != nil {
		// Fallback to plain text error if JSON encoding fails
		http.Error(w, code+": "+message, statusCode)
	}
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="resource-desk"`)
	WriteError(w, http.StatusUnauthorized, message, CodeUnauthorized)
}

func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message, CodeBadRequest)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message, CodeNotFound)
}

func WriteInternalServerError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message, CodeInternalError)
}

// WriteTooManyRequests answers 429 with a Retry-After rounded up to whole seconds
func WriteTooManyRequests(w http.ResponseWriter, message string, retryAfter time.Duration) {
	if retryAfter > 0 {
		seconds := int(math.Ceil(retryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}
	WriteError(w, http.StatusTooManyRequests, message, CodeRateLimited)
}
