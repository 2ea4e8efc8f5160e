package auth

import (
	"errors"
	"net/http"
)

// Error kinds. Every error returned by the Manager wraps exactly one of these.
var (
	ErrConfiguration      = errors.New("configuration error")
	ErrInitialization     = errors.New("initialization error")
	ErrNotInitialized     = errors.New("service not initialized")
	ErrValidation         = errors.New("validation error")
	ErrAuthentication     = errors.New("authentication error")
	ErrRegistration       = errors.New("registration error")
	ErrLogout             = errors.New("logout error")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrCollectionNotExist = errors.New("collection does not exist")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrDataAccess         = errors.New("data access error")
	ErrProvider           = errors.New("provider error")
)

var codes = map[error]string{
	ErrConfiguration:      "CONFIGURATION_ERROR",
	ErrInitialization:     "INITIALIZATION_ERROR",
	ErrNotInitialized:     "NOT_INITIALIZED",
	ErrValidation:         "VALIDATION_ERROR",
	ErrAuthentication:     "AUTHENTICATION_FAILED",
	ErrRegistration:       "REGISTRATION_FAILED",
	ErrLogout:             "LOGOUT_FAILED",
	ErrNotAuthenticated:   "NOT_AUTHENTICATED",
	ErrCollectionNotExist: "COLLECTION_NOT_EXIST",
	ErrPermissionDenied:   "PERMISSION_DENIED",
	ErrDataAccess:         "DATA_ACCESS_ERROR",
	ErrProvider:           "PROVIDER_ERROR",
}

// Error is the error type returned by Manager operations. Message is safe
// to show to the user; Err holds the underlying cause, if any.
type Error struct {
	Kind    error
	Code    string
	Message string
	Err     error
}

func newError(kind error, message string, cause error) *Error {
	return &Error{Kind: kind, Code: codes[kind], Message: message, Err: cause}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// HTTPStatus maps an error to the status the bridge answers with
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, ErrAuthentication), errors.Is(err, ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrCollectionNotExist):
		return http.StatusNotFound
	case errors.Is(err, ErrRegistration):
		return http.StatusConflict
	case errors.Is(err, ErrNotInitialized):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrLogout):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// CodeOf returns the machine-readable code of a Manager error
func CodeOf(err error) string {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Code
	}
	for kind, code := range codes {
		if errors.Is(err, kind) {
			return code
		}
	}
	return codes[ErrProvider]
}

// MessageOf returns the user-facing message of a Manager error
func MessageOf(err error) string {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Message
	}
	return err.Error()
}
