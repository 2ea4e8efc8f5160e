package provider

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes reported by providers
const (
	CodeCollectionNotExist  = "DATABASE_COLLECTION_NOT_EXIST"
	CodePermissionDenied    = "PERMISSION_DENIED"
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeUserExists          = "USER_EXISTS"
	CodeNotAuthenticated    = "NOT_AUTHENTICATED"
	CodeDatabaseUnavailable = "DATABASE_UNAVAILABLE"
	CodeFileNotFound        = "STORAGE_FILE_NONEXIST"
	CodeInternal            = "INTERNAL_ERROR"
)

// Error is a failure reported by the provider itself
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError creates a provider error
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// CodeOf returns the provider code carried by err, or "" when err is not a provider error
func CodeOf(err error) string {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Code
	}
	return ""
}

// IsCollectionNotExist reports whether err says the collection is missing
func IsCollectionNotExist(err error) bool {
	return CodeOf(err) == CodeCollectionNotExist
}

// IsPermissionDenied reports a permission failure, either by code or because
// the message mentions permission.
func IsPermissionDenied(err error) bool {
	if err == nil {
		return false
	}
	if CodeOf(err) == CodePermissionDenied {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "permission")
}
