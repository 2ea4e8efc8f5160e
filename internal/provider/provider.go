// Package provider defines the backend-as-a-service contract the auth
// manager talks to: identity, a document database and temporary file URLs.
package provider

import (
	"context"
	"time"
)

// Options selects the provider environment
type Options struct {
	EnvironmentID string
	Region        string
}

// Factory builds a client for an environment. Init calls it once per
// (re)initialization.
type Factory func(ctx context.Context, opts Options) (Client, error)

// Client is a connected provider environment
type Client interface {
	// Auth returns the identity handle, nil if the environment has none
	Auth() Auth
	// Database returns the document database handle, nil if unavailable
	Database() Database
	TempFileURLs(ctx context.Context, files []FileRequest) ([]TempFile, error)
	Close() error
}

// Auth is the provider's identity service
type Auth interface {
	SignInWithEmail(ctx context.Context, email, password string) error
	SignIn(ctx context.Context, username, password string) error
	SignOut(ctx context.Context) error
	// GetLoginState returns nil when nobody is signed in
	GetLoginState(ctx context.Context) (*LoginState, error)
	SignUp(ctx context.Context, email, password string) error
}

// Database is a schemaless document store
type Database interface {
	Collection(name string) Query
}

// Query is a lazily evaluated collection read
type Query interface {
	Limit(n int) Query
	Get(ctx context.Context) ([]Document, error)
}

// Document is one record of a collection
type Document map[string]any

// LoginState is what the provider knows about the signed-in user
type LoginState struct {
	UID       string    `json:"uid"`
	Email     string    `json:"email,omitempty"`
	Username  string    `json:"username,omitempty"`
	NickName  string    `json:"nickName,omitempty"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
	LoginType string    `json:"loginType,omitempty"`
	SignedAt  time.Time `json:"signedAt,omitzero"`
}

// FileRequest asks for a temporary URL to a stored file
type FileRequest struct {
	FileID string `json:"fileId"`
	// MaxAge is the URL lifetime in seconds; zero lets the provider choose
	MaxAge int `json:"maxAge,omitempty"`
}

// TempFile is the provider's answer for one FileRequest
type TempFile struct {
	FileID      string `json:"fileId"`
	TempFileURL string `json:"tempFileURL"`
	// Code is empty or "SUCCESS" on success, a provider error code otherwise
	Code   string `json:"code,omitempty"`
	MaxAge int    `json:"maxAge,omitempty"`
}
