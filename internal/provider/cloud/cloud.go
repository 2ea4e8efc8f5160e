// Package cloud talks to the hosted backend: OAuth2 identity endpoints,
// a Firestore document database and the temporary file URL service.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/dgellow/resource-desk/internal/crypto"
	"github.com/dgellow/resource-desk/internal/log"
	"github.com/dgellow/resource-desk/internal/provider"
	"github.com/dgellow/resource-desk/internal/storage"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
	"google.golang.org/api/option"
)

// Endpoint paths relative to Config.BaseURL
const (
	tokenPath    = "/auth/v1/token"
	signupPath   = "/auth/v1/signup"
	revokePath   = "/auth/v1/revoke"
	userPath     = "/auth/v1/user/me"
	tempURLsPath = "/storage/v1/temp-urls"
)

// TokenKeyPrefix prefixes the storage key holding the encrypted provider token
const TokenKeyPrefix = "provider_token_"

// Config describes how to reach the hosted backend
type Config struct {
	BaseURL           string
	ClientID          string
	ClientSecret      string
	EncryptionKey     string
	FirestoreProject  string
	FirestoreDatabase string

	// HTTPClient is the transport for identity and storage calls; nil means a
	// client with a 30s timeout
	HTTPClient *http.Client
}

// NewFactory returns a provider.Factory for the hosted backend. Tokens are
// persisted, encrypted, in kv so a restart keeps the provider session.
func NewFactory(cfg Config, kv storage.KeyValue) provider.Factory {
	return func(ctx context.Context, opts provider.Options) (provider.Client, error) {
		return newClient(ctx, cfg, kv, opts)
	}
}

// Client is a connection to one backend environment
type Client struct {
	opts     provider.Options
	baseURL  string
	http     *http.Client
	oauth    *oauth2.Config
	kv       storage.KeyValue
	enc      crypto.Encryptor
	tokenKey string

	// refreshCtx carries the HTTP client for background token refreshes
	refreshCtx context.Context

	mu     sync.Mutex
	source *persistingSource

	states singleflight.Group
	fs     *firestore.Client
}

var _ provider.Client = (*Client)(nil)

func newClient(ctx context.Context, cfg Config, kv storage.KeyValue, opts provider.Options) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("provider base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid provider base URL: %w", err)
	}
	if cfg.EncryptionKey == "" {
		return nil, fmt.Errorf("provider encryption key is required")
	}
	if kv == nil {
		return nil, fmt.Errorf("storage is required")
	}

	enc, err := crypto.NewEncryptor(crypto.DeriveKey([]byte(cfg.EncryptionKey), "provider-token"))
	if err != nil {
		return nil, fmt.Errorf("creating token encryptor: %w", err)
	}

	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: 30 * time.Second}
	}
	transport := base.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	httpClient := &http.Client{
		Timeout:       base.Timeout,
		CheckRedirect: base.CheckRedirect,
		Jar:           base.Jar,
		Transport:     &envTransport{base: transport, env: opts.EnvironmentID, region: opts.Region},
	}

	c := &Client{
		opts:    opts,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  joinPath(cfg.BaseURL, tokenPath),
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		kv:         kv,
		enc:        enc,
		tokenKey:   TokenKeyPrefix + opts.EnvironmentID,
		refreshCtx: context.WithValue(context.Background(), oauth2.HTTPClient, httpClient),
	}

	if tok := c.loadToken(ctx); tok != nil {
		c.source = c.persisting(tok)
	}

	if cfg.FirestoreProject != "" {
		fsOpts := []option.ClientOption{option.WithTokenSource(c)}
		var fs *firestore.Client
		if cfg.FirestoreDatabase != "" && cfg.FirestoreDatabase != "(default)" {
			fs, err = firestore.NewClientWithDatabase(ctx, cfg.FirestoreProject, cfg.FirestoreDatabase, fsOpts...)
		} else {
			fs, err = firestore.NewClient(ctx, cfg.FirestoreProject, fsOpts...)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create Firestore client: %w", err)
		}
		c.fs = fs
	}

	log.LogInfoWithFields("cloud-provider", "Provider client created", map[string]any{
		"env":       opts.EnvironmentID,
		"region":    opts.Region,
		"firestore": cfg.FirestoreProject != "",
		"restored":  c.source != nil,
	})

	return c, nil
}

// Auth returns the identity handle
func (c *Client) Auth() provider.Auth { return &auth{c: c} }

// Database returns the document database handle
func (c *Client) Database() provider.Database { return &database{c: c} }

// Close releases the Firestore connection
func (c *Client) Close() error {
	if c.fs != nil {
		return c.fs.Close()
	}
	return nil
}

// Token implements oauth2.TokenSource for the Firestore client. It fails
// with NOT_AUTHENTICATED while nobody is signed in.
func (c *Client) Token() (*oauth2.Token, error) {
	c.mu.Lock()
	source := c.source
	c.mu.Unlock()

	if source == nil {
		return nil, provider.NewError(provider.CodeNotAuthenticated, "not signed in")
	}
	return source.Token()
}

func (c *Client) signedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.source != nil
}

// authedHTTP returns an HTTP client that attaches (and refreshes) the bearer token
func (c *Client) authedHTTP() (*http.Client, error) {
	c.mu.Lock()
	source := c.source
	c.mu.Unlock()

	if source == nil {
		return nil, provider.NewError(provider.CodeNotAuthenticated, "not signed in")
	}
	return oauth2.NewClient(c.refreshCtx, source), nil
}

func (c *Client) endpoint(p string) string {
	return joinPath(c.baseURL, p)
}

// envTransport tags each request with the target environment
type envTransport struct {
	base   http.RoundTripper
	env    string
	region string
}

func (t *envTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("X-Environment-Id", t.env)
	if t.region != "" {
		req.Header.Set("X-Region", t.region)
	}
	return t.base.RoundTrip(req)
}

func joinPath(base, p string) string {
	u, err := url.Parse(base)
	if err != nil {
		return strings.TrimRight(base, "/") + p
	}
	u.Path = path.Join(u.Path, p)
	return u.String()
}

// readLimited reads a response body for inclusion in an error message
func readLimited(r io.Reader, limit int64) string {
	body, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return fmt.Sprintf("<unreadable: %v>", err)
	}
	return string(body)
}

// statusError converts a non-2xx response into a provider error
func statusError(resp *http.Response, op string) error {
	body := readLimited(resp.Body, 4096)
	code := provider.CodeInternal
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		code = provider.CodeNotAuthenticated
	case http.StatusForbidden:
		code = provider.CodePermissionDenied
	case http.StatusConflict:
		code = provider.CodeUserExists
	}
	return &provider.Error{
		Code:    code,
		Message: fmt.Sprintf("%s failed with status %d", op, resp.StatusCode),
		Err:     errors.New(strings.TrimSpace(body)),
	}
}
