// Package memory is an in-process provider. Accounts, collections and files
// live in maps, so it suits development and tests only.
package memory

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/dgellow/resource-desk/internal/crypto"
	"github.com/dgellow/resource-desk/internal/emailutil"
	"github.com/dgellow/resource-desk/internal/log"
	"github.com/dgellow/resource-desk/internal/provider"
	"github.com/google/uuid"
)

type account struct {
	uid          string
	email        string
	username     string
	nickName     string
	passwordHash []byte
}

// Provider holds the shared backing data. Each client created through
// Factory has its own signed-in user.
type Provider struct {
	mu          sync.RWMutex
	byEmail     map[string]*account
	byUsername  map[string]*account
	collections map[string][]provider.Document
	denied      map[string]bool
	files       map[string]string
	clock       func() time.Time
}

// New creates an empty provider
func New() *Provider {
	return &Provider{
		byEmail:     make(map[string]*account),
		byUsername:  make(map[string]*account),
		collections: make(map[string][]provider.Document),
		denied:      make(map[string]bool),
		files:       make(map[string]string),
		clock:       time.Now,
	}
}

// NewDemo creates a provider seeded with one account and a small
// "resources" collection, for running the desktop shell without a backend.
func NewDemo() *Provider {
	p := New()
	if err := p.AddUser("demo@example.com", "demo", "Demo#Pass2024", "Demo"); err != nil {
		log.LogErrorWithFields("memory-provider", "Failed to seed demo account", map[string]any{
			"error": err.Error(),
		})
	}
	p.AddCollection("resources",
		provider.Document{"_id": "r1", "name": "Quarterly report", "fileId": "cloud://demo/report.pdf"},
		provider.Document{"_id": "r2", "name": "Product photos", "fileId": "cloud://demo/photos.zip"},
	)
	p.AddFile("cloud://demo/report.pdf", "https://files.example.com/demo/report.pdf")
	p.AddFile("cloud://demo/photos.zip", "https://files.example.com/demo/photos.zip")
	return p
}

// AddUser registers an account. username may be empty.
func (p *Provider) AddUser(email, username, password, nickName string) error {
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	key := emailutil.Normalize(email)
	if _, exists := p.byEmail[key]; exists {
		return provider.NewError(provider.CodeUserExists, "email already registered")
	}
	if username != "" {
		if _, exists := p.byUsername[username]; exists {
			return provider.NewError(provider.CodeUserExists, "username already registered")
		}
	}

	acct := &account{
		uid:          uuid.NewString(),
		email:        key,
		username:     username,
		nickName:     nickName,
		passwordHash: hash,
	}
	p.byEmail[key] = acct
	if username != "" {
		p.byUsername[username] = acct
	}
	return nil
}

// AddCollection creates or replaces a collection
func (p *Provider) AddCollection(name string, docs ...provider.Document) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.collections[name] = append([]provider.Document(nil), docs...)
}

// DenyCollection makes reads of name fail with a permission error
func (p *Provider) DenyCollection(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.denied[name] = true
}

// AddFile makes fileID resolvable to a download URL
func (p *Provider) AddFile(fileID, downloadURL string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.files[fileID] = downloadURL
}

// Factory returns a provider.Factory producing clients backed by p
func (p *Provider) Factory() provider.Factory {
	return func(_ context.Context, opts provider.Options) (provider.Client, error) {
		if opts.EnvironmentID == "" {
			return nil, fmt.Errorf("environment ID is required")
		}
		c := &client{p: p, opts: opts}
		log.LogDebugWithFields("memory-provider", "Created client", map[string]any{
			"env":    opts.EnvironmentID,
			"region": opts.Region,
		})
		return c, nil
	}
}

type client struct {
	p    *Provider
	opts provider.Options

	mu       sync.Mutex
	current  *account
	signedAt time.Time
	closed   bool
}

func (c *client) Auth() provider.Auth         { return &auth{c: c} }
func (c *client) Database() provider.Database { return &database{c: c} }

func (c *client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.current = nil
	return nil
}

func (c *client) signedIn() (*account, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, provider.NewError(provider.CodeInternal, "client closed")
	}
	if c.current == nil {
		return nil, provider.NewError(provider.CodeNotAuthenticated, "not signed in")
	}
	return c.current, nil
}

func (c *client) TempFileURLs(_ context.Context, files []provider.FileRequest) ([]provider.TempFile, error) {
	if _, err := c.signedIn(); err != nil {
		return nil, err
	}

	c.p.mu.RLock()
	defer c.p.mu.RUnlock()

	out := make([]provider.TempFile, 0, len(files))
	for _, f := range files {
		item := provider.TempFile{FileID: f.FileID, MaxAge: f.MaxAge}
		base, ok := c.p.files[f.FileID]
		if !ok {
			item.Code = provider.CodeFileNotFound
			out = append(out, item)
			continue
		}
		maxAge := f.MaxAge
		if maxAge <= 0 {
			maxAge = 86400
		}
		q := url.Values{}
		q.Set("sign", uuid.NewString())
		q.Set("t", fmt.Sprint(c.p.clock().Add(time.Duration(maxAge)*time.Second).Unix()))
		item.TempFileURL = base + "?" + q.Encode()
		item.Code = "SUCCESS"
		item.MaxAge = maxAge
		out = append(out, item)
	}
	return out, nil
}

type auth struct {
	c *client
}

func (a *auth) signIn(acct *account, password string) error {
	if acct == nil || !crypto.CheckPassword(acct.passwordHash, password) {
		return provider.NewError(provider.CodeInvalidCredentials, "invalid credentials")
	}
	a.c.mu.Lock()
	defer a.c.mu.Unlock()
	a.c.current = acct
	a.c.signedAt = a.c.p.clock()
	return nil
}

func (a *auth) SignInWithEmail(_ context.Context, email, password string) error {
	a.c.p.mu.RLock()
	acct := a.c.p.byEmail[emailutil.Normalize(email)]
	a.c.p.mu.RUnlock()
	return a.signIn(acct, password)
}

func (a *auth) SignIn(_ context.Context, username, password string) error {
	a.c.p.mu.RLock()
	acct := a.c.p.byUsername[username]
	a.c.p.mu.RUnlock()
	return a.signIn(acct, password)
}

func (a *auth) SignOut(context.Context) error {
	a.c.mu.Lock()
	defer a.c.mu.Unlock()
	a.c.current = nil
	return nil
}

func (a *auth) GetLoginState(context.Context) (*provider.LoginState, error) {
	a.c.mu.Lock()
	defer a.c.mu.Unlock()
	if a.c.current == nil {
		return nil, nil
	}
	acct := a.c.current
	loginType := "EMAIL"
	if acct.username != "" {
		loginType = "USERNAME"
	}
	return &provider.LoginState{
		UID:       acct.uid,
		Email:     acct.email,
		Username:  acct.username,
		NickName:  acct.nickName,
		LoginType: loginType,
		SignedAt:  a.c.signedAt,
	}, nil
}

func (a *auth) SignUp(_ context.Context, email, password string) error {
	return a.c.p.AddUser(email, "", password, "")
}

type database struct {
	c *client
}

func (d *database) Collection(name string) provider.Query {
	return &query{c: d.c, name: name, limit: -1}
}

type query struct {
	c     *client
	name  string
	limit int
}

func (q *query) Limit(n int) provider.Query {
	cp := *q
	cp.limit = n
	return &cp
}

func (q *query) Get(context.Context) ([]provider.Document, error) {
	if _, err := q.c.signedIn(); err != nil {
		return nil, err
	}

	q.c.p.mu.RLock()
	defer q.c.p.mu.RUnlock()

	if q.c.p.denied[q.name] {
		return nil, provider.NewError(provider.CodePermissionDenied, "permission denied on "+q.name)
	}
	docs, ok := q.c.p.collections[q.name]
	if !ok {
		return nil, provider.NewError(provider.CodeCollectionNotExist, "collection "+q.name+" does not exist")
	}

	n := len(docs)
	if q.limit >= 0 && q.limit < n {
		n = q.limit
	}
	out := make([]provider.Document, 0, n)
	for _, doc := range docs[:n] {
		cp := make(provider.Document, len(doc))
		for k, v := range doc {
			cp[k] = v
		}
		out = append(out, cp)
	}
	return out, nil
}
