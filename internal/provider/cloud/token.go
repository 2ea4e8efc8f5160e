package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/dgellow/resource-desk/internal/log"
	"github.com/dgellow/resource-desk/internal/storage"
	"golang.org/x/oauth2"
)

// persistingSource saves every newly issued token so refreshes survive restarts
type persistingSource struct {
	c    *Client
	base oauth2.TokenSource

	mu   sync.Mutex
	last *oauth2.Token
}

func (c *Client) persisting(tok *oauth2.Token) *persistingSource {
	return &persistingSource{
		c:    c,
		base: oauth2.ReuseTokenSource(tok, c.oauth.TokenSource(c.refreshCtx, tok)),
		last: tok,
	}
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	changed := tok.AccessToken != s.last.AccessToken
	s.last = tok
	s.mu.Unlock()

	if changed {
		log.LogDebugWithFields("cloud-provider", "Provider token refreshed", map[string]any{
			"expiry": tok.Expiry,
		})
		s.c.saveToken(context.Background(), tok)
	}
	return tok, nil
}

// current returns the last token seen without triggering a refresh
func (s *persistingSource) current() *oauth2.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (c *Client) loadToken(ctx context.Context) *oauth2.Token {
	sealed, err := c.kv.Get(ctx, c.tokenKey)
	if err != nil {
		if !errors.Is(err, storage.ErrKeyNotFound) {
			log.LogWarnWithFields("cloud-provider", "Failed to read stored provider token", map[string]any{
				"error": err.Error(),
			})
		}
		return nil
	}

	raw, err := c.enc.Decrypt(sealed)
	if err != nil {
		log.LogWarnWithFields("cloud-provider", "Discarding undecryptable provider token", map[string]any{
			"error": err.Error(),
		})
		_ = c.kv.Delete(ctx, c.tokenKey)
		return nil
	}

	var tok oauth2.Token
	if err := json.Unmarshal([]byte(raw), &tok); err != nil || tok.AccessToken == "" {
		_ = c.kv.Delete(ctx, c.tokenKey)
		return nil
	}
	return &tok
}

// saveToken failures are logged; the in-memory session keeps working
func (c *Client) saveToken(ctx context.Context, tok *oauth2.Token) {
	raw, err := json.Marshal(tok)
	if err != nil {
		log.LogErrorWithFields("cloud-provider", "Failed to encode provider token", map[string]any{
			"error": err.Error(),
		})
		return
	}
	sealed, err := c.enc.Encrypt(string(raw))
	if err != nil {
		log.LogErrorWithFields("cloud-provider", "Failed to encrypt provider token", map[string]any{
			"error": err.Error(),
		})
		return
	}
	if err := c.kv.Set(ctx, c.tokenKey, sealed); err != nil {
		log.LogErrorWithFields("cloud-provider", "Failed to persist provider token", map[string]any{
			"error": err.Error(),
		})
	}
}

func (c *Client) setToken(ctx context.Context, tok *oauth2.Token) {
	c.mu.Lock()
	c.source = c.persisting(tok)
	c.mu.Unlock()
	c.saveToken(ctx, tok)
}

// clearToken forgets the token locally and returns it for revocation
func (c *Client) clearToken(ctx context.Context) *oauth2.Token {
	c.mu.Lock()
	source := c.source
	c.source = nil
	c.mu.Unlock()

	if err := c.kv.Delete(ctx, c.tokenKey); err != nil {
		log.LogWarnWithFields("cloud-provider", "Failed to delete stored provider token", map[string]any{
			"error": err.Error(),
		})
	}

	if source == nil {
		return nil
	}
	return source.current()
}
