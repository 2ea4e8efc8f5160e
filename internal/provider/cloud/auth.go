package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dgellow/resource-desk/internal/log"
	"github.com/dgellow/resource-desk/internal/provider"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

type auth struct {
	c *Client
}

func (a *auth) SignInWithEmail(ctx context.Context, email, password string) error {
	return a.passwordGrant(ctx, "email", email, password)
}

func (a *auth) SignIn(ctx context.Context, username, password string) error {
	return a.passwordGrant(ctx, "username", username, password)
}

func (a *auth) passwordGrant(ctx context.Context, method, identifier, password string) error {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.c.http)
	tok, err := a.c.oauth.PasswordCredentialsToken(ctx, identifier, password)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			switch retrieveErr.Response.StatusCode {
			case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
				return &provider.Error{Code: provider.CodeInvalidCredentials, Message: "invalid credentials", Err: err}
			}
		}
		return &provider.Error{Code: provider.CodeInternal, Message: "token request failed", Err: err}
	}

	a.c.setToken(ctx, tok)
	a.c.states.Forget("login-state")

	log.LogInfoWithFields("cloud-provider", "Signed in", map[string]any{
		"method": method,
		"env":    a.c.opts.EnvironmentID,
	})
	return nil
}

// SignOut forgets the local token first, then asks the backend to revoke it
func (a *auth) SignOut(ctx context.Context) error {
	tok := a.c.clearToken(ctx)
	a.c.states.Forget("login-state")
	if tok == nil {
		return nil
	}

	revoke := tok.RefreshToken
	if revoke == "" {
		revoke = tok.AccessToken
	}
	body, _ := json.Marshal(map[string]string{"token": revoke})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.c.endpoint(revokePath), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)

	resp, err := a.c.http.Do(req)
	if err != nil {
		return &provider.Error{Code: provider.CodeInternal, Message: "revoke request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusError(resp, "revoke")
	}
	return nil
}

type userResponse struct {
	UID       string `json:"uid"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	NickName  string `json:"nickName"`
	AvatarURL string `json:"avatarUrl"`
	LoginType string `json:"loginType"`
}

// GetLoginState asks the backend who the token belongs to. Concurrent
// callers share one request.
func (a *auth) GetLoginState(ctx context.Context) (*provider.LoginState, error) {
	if !a.c.signedIn() {
		return nil, nil
	}

	// the lookup outlives any single caller; the HTTP client timeout bounds it
	flight := a.c.states.DoChan("login-state", func() (any, error) {
		return a.fetchLoginState(context.WithoutCancel(ctx))
	})
	var res singleflight.Result
	select {
	case res = <-flight:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		return nil, res.Err
	}
	state, _ := res.Val.(*provider.LoginState)
	if state == nil {
		return nil, nil
	}
	cp := *state
	return &cp, nil
}

func (a *auth) fetchLoginState(ctx context.Context) (*provider.LoginState, error) {
	client, err := a.c.authedHTTP()
	if err != nil {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.c.endpoint(userPath), nil)
	if err != nil {
		return nil, fmt.Errorf("building user request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			// refresh token rejected: the provider session is gone
			a.c.clearToken(ctx)
			return nil, nil
		}
		return nil, &provider.Error{Code: provider.CodeInternal, Message: "user request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		a.c.clearToken(ctx)
		return nil, nil
	}
	if resp.StatusCode >= 300 {
		return nil, statusError(resp, "user lookup")
	}

	var user userResponse
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, &provider.Error{Code: provider.CodeInternal, Message: "invalid user response", Err: err}
	}

	return &provider.LoginState{
		UID:       user.UID,
		Email:     user.Email,
		Username:  user.Username,
		NickName:  user.NickName,
		AvatarURL: user.AvatarURL,
		LoginType: user.LoginType,
	}, nil
}

func (a *auth) SignUp(ctx context.Context, email, password string) error {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.c.endpoint(signupPath), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building signup request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.c.http.Do(req)
	if err != nil {
		return &provider.Error{Code: provider.CodeInternal, Message: "signup request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusError(resp, "signup")
	}

	log.LogInfoWithFields("cloud-provider", "Account registered", map[string]any{
		"env": a.c.opts.EnvironmentID,
	})
	return nil
}
