package auth

import (
	"context"
	"time"

	"github.com/dgellow/resource-desk/internal/events"
	"github.com/dgellow/resource-desk/internal/log"
	"github.com/dgellow/resource-desk/internal/provider"
	"github.com/dgellow/resource-desk/internal/validation"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 50
)

// LoginWithEmail signs in with an email address
func (m *Manager) LoginWithEmail(ctx context.Context, email, password string) (*User, error) {
	if _, _, _, err := m.handles(); err != nil {
		return nil, err
	}

	sanitized := validation.SanitizeInput(email)
	if !validation.ValidateEmail(sanitized).Valid {
		return nil, newError(ErrValidation, "Invalid email format", nil)
	}
	if !validation.ValidatePassword(password).Valid {
		return nil, newError(ErrValidation, "Invalid password", nil)
	}

	return m.signIn(ctx, sanitized, func(ctx context.Context, authHandle provider.Auth) error {
		return authHandle.SignInWithEmail(ctx, sanitized, password)
	})
}

// LoginWithUsernameAndPassword signs in with a username. Only the length
// of the sanitized username is checked here; the provider decides whether
// it exists.
func (m *Manager) LoginWithUsernameAndPassword(ctx context.Context, username, password string) (*User, error) {
	if _, _, _, err := m.handles(); err != nil {
		return nil, err
	}

	sanitized := validation.SanitizeInput(username)
	n := len([]rune(sanitized))
	if n < minUsernameLength {
		return nil, newError(ErrValidation, "Invalid username", nil)
	}
	if n > maxUsernameLength {
		return nil, newError(ErrValidation, "Username too long", nil)
	}
	if !validation.ValidatePassword(password).Valid {
		return nil, newError(ErrValidation, "Invalid password", nil)
	}

	return m.signIn(ctx, sanitized, func(ctx context.Context, authHandle provider.Auth) error {
		return authHandle.SignIn(ctx, sanitized, password)
	})
}

// signIn runs the provider call under the gate, against the handles current
// once the gate is held
func (m *Manager) signIn(ctx context.Context, identity string, signIn func(context.Context, provider.Auth) error) (*User, error) {
	m.gate.Lock()
	defer m.gate.Unlock()

	_, authHandle, _, err := m.handles()
	if err != nil {
		return nil, err
	}

	if err := signIn(ctx, authHandle); err != nil {
		log.LogWarnWithFields("auth", "Sign-in rejected", map[string]any{
			"identity": identity,
			"error":    err.Error(),
		})
		return nil, newError(ErrAuthentication, "Authentication failed", err)
	}

	m.mu.Lock()
	m.username = identity
	ttl := m.ttl
	m.mu.Unlock()

	expiresAt, err := m.store.SetExpiry(ctx, ttl)
	if err != nil {
		log.LogWarnWithFields("auth", "Could not persist session expiry", map[string]any{
			"error": err.Error(),
		})
	}
	m.watcher.Start(m.watchCtx)

	log.LogInfoWithFields("auth", "User signed in", map[string]any{
		"identity":  identity,
		"expiresAt": expiresAt.Format(time.RFC3339),
	})

	state, err := authHandle.GetLoginState(ctx)
	if err != nil || state == nil {
		fields := map[string]any{"identity": identity}
		if err != nil {
			fields["error"] = err.Error()
		}
		log.LogWarnWithFields("auth", "Signed in but provider login state unavailable", fields)
		return &User{Username: identity, NickName: identity}, nil
	}
	return mergeUser(state, identity), nil
}

func mergeUser(state *provider.LoginState, username string) *User {
	user := &User{
		UID:       state.UID,
		Email:     state.Email,
		Username:  state.Username,
		NickName:  state.NickName,
		AvatarURL: state.AvatarURL,
		LoginType: state.LoginType,
	}
	if username != "" {
		user.Username = username
		if user.NickName == "" {
			user.NickName = username
		}
	}
	return user
}

// GetLoginState reports whether a user is signed in. An invalid local
// session ends the provider session too, and an expiry that has just
// passed is announced with events.SessionExpired.
func (m *Manager) GetLoginState(ctx context.Context) (LoginState, error) {
	_, authHandle, _, err := m.handles()
	if err != nil {
		return LoginState{}, err
	}

	if !m.store.IsValid(ctx) && !m.dropInvalidSession(ctx) {
		return LoginState{IsLoggedIn: false}, nil
	}

	state, err := authHandle.GetLoginState(ctx)
	if err != nil {
		log.LogErrorWithFields("auth", "Failed to get login state", map[string]any{
			"error": err.Error(),
		})
		return LoginState{}, newError(ErrProvider, "Failed to get login state", err)
	}
	if state == nil {
		return LoginState{IsLoggedIn: false}, nil
	}

	m.mu.RLock()
	username := m.username
	m.mu.RUnlock()

	return LoginState{IsLoggedIn: true, User: mergeUser(state, username)}, nil
}

// dropInvalidSession ends a session whose local expiry is missing or past.
// It returns true if, by the time the gate was acquired, a concurrent
// login had made the session valid again.
func (m *Manager) dropInvalidSession(ctx context.Context) bool {
	if _, ok := m.store.GetExpiry(ctx); ok {
		if m.ExpireSession(ctx) {
			return false
		}
		return m.store.IsValid(ctx)
	}

	m.gate.Lock()
	defer m.gate.Unlock()
	if m.store.IsValid(ctx) {
		return true
	}
	if err := m.logoutLocked(ctx); err != nil {
		log.LogDebugWithFields("auth", "Best-effort logout without session failed", map[string]any{
			"error": err.Error(),
		})
	}
	return false
}

// ExpireSession logs out and emits events.SessionExpired if the local
// expiry has passed. It re-reads the expiry under the gate, so a session
// refreshed by a concurrent login is left alone. Used by the watcher.
func (m *Manager) ExpireSession(ctx context.Context) bool {
	m.gate.Lock()
	expiresAt, ok := m.store.GetExpiry(ctx)
	if !ok || m.clock.Now().Before(expiresAt) {
		m.gate.Unlock()
		return false
	}

	if err := m.logoutLocked(ctx); err != nil {
		log.LogWarnWithFields("auth", "Provider sign-out failed during expiry", map[string]any{
			"error": err.Error(),
		})
	}
	m.gate.Unlock()

	log.LogInfoWithFields("auth", "Session expired", map[string]any{
		"expiresAt": expiresAt.Format(time.RFC3339),
	})
	// handlers may call back into the manager, so the gate is released first
	m.bus.Emit(events.SessionExpired)
	return true
}

// Logout signs out of the provider. Local identity, expiry and watcher are
// cleared even when the provider call fails.
func (m *Manager) Logout(ctx context.Context) error {
	if _, _, _, err := m.handles(); err != nil {
		return err
	}

	m.gate.Lock()
	defer m.gate.Unlock()
	return m.logoutLocked(ctx)
}

// logoutLocked requires the gate
func (m *Manager) logoutLocked(ctx context.Context) error {
	m.mu.Lock()
	authHandle := m.auth
	m.username = ""
	m.mu.Unlock()

	var signOutErr error
	if authHandle != nil {
		signOutErr = authHandle.SignOut(ctx)
	}

	if err := m.store.Clear(ctx); err != nil {
		log.LogWarnWithFields("auth", "Could not clear session expiry", map[string]any{
			"error": err.Error(),
		})
	}
	m.watcher.Stop()

	if signOutErr != nil {
		log.LogErrorWithFields("auth", "Logout failed", map[string]any{
			"error": signOutErr.Error(),
		})
		return newError(ErrLogout, "Logout failed", signOutErr)
	}
	log.LogDebug("Signed out")
	return nil
}
