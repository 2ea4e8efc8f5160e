package auth

import (
	"context"
	"fmt"

	"github.com/dgellow/resource-desk/internal/emailutil"
	"github.com/dgellow/resource-desk/internal/log"
	"github.com/dgellow/resource-desk/internal/provider"
	"github.com/dgellow/resource-desk/internal/validation"
)

// Register creates a provider account. It does not sign in.
func (m *Manager) Register(ctx context.Context, email, password string) error {
	_, authHandle, _, err := m.handles()
	if err != nil {
		return err
	}

	sanitized := validation.SanitizeInput(email)
	if res := validation.ValidateEmail(sanitized); !res.Valid {
		return newError(ErrValidation, res.Error, res.Err())
	}
	if res := validation.ValidatePassword(password); !res.Valid {
		return newError(ErrValidation, res.Error, res.Err())
	}

	// a one or two letter local part would match almost any password
	local := emailutil.LocalPart(sanitized)
	if len([]rune(local)) < minUsernameLength {
		local = ""
	}
	if res := validation.CheckPasswordPatterns(password, local); !res.Valid {
		return newError(ErrValidation, res.Error, res.Err())
	}

	if err := authHandle.SignUp(ctx, sanitized, password); err != nil {
		log.LogErrorWithFields("auth", "Registration failed", map[string]any{
			"email": sanitized,
			"error": err.Error(),
		})
		return newError(ErrRegistration, "Registration failed", err)
	}

	log.LogInfoWithFields("auth", "Account registered", map[string]any{
		"email": sanitized,
	})
	return nil
}

func (m *Manager) requireLogin(ctx context.Context, authHandle provider.Auth) error {
	if !m.store.IsValid(ctx) {
		return newError(ErrNotAuthenticated, "Not authenticated", nil)
	}
	state, err := authHandle.GetLoginState(ctx)
	if err != nil {
		return newError(ErrProvider, "Failed to get login state", err)
	}
	if state == nil {
		return newError(ErrNotAuthenticated, "Not authenticated", nil)
	}
	return nil
}

// GetResources reads up to the configured limit of documents from the
// resource collection
func (m *Manager) GetResources(ctx context.Context) ([]provider.Document, error) {
	_, authHandle, db, err := m.handles()
	if err != nil {
		return nil, err
	}
	if db == nil {
		return nil, newError(ErrDataAccess, "Database not initialized", nil)
	}
	if err := m.requireLogin(ctx, authHandle); err != nil {
		return nil, err
	}

	docs, err := db.Collection(m.collection).Limit(m.limit).Get(ctx)
	if err != nil {
		log.LogErrorWithFields("auth", "Failed to fetch resources", map[string]any{
			"collection": m.collection,
			"error":      err.Error(),
		})
		switch {
		case provider.IsCollectionNotExist(err):
			return nil, newError(ErrCollectionNotExist,
				fmt.Sprintf("Collection %q does not exist. Please create it in the provider console.", m.collection), err)
		case provider.IsPermissionDenied(err):
			return nil, newError(ErrPermissionDenied,
				"Database permission denied. Check the collection's security rules.", err)
		default:
			return nil, newError(ErrDataAccess, "Failed to fetch resources", err)
		}
	}
	if docs == nil {
		docs = []provider.Document{}
	}
	return docs, nil
}

// GetTempFileURLs resolves stored file IDs to temporary download URLs
func (m *Manager) GetTempFileURLs(ctx context.Context, files []provider.FileRequest) ([]provider.TempFile, error) {
	client, authHandle, _, err := m.handles()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return []provider.TempFile{}, nil
	}
	if err := m.requireLogin(ctx, authHandle); err != nil {
		return nil, err
	}

	out, err := client.TempFileURLs(ctx, files)
	if err != nil {
		log.LogErrorWithFields("auth", "Failed to get temp file URLs", map[string]any{
			"files": len(files),
			"error": err.Error(),
		})
		return nil, newError(ErrDataAccess, "Failed to get download URLs", err)
	}
	if out == nil {
		out = []provider.TempFile{}
	}
	return out, nil
}
