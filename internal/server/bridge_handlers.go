package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dgellow/resource-desk/internal/auth"
	jsonwriter "github.com/dgellow/resource-desk/internal/json"
	"github.com/dgellow/resource-desk/internal/log"
	"github.com/dgellow/resource-desk/internal/provider"
	"github.com/dgellow/resource-desk/internal/validation"
)

// maxBodyBytes caps request bodies; the largest legitimate one is a temp URL
// request for a few hundred files
const maxBodyBytes = 256 << 10

// SessionManager is the part of auth.Manager the bridge drives
type SessionManager interface {
	Initialized() bool
	LoginWithEmail(ctx context.Context, email, password string) (*auth.User, error)
	LoginWithUsernameAndPassword(ctx context.Context, username, password string) (*auth.User, error)
	Register(ctx context.Context, email, password string) error
	Logout(ctx context.Context) error
	GetLoginState(ctx context.Context) (auth.LoginState, error)
	SetSessionTTL(ctx context.Context, minutes float64) error
	SessionTTL() float64
	SessionExpiry(ctx context.Context) (time.Time, bool)
	GetResources(ctx context.Context) ([]provider.Document, error)
	GetTempFileURLs(ctx context.Context, files []provider.FileRequest) ([]provider.TempFile, error)
}

var _ SessionManager = (*auth.Manager)(nil)

// BridgeHandlers serves the JSON API the UI uses in place of IPC calls
type BridgeHandlers struct {
	manager SessionManager
}

// NewBridgeHandlers creates the bridge handlers
func NewBridgeHandlers(manager SessionManager) *BridgeHandlers {
	return &BridgeHandlers{manager: manager}
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ttlRequest struct {
	Minutes float64 `json:"minutes"`
}

type tempURLRequest struct {
	Files []provider.FileRequest `json:"files"`
}

type userResponse struct {
	Success bool       `json:"success"`
	User    *auth.User `json:"user"`
}

type stateResponse struct {
	Success           bool       `json:"success"`
	IsLoggedIn        bool       `json:"isLoggedIn"`
	User              *auth.User `json:"user"`
	ExpiresAt         int64      `json:"expiresAt,omitempty"`
	SessionTTLMinutes float64    `json:"sessionTtlMinutes"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type ttlResponse struct {
	Success bool    `json:"success"`
	Minutes float64 `json:"minutes"`
}

type resourcesResponse struct {
	Success   bool                `json:"success"`
	Resources []provider.Document `json:"resources"`
}

type tempURLResponse struct {
	Success bool                `json:"success"`
	Files   []provider.TempFile `json:"files"`
}

// LoginHandler signs in with either an email or a username; the identifier
// decides which
func (h *BridgeHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var (
		user *auth.User
		err  error
	)
	id := validation.ValidateUsernameOrEmail(req.Identifier)
	if id.Type == validation.InputEmail {
		user, err = h.manager.LoginWithEmail(r.Context(), req.Identifier, req.Password)
	} else {
		user, err = h.manager.LoginWithUsernameAndPassword(r.Context(), req.Identifier, req.Password)
	}
	if err != nil {
		writeManagerError(w, r, err)
		return
	}

	_ = jsonwriter.Write(w, userResponse{Success: true, User: user})
}

// RegisterHandler creates an account without signing in
func (h *BridgeHandlers) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.manager.Register(r.Context(), req.Email, req.Password); err != nil {
		writeManagerError(w, r, err)
		return
	}

	_ = jsonwriter.WriteResponse(w, http.StatusCreated, messageResponse{
		Success: true,
		Message: "Registration successful",
	})
}

// LogoutHandler ends the session
func (h *BridgeHandlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Logout(r.Context()); err != nil {
		writeManagerError(w, r, err)
		return
	}
	_ = jsonwriter.Write(w, messageResponse{Success: true})
}

// StateHandler reports who is signed in and when the session ends
func (h *BridgeHandlers) StateHandler(w http.ResponseWriter, r *http.Request) {
	state, err := h.manager.GetLoginState(r.Context())
	if err != nil {
		writeManagerError(w, r, err)
		return
	}

	resp := stateResponse{
		Success:           true,
		IsLoggedIn:        state.IsLoggedIn,
		User:              state.User,
		SessionTTLMinutes: h.manager.SessionTTL(),
	}
	if state.IsLoggedIn {
		if expiry, ok := h.manager.SessionExpiry(r.Context()); ok {
			resp.ExpiresAt = expiry.UnixMilli()
		}
	}
	_ = jsonwriter.Write(w, resp)
}

// GetTTLHandler returns the TTL applied to the next login
func (h *BridgeHandlers) GetTTLHandler(w http.ResponseWriter, r *http.Request) {
	if !h.manager.Initialized() {
		writeManagerError(w, r, auth.ErrNotInitialized)
		return
	}
	_ = jsonwriter.Write(w, ttlResponse{Success: true, Minutes: h.manager.SessionTTL()})
}

// SetTTLHandler changes the TTL applied to the next login
func (h *BridgeHandlers) SetTTLHandler(w http.ResponseWriter, r *http.Request) {
	var req ttlRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.manager.SetSessionTTL(r.Context(), req.Minutes); err != nil {
		writeManagerError(w, r, err)
		return
	}
	_ = jsonwriter.Write(w, ttlResponse{Success: true, Minutes: req.Minutes})
}

// ResourcesHandler lists the resources collection
func (h *BridgeHandlers) ResourcesHandler(w http.ResponseWriter, r *http.Request) {
	docs, err := h.manager.GetResources(r.Context())
	if err != nil {
		writeManagerError(w, r, err)
		return
	}
	if docs == nil {
		docs = []provider.Document{}
	}
	_ = jsonwriter.Write(w, resourcesResponse{Success: true, Resources: docs})
}

// TempFileURLsHandler resolves download URLs for stored files
func (h *BridgeHandlers) TempFileURLsHandler(w http.ResponseWriter, r *http.Request) {
	var req tempURLRequest
	if !decodeBody(w, r, &req) {
		return
	}
	for _, f := range req.Files {
		if f.FileID == "" {
			jsonwriter.WriteBadRequest(w, "fileId is required for every file")
			return
		}
	}

	files, err := h.manager.GetTempFileURLs(r.Context(), req.Files)
	if err != nil {
		writeManagerError(w, r, err)
		return
	}
	if files == nil {
		files = []provider.TempFile{}
	}
	_ = jsonwriter.Write(w, tempURLResponse{Success: true, Files: files})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonwriter.WriteError(w, http.StatusRequestEntityTooLarge, "Request body too large", jsonwriter.CodeBadRequest)
			return false
		}
		jsonwriter.WriteBadRequest(w, "Invalid request body")
		return false
	}
	return true
}

// writeManagerError renders a Manager error as {success:false, error, errorCode}
func writeManagerError(w http.ResponseWriter, r *http.Request, err error) {
	status := auth.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.LogErrorWithFields("bridge", "Request failed", map[string]any{
			"path":       r.URL.Path,
			"error":      err.Error(),
			"request_id": RequestIDFromContext(r.Context()),
		})
	}
	jsonwriter.WriteError(w, status, auth.MessageOf(err), auth.CodeOf(err))
}
