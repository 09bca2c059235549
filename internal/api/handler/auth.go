package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/barangayhub/portal/internal/api/middleware"
	"github.com/barangayhub/portal/internal/api/response"
	"github.com/barangayhub/portal/internal/api/validation"
	"github.com/barangayhub/portal/internal/auth"
	"github.com/barangayhub/portal/internal/role"
)

const timeFormat = "2006-01-02T15:04:05Z"

type signUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
	Barangay    string `json:"barangay"`
}

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName,omitempty"`
	Role        role.Role `json:"role"`
	SessionID   string    `json:"sessionId,omitempty"`
	CreatedAt   string    `json:"createdAt,omitempty"`
}

type tokenResponse struct {
	AccessToken string       `json:"accessToken"`
	TokenType   string       `json:"tokenType"`
	ExpiresAt   string       `json:"expiresAt"`
	SessionID   string       `json:"sessionId"`
	User        userResponse `json:"user"`
}

type eventResponse struct {
	ID        string         `json:"id"`
	Kind      auth.EventKind `json:"kind"`
	UserID    string         `json:"userId"`
	SessionID string         `json:"sessionId,omitempty"`
	At        string         `json:"at"`
}

func toUserResponse(u *auth.User) userResponse {
	return userResponse{
		ID:          u.ID.String(),
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Role:        u.Role,
		CreatedAt:   u.CreatedAt.UTC().Format(timeFormat),
	}
}

func toTokenResponse(g *auth.Grant) tokenResponse {
	user := toUserResponse(g.User)
	user.SessionID = g.SessionID.String()
	return tokenResponse{
		AccessToken: g.AccessToken,
		TokenType:   "bearer",
		ExpiresAt:   g.ExpiresAt.UTC().Format(timeFormat),
		SessionID:   g.SessionID.String(),
		User:        user,
	}
}

// AuthHandler handles the /auth/v1 endpoints.
type AuthHandler struct {
	service   *auth.Service
	keepAlive time.Duration
}

// NewAuthHandler creates a new AuthHandler. keepAlive is the interval between
// comment lines on idle event streams.
func NewAuthHandler(service *auth.Service, keepAlive time.Duration) *AuthHandler {
	if keepAlive <= 0 {
		keepAlive = 15 * time.Second
	}
	return &AuthHandler{service: service, keepAlive: keepAlive}
}

// SignUp handles POST /auth/v1/signup.
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req signUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Err(w, http.StatusBadRequest, "INVALID_JSON", "Request body must be valid JSON", requestID)
		return
	}

	fieldErrors := validation.ValidateSignUpRequest(validation.SignUpRequest{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Barangay:    req.Barangay,
	})
	if len(fieldErrors) > 0 {
		response.ErrWithDetails(w, http.StatusBadRequest, "VALIDATION_ERROR", "Input validation failed", fieldErrors, requestID)
		return
	}

	u, err := h.service.SignUp(r.Context(), auth.SignUpInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Barangay:    req.Barangay,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrEmailTaken):
			response.Err(w, http.StatusConflict, "EMAIL_TAKEN", "An account with this email already exists", requestID)
		case errors.Is(err, auth.ErrInvalidInput):
			response.Err(w, http.StatusBadRequest, "VALIDATION_ERROR", "Input validation failed", requestID)
		default:
			slog.Error("failed to sign up", "error", err)
			response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create account", requestID)
		}
		return
	}

	response.Success(w, http.StatusCreated, toUserResponse(u), requestID)
}

// Token handles POST /auth/v1/token (password sign-in).
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Err(w, http.StatusBadRequest, "INVALID_JSON", "Request body must be valid JSON", requestID)
		return
	}

	fieldErrors := validation.ValidateTokenRequest(validation.TokenRequest{
		Email:    req.Email,
		Password: req.Password,
	})
	if len(fieldErrors) > 0 {
		response.ErrWithDetails(w, http.StatusBadRequest, "VALIDATION_ERROR", "Input validation failed", fieldErrors, requestID)
		return
	}

	grant, err := h.service.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			response.Err(w, http.StatusBadRequest, "INVALID_CREDENTIALS", "Invalid login credentials", requestID)
			return
		}
		slog.Error("failed to sign in", "error", err)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to sign in", requestID)
		return
	}

	response.Success(w, http.StatusOK, toTokenResponse(grant), requestID)
}

// Logout handles POST /auth/v1/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	identity := middleware.GetIdentity(r.Context())

	if err := h.service.SignOut(r.Context(), identity); err != nil {
		slog.Error("failed to sign out", "error", err, "session", identity.SessionID)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to sign out", requestID)
		return
	}

	response.NoContent(w)
}

// Refresh handles POST /auth/v1/refresh.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	identity := middleware.GetIdentity(r.Context())

	grant, err := h.service.Refresh(r.Context(), identity)
	if err != nil {
		if errors.Is(err, auth.ErrSessionRevoked) {
			response.Err(w, http.StatusUnauthorized, "UNAUTHORIZED", "Session revoked or expired", requestID)
			return
		}
		slog.Error("failed to refresh session", "error", err, "session", identity.SessionID)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to refresh session", requestID)
		return
	}

	response.Success(w, http.StatusOK, toTokenResponse(grant), requestID)
}

// User handles GET /auth/v1/user.
func (h *AuthHandler) User(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	identity := middleware.GetIdentity(r.Context())

	response.Success(w, http.StatusOK, userResponse{
		ID:          identity.UserID.String(),
		Email:       identity.Email,
		DisplayName: identity.DisplayName,
		Role:        identity.Role,
		SessionID:   identity.SessionID.String(),
	}, requestID)
}

// Events handles GET /auth/v1/events, streaming the caller's session changes
// as server-sent events. The stream ends after the caller's own session is
// signed out.
func (h *AuthHandler) Events(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	identity := middleware.GetIdentity(r.Context())

	flusher, ok := w.(http.Flusher)
	if !ok {
		response.Err(w, http.StatusInternalServerError, "STREAMING_UNSUPPORTED", "Streaming is not supported", requestID)
		return
	}

	events := h.service.Broker().Subscribe(r.Context())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case evt, ok := <-events:
			if !ok {
				return
			}
			if !evt.Concerns(identity.UserID, identity.SessionID) {
				continue
			}
			if err := writeEvent(w, evt); err != nil {
				slog.Warn("failed to write event", "error", err, "session", identity.SessionID)
				return
			}
			flusher.Flush()
			if evt.Kind == auth.EventSignedOut && evt.SessionID == identity.SessionID {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, evt auth.Event) error {
	payload := eventResponse{
		ID:     evt.ID,
		Kind:   evt.Kind,
		UserID: evt.UserID.String(),
		At:     evt.At.UTC().Format(time.RFC3339Nano),
	}
	if evt.SessionID != uuid.Nil {
		payload.SessionID = evt.SessionID.String()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", evt.ID, evt.Kind, data)
	return err
}
