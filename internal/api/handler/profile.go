package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/barangayhub/portal/internal/api/middleware"
	"github.com/barangayhub/portal/internal/api/response"
	"github.com/barangayhub/portal/internal/api/validation"
	"github.com/barangayhub/portal/internal/auth"
	"github.com/barangayhub/portal/internal/role"
)

type assignRoleRequest struct {
	Role string `json:"role"`
}

type profileResponse struct {
	ID            string    `json:"id"`
	FullName      string    `json:"fullName"`
	Role          role.Role `json:"role"`
	Barangay      string    `json:"barangay"`
	ContactNumber string    `json:"contactNumber"`
	CreatedAt     string    `json:"createdAt"`
	UpdatedAt     string    `json:"updatedAt"`
}

func toProfileResponse(p *auth.Profile) profileResponse {
	return profileResponse{
		ID:            p.ID.String(),
		FullName:      p.FullName,
		Role:          p.Role,
		Barangay:      p.Barangay,
		ContactNumber: p.ContactNumber,
		CreatedAt:     p.CreatedAt.UTC().Format(timeFormat),
		UpdatedAt:     p.UpdatedAt.UTC().Format(timeFormat),
	}
}

// ProfileHandler handles the /rest/v1/profiles endpoints.
type ProfileHandler struct {
	service *auth.Service
}

// NewProfileHandler creates a new ProfileHandler.
func NewProfileHandler(service *auth.Service) *ProfileHandler {
	return &ProfileHandler{service: service}
}

// Get handles GET /rest/v1/profiles/{id}. Callers may read their own profile;
// admins and barangay officials may read any.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	identity := middleware.GetIdentity(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Err(w, http.StatusBadRequest, "INVALID_ID", "id must be a valid UUID", requestID)
		return
	}

	callerRole := identity.Role
	if id != identity.UserID && !role.Derive(&callerRole).Has(role.Admin, role.BarangayOfficial) {
		response.Err(w, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions", requestID)
		return
	}

	p, err := h.service.Profile(r.Context(), id)
	if err != nil {
		if errors.Is(err, auth.ErrProfileNotFound) {
			response.Err(w, http.StatusNotFound, "NOT_FOUND", "Profile not found", requestID)
			return
		}
		slog.Error("failed to get profile", "error", err, "id", id)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get profile", requestID)
		return
	}

	response.Success(w, http.StatusOK, toProfileResponse(p), requestID)
}

// AssignRole handles PATCH /rest/v1/profiles/{id}/role.
func (h *ProfileHandler) AssignRole(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	identity := middleware.GetIdentity(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Err(w, http.StatusBadRequest, "INVALID_ID", "id must be a valid UUID", requestID)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req assignRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Err(w, http.StatusBadRequest, "INVALID_JSON", "Request body must be valid JSON", requestID)
		return
	}

	fieldErrors := validation.ValidateAssignRoleRequest(validation.AssignRoleRequest{Role: req.Role})
	if len(fieldErrors) > 0 {
		response.ErrWithDetails(w, http.StatusBadRequest, "VALIDATION_ERROR", "Input validation failed", fieldErrors, requestID)
		return
	}
	newRole, _ := role.Parse(req.Role) // already validated

	if err := h.service.AssignRole(r.Context(), identity, id, newRole); err != nil {
		switch {
		case errors.Is(err, auth.ErrForbidden):
			response.Err(w, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions", requestID)
		case errors.Is(err, auth.ErrUserNotFound):
			response.Err(w, http.StatusNotFound, "NOT_FOUND", "User not found", requestID)
		case errors.Is(err, auth.ErrInvalidInput):
			response.Err(w, http.StatusBadRequest, "VALIDATION_ERROR", "Input validation failed", requestID)
		default:
			slog.Error("failed to assign role", "error", err, "id", id)
			response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to assign role", requestID)
		}
		return
	}

	p, err := h.service.Profile(r.Context(), id)
	if err != nil {
		if errors.Is(err, auth.ErrProfileNotFound) {
			response.NoContent(w)
			return
		}
		slog.Error("failed to get profile", "error", err, "id", id)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get profile", requestID)
		return
	}

	response.Success(w, http.StatusOK, toProfileResponse(p), requestID)
}
