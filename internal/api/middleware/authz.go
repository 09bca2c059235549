package middleware

import (
	"net/http"

	"github.com/barangayhub/portal/internal/api/response"
	"github.com/barangayhub/portal/internal/role"
)

// RequireRole returns middleware that rejects identities whose role does not
// grant any of the required roles. Requiring role.Admin admits superadmins.
func RequireRole(roles ...role.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := GetRequestID(r.Context())

			identity := GetIdentity(r.Context())
			if identity == nil {
				response.Err(w, http.StatusUnauthorized, "UNAUTHORIZED", "Bearer token is required", requestID)
				return
			}

			current := identity.Role
			if !role.Derive(&current).Has(roles...) {
				response.Err(w, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions", requestID)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
