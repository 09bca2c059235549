package validation

import (
	"strings"

	"github.com/barangayhub/portal/internal/role"
)

// AssignRoleRequest mirrors the fields needed for role assignment validation.
type AssignRoleRequest struct {
	Role string
}

// ValidateAssignRoleRequest validates the fields of a role assignment request.
func ValidateAssignRoleRequest(req AssignRoleRequest) []FieldError {
	var errs []FieldError

	if strings.TrimSpace(req.Role) == "" {
		errs = append(errs, FieldError{Field: "role", Message: "role is required"})
	} else if _, err := role.Parse(req.Role); err != nil {
		errs = append(errs, FieldError{Field: "role", Message: "role must be one of: " + roleList()})
	}

	return errs
}

func roleList() string {
	names := make([]string, 0, len(role.All))
	for _, r := range role.All {
		names = append(names, string(r))
	}
	return strings.Join(names, ", ")
}
