package role

import (
	"errors"
	"fmt"
	"strings"
)

// Role is the authorization role carried by a user profile.
type Role string

const (
	Resident         Role = "resident"
	Tanod            Role = "tanod"
	BarangayOfficial Role = "barangay_official"
	HealthWorker     Role = "health_worker"
	Admin            Role = "admin"
	SuperAdmin       Role = "superadmin"
)

// ErrUnknownRole is returned when a string does not name a known role.
var ErrUnknownRole = errors.New("unknown role")

// All lists every known role, lowest privilege first.
var All = []Role{Resident, Tanod, BarangayOfficial, HealthWorker, Admin, SuperAdmin}

// Parse converts s into a Role. Matching ignores case and surrounding whitespace.
func Parse(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case Resident, Tanod, BarangayOfficial, HealthWorker, Admin, SuperAdmin:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// Capabilities are the role-membership flags exposed to the UI.
type Capabilities struct {
	Admin        bool `json:"isAdmin"`
	HealthWorker bool `json:"isHealthWorker"`
	Tanod        bool `json:"isTanod"`
	Official     bool `json:"isOfficial"`
	Resident     bool `json:"isResident"`
}

// Derive computes capability flags for r. A nil role yields no capabilities.
// Superadmins are admins.
func Derive(r *Role) Capabilities {
	if r == nil {
		return Capabilities{}
	}
	switch *r {
	case Admin, SuperAdmin:
		return Capabilities{Admin: true}
	case HealthWorker:
		return Capabilities{HealthWorker: true}
	case Tanod:
		return Capabilities{Tanod: true}
	case BarangayOfficial:
		return Capabilities{Official: true}
	case Resident:
		return Capabilities{Resident: true}
	}
	return Capabilities{}
}

// Any reports whether at least one flag is set.
func (c Capabilities) Any() bool {
	return c.Admin || c.HealthWorker || c.Tanod || c.Official || c.Resident
}

// Has reports whether the capabilities satisfy any of the required roles.
// Requiring Admin is satisfied by a superadmin; requiring SuperAdmin is not
// expressible through flags and must be checked on the role itself.
func (c Capabilities) Has(required ...Role) bool {
	for _, r := range required {
		switch r {
		case Admin:
			if c.Admin {
				return true
			}
		case HealthWorker:
			if c.HealthWorker {
				return true
			}
		case Tanod:
			if c.Tanod {
				return true
			}
		case BarangayOfficial:
			if c.Official {
				return true
			}
		case Resident:
			if c.Resident {
				return true
			}
		}
	}
	return false
}
