package sessionsync

import (
	"time"

	"github.com/barangayhub/portal/internal/role"
)

// Session is the authenticated principal as reported by the collaborator.
type Session struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName,omitempty"`
	Role        role.Role `json:"role"`
}

// Profile is the extended record keyed by a session's identifier. Its role
// drives capability derivation.
type Profile struct {
	ID            string    `json:"id"`
	FullName      string    `json:"fullName,omitempty"`
	Role          role.Role `json:"role"`
	Barangay      string    `json:"barangay,omitempty"`
	ContactNumber string    `json:"contactNumber,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// EventKind names a session lifecycle event emitted by the collaborator.
type EventKind string

const (
	EventInitialSession EventKind = "INITIAL_SESSION"
	EventSignedIn       EventKind = "SIGNED_IN"
	EventSignedOut      EventKind = "SIGNED_OUT"
	EventTokenRefreshed EventKind = "TOKEN_REFRESHED"
	EventUserUpdated    EventKind = "USER_UPDATED"
)

// Event is a session-change notification. A nil Session means the
// collaborator no longer has an active session.
type Event struct {
	Kind    EventKind
	Session *Session
}

// State is the synchronizer's position in its state machine.
type State int

const (
	StateUnresolved State = iota
	StateResolving
	StateAuthenticated
	StateAnonymous
)

func (s State) String() string {
	switch s {
	case StateUnresolved:
		return "unresolved"
	case StateResolving:
		return "resolving"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	}
	return "unknown"
}

// Snapshot is an immutable view of the synchronizer. Values returned by the
// synchronizer are never modified afterwards; pointer fields must be treated
// as read-only.
type Snapshot struct {
	State   State
	Session *Session
	Profile *Profile
	Loading bool
	Err     *Error

	// Provisional is the locally cached session shown before the first
	// authoritative resolution. It never feeds Session or the capability flags.
	Provisional *Session

	// Seq is the resolution sequence number the snapshot was committed under.
	Seq uint64
}

// Capabilities derives the role flags from the profile.
func (s Snapshot) Capabilities() role.Capabilities {
	if s.Profile == nil {
		return role.Capabilities{}
	}
	r := s.Profile.Role
	return role.Derive(&r)
}

// IsAdmin reports whether the profile role is admin or superadmin.
func (s Snapshot) IsAdmin() bool { return s.Capabilities().Admin }

// IsHealthWorker reports whether the profile role is health_worker.
func (s Snapshot) IsHealthWorker() bool { return s.Capabilities().HealthWorker }

// IsTanod reports whether the profile role is tanod.
func (s Snapshot) IsTanod() bool { return s.Capabilities().Tanod }

// IsOfficial reports whether the profile role is barangay_official.
func (s Snapshot) IsOfficial() bool { return s.Capabilities().Official }

// IsResident reports whether the profile role is resident.
func (s Snapshot) IsResident() bool { return s.Capabilities().Resident }

// SignUpRequest carries the fields forwarded to the collaborator on sign-up.
type SignUpRequest struct {
	Email       string
	Password    string
	DisplayName string
}
