package sessionsync

import "context"

// Collaborator is the remote authentication provider the synchronizer mirrors.
type Collaborator interface {
	// CurrentUser returns the active session, or an error wrapping
	// ErrNoSession when there is none.
	CurrentUser(ctx context.Context) (*Session, error)

	// OnAuthStateChange delivers session lifecycle events in emission order
	// until ctx ends, after which the channel is closed.
	OnAuthStateChange(ctx context.Context) (<-chan Event, error)

	SignIn(ctx context.Context, email, password string) error
	SignUp(ctx context.Context, req SignUpRequest) error
	SignOut(ctx context.Context) error
}

// ProfileStore fetches the profile belonging to a session identifier. A
// missing profile is reported as (nil, nil).
type ProfileStore interface {
	Profile(ctx context.Context, id string) (*Profile, error)
}

// Cache holds the last authoritative identity so it can be shown
// provisionally on the next start. Implementations must namespace entries.
type Cache interface {
	Load() (*Session, *Profile, bool)
	Store(session Session, profile *Profile) error
	Clear() error
}
