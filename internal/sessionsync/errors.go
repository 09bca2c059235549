package sessionsync

import (
	"errors"
	"fmt"
)

// ErrNoSession is returned by a Collaborator when there is no active session.
var ErrNoSession = errors.New("no active session")

// ErrAlreadyStarted is returned by Start when called more than once.
var ErrAlreadyStarted = errors.New("synchronizer already started")

// ErrorKind classifies a failed resolution.
type ErrorKind string

const (
	KindCollaboratorUnavailable ErrorKind = "collaborator_unavailable"
	KindNotFound                ErrorKind = "not_found"
	KindProfileFetchFailed      ErrorKind = "profile_fetch_failed"
)

// Sentinels matching each kind with errors.Is.
var (
	ErrCollaboratorUnavailable = &Error{Kind: KindCollaboratorUnavailable}
	ErrNotFound                = &Error{Kind: KindNotFound}
	ErrProfileFetchFailed      = &Error{Kind: KindProfileFetchFailed}
)

// Error describes why the last resolution did not produce an identity.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// classify maps a collaborator failure from the current-user call to a kind.
func classify(err error) *Error {
	if errors.Is(err, ErrNoSession) {
		return &Error{Kind: KindNotFound, Err: err}
	}
	return &Error{Kind: KindCollaboratorUnavailable, Err: err}
}
