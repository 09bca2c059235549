package authclient

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrClosed is returned by operations on a closed Client.
var ErrClosed = errors.New("authclient: closed")

// APIError is an error response from the portal.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("portal: %s (%d %s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("portal: unexpected status %d", e.Status)
}

// Is matches sentinel APIErrors by code.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	return ok && t.Code != "" && t.Code == e.Code
}

var (
	ErrInvalidCredentials = &APIError{Code: "INVALID_CREDENTIALS"}
	ErrEmailTaken         = &APIError{Code: "EMAIL_TAKEN"}
	ErrValidation         = &APIError{Code: "VALIDATION_ERROR"}
	ErrRateLimited        = &APIError{Code: "RATE_LIMITED"}
	ErrForbidden          = &APIError{Code: "FORBIDDEN"}
)

func isStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

func isUnauthorized(err error) bool { return isStatus(err, http.StatusUnauthorized) }
