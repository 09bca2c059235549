package validation

import (
	"net/mail"
	"strings"
)

// MinPasswordLength is the shortest password accepted on sign-up.
const MinPasswordLength = 8

// SignUpRequest mirrors the fields needed for sign-up validation.
type SignUpRequest struct {
	Email       string
	Password    string
	DisplayName string
	Barangay    string
}

// ValidateSignUpRequest validates the fields of a sign-up request.
func ValidateSignUpRequest(req SignUpRequest) []FieldError {
	var errs []FieldError

	errs = append(errs, validateEmail(req.Email)...)

	if req.Password == "" {
		errs = append(errs, FieldError{Field: "password", Message: "password is required"})
	} else if len(req.Password) < MinPasswordLength {
		errs = append(errs, FieldError{Field: "password", Message: "password must be at least 8 characters"})
	} else if len(req.Password) > 72 {
		errs = append(errs, FieldError{Field: "password", Message: "password must be at most 72 bytes"})
	}

	if len(strings.TrimSpace(req.DisplayName)) > 255 {
		errs = append(errs, FieldError{Field: "displayName", Message: "displayName must be at most 255 characters"})
	}
	if len(strings.TrimSpace(req.Barangay)) > 255 {
		errs = append(errs, FieldError{Field: "barangay", Message: "barangay must be at most 255 characters"})
	}

	return errs
}

// TokenRequest mirrors the fields needed for password sign-in validation.
type TokenRequest struct {
	Email    string
	Password string
}

// ValidateTokenRequest validates the fields of a sign-in request.
func ValidateTokenRequest(req TokenRequest) []FieldError {
	var errs []FieldError

	if strings.TrimSpace(req.Email) == "" {
		errs = append(errs, FieldError{Field: "email", Message: "email is required"})
	}
	if req.Password == "" {
		errs = append(errs, FieldError{Field: "password", Message: "password is required"})
	}

	return errs
}

func validateEmail(raw string) []FieldError {
	email := strings.TrimSpace(raw)
	if email == "" {
		return []FieldError{{Field: "email", Message: "email is required"}}
	}
	if len(email) > 320 {
		return []FieldError{{Field: "email", Message: "email must be at most 320 characters"}}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return []FieldError{{Field: "email", Message: "email must be a valid address"}}
	}
	return nil
}
