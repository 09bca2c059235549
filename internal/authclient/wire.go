package authclient

import (
	"time"

	"github.com/barangayhub/portal/internal/role"
	"github.com/barangayhub/portal/internal/sessionsync"
)

type envelope[T any] struct {
	Data  T `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signUpBody struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName,omitempty"`
}

type userPayload struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	Role        role.Role `json:"role"`
	SessionID   string    `json:"sessionId"`
}

func (u userPayload) session() *sessionsync.Session {
	return &sessionsync.Session{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Role:        u.Role,
	}
}

type tokenPayload struct {
	AccessToken string      `json:"accessToken"`
	ExpiresAt   time.Time   `json:"expiresAt"`
	SessionID   string      `json:"sessionId"`
	User        userPayload `json:"user"`
}

type profilePayload struct {
	ID            string    `json:"id"`
	FullName      string    `json:"fullName"`
	Role          role.Role `json:"role"`
	Barangay      string    `json:"barangay"`
	ContactNumber string    `json:"contactNumber"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (p profilePayload) profile() *sessionsync.Profile {
	return &sessionsync.Profile{
		ID:            p.ID,
		FullName:      p.FullName,
		Role:          p.Role,
		Barangay:      p.Barangay,
		ContactNumber: p.ContactNumber,
		UpdatedAt:     p.UpdatedAt,
	}
}

// serverEvent is the data payload of a server-sent session event.
type serverEvent struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
}
