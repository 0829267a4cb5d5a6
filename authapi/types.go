package authapi

import (
	"time"

	"github.com/MrEthical07/goSession/transport"
)

const (
	PathLogin     = "/auth/login"
	PathRefresh   = "/auth/refresh"
	PathRegister  = "/auth/register"
	PathMe        = "/auth/me"
	PathLogout    = "/auth/logout"
	PathLogoutAll = "/auth/logout-all"
)

// UserStatus is the account state reported by the backend.
type UserStatus string

const (
	StatusActive   UserStatus = "ACTIVE"
	StatusInactive UserStatus = "INACTIVE"
	StatusLocked   UserStatus = "LOCKED"
)

// Valid reports whether s is one of the known statuses.
func (s UserStatus) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusLocked:
		return true
	}
	return false
}

// User is the authenticated account profile.
type User struct {
	ID          int64      `json:"id"`
	Email       string     `json:"email"`
	Username    string     `json:"username"`
	FullName    string     `json:"fullName,omitempty"`
	Status      UserStatus `json:"status"`
	LastLoginAt string     `json:"lastLoginAt,omitempty"`
	CreatedAt   string     `json:"createdAt,omitempty"`
}

// LoginRequest carries credentials. Identifier is a username or email.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// TokenResponse is returned by login and refresh.
type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// ExpiresInDuration converts ExpiresIn seconds.
func (t *TokenResponse) ExpiresInDuration() time.Duration {
	return time.Duration(t.ExpiresIn) * time.Second
}

type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the backend error body.
type ErrorResponse = transport.ErrorResponse
