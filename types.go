package goSession

import (
	"github.com/MrEthical07/goSession/authapi"
	"github.com/MrEthical07/goSession/transport"
)

// User is the authenticated account profile.
type User = authapi.User

// UserStatus is the account state reported by the backend.
type UserStatus = authapi.UserStatus

const (
	StatusActive   = authapi.StatusActive
	StatusInactive = authapi.StatusInactive
	StatusLocked   = authapi.StatusLocked
)

// TokenResponse is returned by login and refresh.
type TokenResponse = authapi.TokenResponse

// HTTPError is the normalized form of every backend failure. Use
// errors.As or the Is* helpers in errors.go to inspect it.
type HTTPError = transport.StatusError
