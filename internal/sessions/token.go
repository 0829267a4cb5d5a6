package sessions

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"

	"github.com/segmentio/ksuid"
)

const (
	sessionIDSize = len(ksuid.Nil)
	secretSize    = 32
	tokenRawSize  = sessionIDSize + secretSize
)

// Secret is the random half of a refresh token.
type Secret [secretSize]byte

// ErrMalformedToken reports a refresh token that does not decode.
var ErrMalformedToken = errors.New("malformed refresh token")

// NewSessionID returns a time-ordered KSUID session ID.
func NewSessionID() (string, error) {
	id, err := ksuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func NewSecret() (Secret, error) {
	var s Secret
	_, err := rand.Read(s[:])
	return s, err
}

// Hash returns the hex SHA-256 of the secret, the only form ever stored.
func (s Secret) Hash() string {
	sum := sha256.Sum256(s[:])
	return hex.EncodeToString(sum[:])
}

// EncodeRefreshToken packs sessionID and secret into an opaque token.
func EncodeRefreshToken(sessionID string, secret Secret) (string, error) {
	sid, err := ksuid.Parse(sessionID)
	if err != nil {
		return "", errors.New("invalid session id")
	}

	var raw [tokenRawSize]byte
	copy(raw[:sessionIDSize], sid.Bytes())
	copy(raw[sessionIDSize:], secret[:])
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// DecodeRefreshToken splits a token into its session ID and secret.
func DecodeRefreshToken(token string) (string, Secret, error) {
	var secret Secret

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != tokenRawSize {
		return "", secret, ErrMalformedToken
	}
	sid, err := ksuid.FromBytes(raw[:sessionIDSize])
	if err != nil {
		return "", secret, ErrMalformedToken
	}
	copy(secret[:], raw[sessionIDSize:])
	return sid.String(), secret, nil
}
