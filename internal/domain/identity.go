// Package domain contains entities without logic, just meta-data.
package domain

import "errors"

const MaxUsernameLen = 36

var (
	ErrUsernameEmpty   = errors.New("username empty")
	ErrUsernameTooLong = errors.New("username too long")
	ErrUserIDEmpty     = errors.New("user id empty")
)

type UserID string

// Identity is the authenticated principal attached to a live connection.
// It comes out of the connection gate and never changes afterwards.
type Identity struct {
	UserID   UserID `json:"userId"`
	Username string `json:"username"`
}

// NewIdentity is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewIdentity(userID, username string) (Identity, error) {
	if userID == "" {
		return Identity{}, ErrUserIDEmpty
	}
	if len(username) == 0 {
		return Identity{}, ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return Identity{}, ErrUsernameTooLong
	}
	return Identity{UserID: UserID(userID), Username: username}, nil
}
