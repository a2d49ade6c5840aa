// Package domain contains entities without logic, just meta-data
package domain

import "errors"

const MaxUsernameLen = 36

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
)

type UserID string

type User struct {
	ID       UserID `json:"userId"`
	Username string `json:"username"`
}

// Profile is the externally stored view of a user. The relay never
// mutates it, it only caches the latest snapshot pushed by the store.
type Profile struct {
	ID       UserID `json:"userId"`
	Username string `json:"username"`
}

// ValidUsername rejects names the profile store must never hold.
func ValidUsername(name string) error {
	if len(name) == 0 {
		return ErrUsernameEmpty
	}
	if len(name) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	return nil
}
