// Package auth provides the token store and the bearer-authenticated API
// client shared by every remote call the register makes.
package auth

import "errors"

var (
	// ErrUnauthenticated indicates there is no usable access token: either
	// none was ever stored, or a freshly refreshed token was rejected too.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrSessionExpired indicates a refresh was attempted and failed; the
	// stored pair has been cleared and the user must log in again.
	ErrSessionExpired = errors.New("session expired")

	// ErrInvalidCredentials indicates the login endpoint rejected the
	// supplied username/password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNoSavedSession indicates the persistence backend holds no token pair.
	ErrNoSavedSession = errors.New("no saved session")
)
