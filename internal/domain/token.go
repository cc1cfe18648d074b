package domain

import "time"

// TokenPair is the access/refresh credential pair issued at login and
// rotated by a successful refresh. A zero ExpiresAt means the expiry of the
// access token is unknown.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

// Empty reports whether the pair carries no credentials at all.
func (p TokenPair) Empty() bool {
	return p.AccessToken == "" && p.RefreshToken == ""
}
