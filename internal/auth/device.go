package auth

import (
	"time"

	"golang.org/x/oauth2"
)

const defaultTokenType = "Bearer"

// Credentials identify the OAuth client. They are fixed once loaded.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// TokenState is the current access/refresh token pair.
type TokenState struct {
	AccessToken  string    `toml:"access_token" json:"access_token"`
	RefreshToken string    `toml:"refresh_token" json:"refresh_token,omitempty"`
	TokenType    string    `toml:"token_type" json:"token_type,omitempty"`
	Scope        string    `toml:"scope,omitempty" json:"scope,omitempty"`
	ExpiresAt    time.Time `toml:"expires_at" json:"expires_at"`
}

// IsZero reports whether no token is held.
func (t TokenState) IsZero() bool { return t.AccessToken == "" }

// FreshAt reports whether the token can still be used at now, leaving margin
// before expiry. A token without a known expiry is considered fresh.
func (t TokenState) FreshAt(now time.Time, margin time.Duration) bool {
	if t.AccessToken == "" {
		return false
	}
	if t.ExpiresAt.IsZero() {
		return true
	}
	return now.Before(t.ExpiresAt.Add(-margin))
}

// OAuth2 converts the state into an x/oauth2 token.
func (t TokenState) OAuth2() *oauth2.Token {
	typ := t.TokenType
	if typ == "" {
		typ = defaultTokenType
	}
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    typ,
		Expiry:       t.ExpiresAt,
	}
}

// DeviceFlowSession holds the parameters of an in-progress device authorization.
// DeviceCode is used for polling; UserCode and VerificationURI are shown to the user.
type DeviceFlowSession struct {
	DeviceCode      string
	UserCode        string
	VerificationURI string
	ExpiresAt       time.Time
	Interval        time.Duration
}

// PollState is a step of the device-flow polling state machine.
type PollState int

const (
	PollPending PollState = iota
	PollPolling
	PollSucceeded
	PollExpired
	PollFailed
)

func (s PollState) String() string {
	switch s {
	case PollPending:
		return "pending"
	case PollPolling:
		return "polling"
	case PollSucceeded:
		return "succeeded"
	case PollExpired:
		return "expired"
	case PollFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether no further transitions follow s.
func (s PollState) Terminal() bool {
	return s == PollSucceeded || s == PollExpired || s == PollFailed
}
