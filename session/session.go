package session

import (
	"encoding/json"
	"time"

	"github.com/jrsteele09/go-session-client/token"
)

// Session is the authenticated user's state. A usable Session always carries
// both tokens; a Session missing either one is treated as absent.
type Session struct {
	// Core identity
	UserID  string
	Name    string
	Email   string
	Network string

	// Tokens, always replaced as a pair
	AccessToken  string
	RefreshToken string

	// Not persisted; only present for the lifetime of the process
	Preferences  map[string]any
	Subscription map[string]any
}

// IsValid reports whether both tokens are present.
func (s Session) IsValid() bool {
	return s.AccessToken != "" && s.RefreshToken != ""
}

// AccessTokenExpiry returns the exp claim when the access token is a JWT.
func (s Session) AccessTokenExpiry() (time.Time, bool) {
	return token.ExpiresAt(s.AccessToken)
}

// Tokens is the token pair as it appears on the wire and in storage.
type Tokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Record is the persisted shape of a Session. Login and refresh responses use
// the same shape, with extra profile fields allowed.
type Record struct {
	UserID  string `json:"id_user"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Network string `json:"network"`
	Tokens  Tokens `json:"tokens"`
}

// payload is a login/refresh response: a Record plus the profile fields that
// are kept in memory but never persisted.
type payload struct {
	Record
	Preferences  map[string]any `json:"preferences,omitempty"`
	Subscription map[string]any `json:"subscription,omitempty"`
}

// ToRecord keeps only the essential fields.
func (s Session) ToRecord() Record {
	return Record{
		UserID:  s.UserID,
		Name:    s.Name,
		Email:   s.Email,
		Network: s.Network,
		Tokens: Tokens{
			Access:  s.AccessToken,
			Refresh: s.RefreshToken,
		},
	}
}

func (r Record) toSession() Session {
	return Session{
		UserID:       r.UserID,
		Name:         r.Name,
		Email:        r.Email,
		Network:      r.Network,
		AccessToken:  r.Tokens.Access,
		RefreshToken: r.Tokens.Refresh,
	}
}

// FromPayload builds a Session from a login-shaped response body: an object
// holding a user identifier and a complete token pair. body may be the
// decoded JSON (map[string]any), raw JSON bytes, or a JSON string.
func FromPayload(body any) (Session, bool) {
	var data []byte
	switch b := body.(type) {
	case nil:
		return Session{}, false
	case []byte:
		data = b
	case string:
		data = []byte(b)
	case json.RawMessage:
		data = b
	case map[string]any:
		if _, ok := b["tokens"].(map[string]any); !ok {
			return Session{}, false
		}
		encoded, err := json.Marshal(b)
		if err != nil {
			return Session{}, false
		}
		data = encoded
	default:
		return Session{}, false
	}

	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Session{}, false
	}
	s := p.Record.toSession()
	if s.UserID == "" || !s.IsValid() {
		return Session{}, false
	}
	s.Preferences = p.Preferences
	s.Subscription = p.Subscription
	return s, true
}
