package config

import "strings"

// OAuthConfig configures the OAuth2 refresh transport.
type OAuthConfig interface {
	GetOAuthTokenURL() string
	GetOAuthClientID() string
	GetOAuthClientSecret() string
	GetOAuthScopes() []string
	GetOIDCIssuer() string
}

type OAuth struct{}

var _ OAuthConfig = OAuth{}

func (OAuth) GetOAuthTokenURL() string {
	return GetEnv("OAUTH_TOKEN_URL", "")
}

func (OAuth) GetOAuthClientID() string {
	return GetEnv("OAUTH_CLIENT_ID", "")
}

func (OAuth) GetOAuthClientSecret() string {
	return GetEnv("OAUTH_CLIENT_SECRET", "")
}

func (OAuth) GetOAuthScopes() []string {
	raw := GetEnv("OAUTH_SCOPES", "")
	if raw == "" {
		return nil
	}
	return strings.Fields(strings.ReplaceAll(raw, ",", " "))
}

// GetOIDCIssuer returns the issuer whose ID tokens are verified. Empty
// disables ID token verification.
func (OAuth) GetOIDCIssuer() string {
	return GetEnv("OIDC_ISSUER", "")
}
