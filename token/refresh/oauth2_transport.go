package refresh

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-session-client/session"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

var _ Transport = (*OAuth2Transport)(nil)

// OAuth2Transport performs an RFC 6749 refresh_token grant against the token
// endpoint of an oauth2.Config. When an ID token verifier is set, a returned
// id_token is verified and its profile claims are copied into the Session.
type OAuth2Transport struct {
	config   *oauth2.Config
	verifier *oidc.IDTokenVerifier
	client   *http.Client
}

type OAuth2Option func(*OAuth2Transport)

func WithIDTokenVerifier(verifier *oidc.IDTokenVerifier) OAuth2Option {
	return func(t *OAuth2Transport) {
		t.verifier = verifier
	}
}

func WithHTTPClient(client *http.Client) OAuth2Option {
	return func(t *OAuth2Transport) {
		t.client = client
	}
}

type idTokenClaims struct {
	Subject string `json:"sub"`
	Name    string `json:"name"`
	Email   string `json:"email"`
}

func NewOAuth2Transport(config *oauth2.Config, options ...OAuth2Option) (*OAuth2Transport, error) {
	if config == nil {
		return nil, pkgerrors.New("[NewOAuth2Transport] oauth2 config is required")
	}
	if config.Endpoint.TokenURL == "" {
		return nil, pkgerrors.New("[NewOAuth2Transport] token url is required")
	}
	t := &OAuth2Transport{config: config}
	for _, opt := range options {
		opt(t)
	}
	return t, nil
}

func (t *OAuth2Transport) Exchange(ctx context.Context, refreshToken string) (session.Session, error) {
	if t.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, t.client)
	}

	tok, err := t.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			return session.Session{}, &ExchangeError{Status: retrieveErr.Response.StatusCode, Body: retrieveBody(retrieveErr)}
		}
		return session.Session{}, fmt.Errorf("refresh grant failed: %w", err)
	}

	s := session.Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	// Servers may omit the refresh token when they do not rotate it.
	if s.RefreshToken == "" {
		s.RefreshToken = refreshToken
	}

	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || t.verifier == nil {
		return s, nil
	}
	idToken, err := t.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return session.Session{}, fmt.Errorf("failed to verify ID token: %w", err)
	}
	var claims idTokenClaims
	if err := idToken.Claims(&claims); err != nil {
		return session.Session{}, fmt.Errorf("failed to parse ID token claims: %w", err)
	}
	log.Debug().Str("subject", claims.Subject).Msg("ID token verified")

	s.UserID = claims.Subject
	s.Name = claims.Name
	s.Email = claims.Email
	return s, nil
}

// retrieveBody keeps the RFC 6749 error fields so expiry can be detected.
func retrieveBody(err *oauth2.RetrieveError) any {
	if err.ErrorCode == "" {
		if len(err.Body) == 0 {
			return nil
		}
		return string(err.Body)
	}
	body := map[string]any{"error": err.ErrorCode}
	if err.ErrorDescription != "" {
		body["error_description"] = err.ErrorDescription
	}
	return body
}
