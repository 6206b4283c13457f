package refresh_test

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-session-client/internal/httpext"
	"github.com/jrsteele09/go-session-client/token/refresh"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const (
	testIssuer   = "https://issuer.example.com"
	testClientID = "session-client"
)

type tokenEndpoint struct {
	key     *rsa.PrivateKey
	rotate  bool
	idToken bool
}

func (e tokenEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "refresh_token" {
		httpext.JSON(w, http.StatusBadRequest, map[string]any{"error": "unsupported_grant_type"})
		return
	}
	if r.PostForm.Get("refresh_token") != "refresh-0" {
		httpext.JSON(w, http.StatusBadRequest, map[string]any{
			"error":             "invalid_grant",
			"error_description": "Refresh token expired",
		})
		return
	}

	resp := map[string]any{
		"access_token": "access-1",
		"token_type":   "Bearer",
		"expires_in":   300,
	}
	if e.rotate {
		resp["refresh_token"] = "refresh-1"
	}
	if e.idToken {
		claims := jwt.MapClaims{
			"iss":   testIssuer,
			"aud":   testClientID,
			"sub":   "user-1",
			"name":  "Ada Lovelace",
			"email": "ada@example.com",
			"iat":   time.Now().Unix(),
			"exp":   time.Now().Add(time.Hour).Unix(),
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(e.key)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		resp["id_token"] = signed
	}
	httpext.JSON(w, http.StatusOK, resp)
}

func oauth2Config(url string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     testClientID,
		ClientSecret: "secret",
		Endpoint: oauth2.Endpoint{
			TokenURL:  url,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func TestOAuth2Transport_Exchange(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	server := httptest.NewServer(tokenEndpoint{key: key, rotate: true, idToken: true})
	defer server.Close()

	verifier := oidc.NewVerifier(testIssuer, &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}, &oidc.Config{ClientID: testClientID})
	transport, err := refresh.NewOAuth2Transport(oauth2Config(server.URL),
		refresh.WithIDTokenVerifier(verifier),
		refresh.WithHTTPClient(server.Client()),
	)
	require.NoError(t, err)

	s, err := transport.Exchange(context.Background(), "refresh-0")
	require.NoError(t, err)
	require.Equal(t, "access-1", s.AccessToken)
	require.Equal(t, "refresh-1", s.RefreshToken)
	require.Equal(t, "user-1", s.UserID)
	require.Equal(t, "Ada Lovelace", s.Name)
	require.Equal(t, "ada@example.com", s.Email)
}

func TestOAuth2Transport_KeepsRefreshTokenWhenNotRotated(t *testing.T) {
	server := httptest.NewServer(tokenEndpoint{})
	defer server.Close()

	transport, err := refresh.NewOAuth2Transport(oauth2Config(server.URL), refresh.WithHTTPClient(server.Client()))
	require.NoError(t, err)

	s, err := transport.Exchange(context.Background(), "refresh-0")
	require.NoError(t, err)
	require.Equal(t, "access-1", s.AccessToken)
	require.Equal(t, "refresh-0", s.RefreshToken)
}

func TestOAuth2Transport_RejectedGrant(t *testing.T) {
	server := httptest.NewServer(tokenEndpoint{})
	defer server.Close()

	transport, err := refresh.NewOAuth2Transport(oauth2Config(server.URL), refresh.WithHTTPClient(server.Client()))
	require.NoError(t, err)

	_, err = transport.Exchange(context.Background(), "refresh-x")
	var exchangeErr *refresh.ExchangeError
	require.ErrorAs(t, err, &exchangeErr)
	require.Equal(t, http.StatusBadRequest, exchangeErr.Status)
	require.Equal(t, map[string]any{
		"error":             "invalid_grant",
		"error_description": "Refresh token expired",
	}, exchangeErr.Body)
}

func TestOAuth2Transport_InvalidIDToken(t *testing.T) {
	signingKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	server := httptest.NewServer(tokenEndpoint{key: signingKey, rotate: true, idToken: true})
	defer server.Close()

	verifier := oidc.NewVerifier(testIssuer, &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&otherKey.PublicKey}}, &oidc.Config{ClientID: testClientID})
	transport, err := refresh.NewOAuth2Transport(oauth2Config(server.URL),
		refresh.WithIDTokenVerifier(verifier),
		refresh.WithHTTPClient(server.Client()),
	)
	require.NoError(t, err)

	_, err = transport.Exchange(context.Background(), "refresh-0")
	require.Error(t, err)
}

func TestNewOAuth2TransportRequiresTokenURL(t *testing.T) {
	_, err := refresh.NewOAuth2Transport(nil)
	require.Error(t, err)
	_, err = refresh.NewOAuth2Transport(&oauth2.Config{})
	require.Error(t, err)
}
