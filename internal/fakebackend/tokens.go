package fakebackend

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

var (
	ErrTokenNotFound = errors.New("refresh token not found")
	ErrTokenInactive = errors.New("refresh token already used")
	ErrTokenExpired  = errors.New("refresh token expired")
)

// storedRefreshToken is the server-side record behind an opaque refresh token.
type storedRefreshToken struct {
	Token  string
	UserID string
	Active bool
	Iat    time.Time
}

// tokenIssuer mints HS256 access tokens and single-use refresh tokens.
type tokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration

	lock       sync.Mutex
	generation int
	refresh    map[string]*storedRefreshToken
}

func newTokenIssuer(accessTTL, refreshTTL time.Duration) *tokenIssuer {
	secret := make([]byte, 32)
	_, _ = rand.Read(secret)
	return &tokenIssuer{
		secret:     secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		refresh:    make(map[string]*storedRefreshToken),
	}
}

func (ti *tokenIssuer) createAccessToken(userID string) (string, error) {
	ti.lock.Lock()
	generation := ti.generation
	ti.lock.Unlock()

	now := NowTimeFunc()
	claims := jwtlib.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(ti.accessTTL).Unix(),
		"jti": uuid.NewString(),
		"gen": generation,
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(ti.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

func (ti *tokenIssuer) createRefreshToken(userID string) (string, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	token := hex.EncodeToString(tokenBytes)

	ti.lock.Lock()
	defer ti.lock.Unlock()
	ti.refresh[token] = &storedRefreshToken{
		Token:  token,
		UserID: userID,
		Active: true,
		Iat:    NowTimeFunc(),
	}
	return token, nil
}

// consume validates a refresh token and deactivates it. It returns the owning user.
func (ti *tokenIssuer) consume(token string) (string, error) {
	ti.lock.Lock()
	defer ti.lock.Unlock()

	rt, ok := ti.refresh[token]
	if !ok {
		return "", ErrTokenNotFound
	}
	if !rt.Active {
		return "", ErrTokenInactive
	}
	if NowTimeFunc().Sub(rt.Iat) > ti.refreshTTL {
		return "", ErrTokenExpired
	}
	rt.Active = false
	return rt.UserID, nil
}

// verifyAccessToken returns the subject of a valid access token. Tokens minted
// before the last expireAccessTokens call are reported as expired.
func (ti *tokenIssuer) verifyAccessToken(raw string) (string, error) {
	claims := jwtlib.MapClaims{}
	_, err := jwtlib.ParseWithClaims(raw, claims, func(t *jwtlib.Token) (any, error) {
		return ti.secret, nil
	}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}), jwtlib.WithTimeFunc(NowTimeFunc))
	if err != nil {
		return "", err
	}

	generation, _ := claims["gen"].(float64)
	ti.lock.Lock()
	current := ti.generation
	ti.lock.Unlock()
	if int(generation) < current {
		return "", jwtlib.ErrTokenExpired
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return "", err
	}
	return sub, nil
}

func (ti *tokenIssuer) expireAccessTokens() {
	ti.lock.Lock()
	defer ti.lock.Unlock()
	ti.generation++
}

func (ti *tokenIssuer) expireRefreshTokens() {
	ti.lock.Lock()
	defer ti.lock.Unlock()
	expired := NowTimeFunc().Add(-ti.refreshTTL - time.Second)
	for _, rt := range ti.refresh {
		rt.Iat = expired
	}
}
