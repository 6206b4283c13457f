// Package fakebackend is an in-process HTTP backend that speaks the login,
// refresh and paper APIs the client is exercised against.
package fakebackend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jrsteele09/go-session-client/internal/httpext"
	"github.com/rs/zerolog/log"
)

// Route names, as reported by Hits.
const (
	RouteLogin       = "login"
	RouteRefresh     = "refresh"
	RouteStatus      = "status"
	RoutePaperGet    = "paper.get"
	RoutePaperCreate = "paper.create"
	RoutePaperUpdate = "paper.update"
	RoutePaperDelete = "paper.delete"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 24 * time.Hour
)

type User struct {
	ID       string
	Name     string
	Email    string
	Password string
	Network  string
}

type Backend struct {
	server *httptest.Server
	tokens *tokenIssuer

	lock         sync.Mutex
	users        map[string]User // by email
	papers       map[string]map[string]any
	hits         map[string]int
	refreshDelay time.Duration
}

type Option func(*options)

type options struct {
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func WithAccessTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.accessTTL = ttl
	}
}

func WithRefreshTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.refreshTTL = ttl
	}
}

// New starts a backend on a local listener. Close it when done.
func New(opts ...Option) *Backend {
	o := options{accessTTL: DefaultAccessTTL, refreshTTL: DefaultRefreshTTL}
	for _, opt := range opts {
		opt(&o)
	}

	b := &Backend{
		tokens: newTokenIssuer(o.accessTTL, o.refreshTTL),
		users:  make(map[string]User),
		papers: make(map[string]map[string]any),
		hits:   make(map[string]int),
	}
	b.server = httptest.NewServer(b.Router())
	return b
}

func (b *Backend) URL() string {
	return b.server.URL
}

func (b *Backend) Client() *http.Client {
	return b.server.Client()
}

func (b *Backend) Close() {
	b.server.Close()
}

// Router builds the route table. It is exported so the backend can also be
// mounted on another server.
func (b *Backend) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(recoverPanics, logRequests, b.countHits)

	r.HandleFunc("/auth/login", b.handleLogin).Methods(http.MethodPost).Name(RouteLogin)
	r.HandleFunc("/auth/refresh", b.handleRefresh).Methods(http.MethodPost).Name(RouteRefresh)
	r.HandleFunc("/status", b.handleStatus).Methods(http.MethodGet).Name(RouteStatus)

	papers := r.PathPrefix("/paper").Subrouter()
	papers.Use(b.requireBearer)
	papers.HandleFunc("", b.handleCreatePaper).Methods(http.MethodPost).Name(RoutePaperCreate)
	papers.HandleFunc("/{id}", b.handleGetPaper).Methods(http.MethodGet).Name(RoutePaperGet)
	papers.HandleFunc("/{id}", b.handleUpdatePaper).Methods(http.MethodPut).Name(RoutePaperUpdate)
	papers.HandleFunc("/{id}", b.handleDeletePaper).Methods(http.MethodDelete).Name(RoutePaperDelete)
	return r
}

// AddUser registers a user that can log in. An empty ID is generated.
func (b *Backend) AddUser(u User) User {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Network == "" {
		u.Network = "fakebackend"
	}
	b.lock.Lock()
	defer b.lock.Unlock()
	b.users[u.Email] = u
	return u
}

// Login issues a login payload for a registered user without going through HTTP.
func (b *Backend) Login(email string) (map[string]any, error) {
	b.lock.Lock()
	u, ok := b.users[email]
	b.lock.Unlock()
	if !ok {
		return nil, errors.New("unknown user")
	}
	return b.loginPayload(u)
}

// PutPaper seeds a paper.
func (b *Backend) PutPaper(id string, paper map[string]any) {
	b.lock.Lock()
	defer b.lock.Unlock()
	paper["id"] = id
	b.papers[id] = paper
}

func (b *Backend) Paper(id string) (map[string]any, bool) {
	b.lock.Lock()
	defer b.lock.Unlock()
	p, ok := b.papers[id]
	return p, ok
}

// ExpireAccessTokens makes every access token issued so far expired.
func (b *Backend) ExpireAccessTokens() {
	b.tokens.expireAccessTokens()
}

// ExpireRefreshTokens makes every refresh token issued so far expired.
func (b *Backend) ExpireRefreshTokens() {
	b.tokens.expireRefreshTokens()
}

// SetRefreshDelay holds every refresh response for d.
func (b *Backend) SetRefreshDelay(d time.Duration) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.refreshDelay = d
}

// Hits returns how many requests were routed to the named route.
func (b *Backend) Hits(route string) int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.hits[route]
}

func (b *Backend) RefreshCalls() int {
	return b.Hits(RouteRefresh)
}

// ResetHits zeroes all counters.
func (b *Backend) ResetHits() {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.hits = make(map[string]int)
}

func (b *Backend) countHits(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if route := mux.CurrentRoute(r); route != nil && route.GetName() != "" {
			b.lock.Lock()
			b.hits[route.GetName()]++
			b.lock.Unlock()
		}
		next.ServeHTTP(w, r)
	})
}

type userIDKey struct{}

func (b *Backend) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, "missing_token", "Authentication required")
			return
		}
		userID, err := b.tokens.verifyAccessToken(raw)
		if errors.Is(err, jwtlib.ErrTokenExpired) {
			httpext.JSON(w, http.StatusUnauthorized, map[string]any{"error": "access_token_expired"})
			return
		}
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token", "Invalid access token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey{}, userID)))
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid login request")
		return
	}

	b.lock.Lock()
	u, ok := b.users[req.Email]
	b.lock.Unlock()
	if !ok || u.Password != req.Password {
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
		return
	}

	payload, err := b.loginPayload(u)
	if err != nil {
		log.Err(err).Msg("Failed to issue tokens")
		writeError(w, http.StatusInternalServerError, "server_error", "")
		return
	}
	httpext.JSON(w, http.StatusOK, payload)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (b *Backend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	b.lock.Lock()
	delay := b.refreshDelay
	b.lock.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}

	userID, err := b.tokens.consume(req.RefreshToken)
	switch {
	case errors.Is(err, ErrTokenNotFound):
		writeError(w, http.StatusUnauthorized, "token_not_found", "Refresh token not found")
		return
	case errors.Is(err, ErrTokenInactive):
		writeError(w, http.StatusUnauthorized, "token_inactive", "Refresh token already used")
		return
	case errors.Is(err, ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, "token_expired", "Refresh token expired")
		return
	}

	u, ok := b.userByID(userID)
	if !ok {
		writeError(w, http.StatusUnauthorized, "token_not_found", "Refresh token not found")
		return
	}
	payload, err := b.loginPayload(u)
	if err != nil {
		log.Err(err).Msg("Failed to issue tokens")
		writeError(w, http.StatusInternalServerError, "server_error", "")
		return
	}
	httpext.JSON(w, http.StatusOK, payload)
}

func (b *Backend) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (b *Backend) handleGetPaper(w http.ResponseWriter, r *http.Request) {
	paper, ok := b.Paper(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "Paper not found")
		return
	}
	httpext.JSON(w, http.StatusOK, paper)
}

func (b *Backend) handleCreatePaper(w http.ResponseWriter, r *http.Request) {
	paper, ok := decodePaper(w, r)
	if !ok {
		return
	}
	id, _ := paper["id"].(string)
	if id == "" {
		id = uuid.NewString()
	}
	b.PutPaper(id, paper)
	httpext.JSON(w, http.StatusCreated, paper)
}

func (b *Backend) handleUpdatePaper(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, ok := b.Paper(id); !ok {
		writeError(w, http.StatusNotFound, "not_found", "Paper not found")
		return
	}
	paper, ok := decodePaper(w, r)
	if !ok {
		return
	}
	b.PutPaper(id, paper)
	httpext.JSON(w, http.StatusOK, paper)
}

func (b *Backend) handleDeletePaper(w http.ResponseWriter, r *http.Request) {
	b.lock.Lock()
	delete(b.papers, mux.Vars(r)["id"])
	b.lock.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) userByID(id string) (User, bool) {
	b.lock.Lock()
	defer b.lock.Unlock()
	for _, u := range b.users {
		if u.ID == id {
			return u, true
		}
	}
	return User{}, false
}

func (b *Backend) loginPayload(u User) (map[string]any, error) {
	access, err := b.tokens.createAccessToken(u.ID)
	if err != nil {
		return nil, err
	}
	refresh, err := b.tokens.createRefreshToken(u.ID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id_user": u.ID,
		"name":    u.Name,
		"email":   u.Email,
		"network": u.Network,
		"tokens": map[string]any{
			"access":  access,
			"refresh": refresh,
		},
		"preferences":  map[string]any{"theme": "dark"},
		"subscription": map[string]any{"plan": "free"},
	}, nil
}

func decodePaper(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var paper map[string]any
	if err := json.NewDecoder(r.Body).Decode(&paper); err != nil || paper == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Paper body must be a JSON object")
		return nil, false
	}
	if title, _ := paper["title"].(string); strings.TrimSpace(title) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "title is required")
		return nil, false
	}
	return paper, true
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	body := map[string]any{"error": code}
	if message != "" {
		body["message"] = message
	}
	httpext.JSON(w, status, body)
}
