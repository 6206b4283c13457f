// Package client wires the session store, refresh coordinator, request
// executor and API builder into one value.
package client

import (
	"context"
	"net/http"
	"time"

	"github.com/jrsteele09/go-session-client/api"
	"github.com/jrsteele09/go-session-client/request"
	"github.com/jrsteele09/go-session-client/session"
	"github.com/jrsteele09/go-session-client/storage"
	"github.com/jrsteele09/go-session-client/token/refresh"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Deps holds the collaborators a Client is built from.
type Deps struct {
	Storage   storage.Repo      // Persistence for the session record
	Transport refresh.Transport // Refresh token exchange
}

// Client is a fully wired API client.
type Client struct {
	Sessions  *session.Store
	Refresher *refresh.Coordinator
	Executor  *request.Executor
	Builder   *api.Builder
}

type config struct {
	sessionKey string
	httpClient *http.Client
	leeway     time.Duration
	apiOptions []api.Option
}

// ClientOption modifies how a Client is built.
type ClientOption func(*config)

// WithSessionKey sets the key the session record is stored under.
func WithSessionKey(key string) ClientOption {
	return func(c *config) {
		c.sessionKey = key
	}
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *config) {
		c.httpClient = client
	}
}

// WithProactiveRefresh refreshes before a request when the access token
// expires within leeway.
func WithProactiveRefresh(leeway time.Duration) ClientOption {
	return func(c *config) {
		c.leeway = leeway
	}
}

func WithAPIOptions(options ...api.Option) ClientOption {
	return func(c *config) {
		c.apiOptions = append(c.apiOptions, options...)
	}
}

// New builds a Client for cfg and restores any persisted session.
func New(ctx context.Context, cfg api.Configuration, deps Deps, options ...ClientOption) (*Client, error) {
	if deps.Storage == nil {
		return nil, errors.New("[client New] storage is required")
	}
	if deps.Transport == nil {
		return nil, errors.New("[client New] refresh transport is required")
	}

	c := config{sessionKey: session.DefaultKey}
	for _, opt := range options {
		opt(&c)
	}

	store, err := session.NewStore(deps.Storage, c.sessionKey)
	if err != nil {
		return nil, err
	}
	if s, ok := store.Restore(ctx); ok {
		log.Debug().Str("user_id", s.UserID).Msg("Restored persisted session")
	}

	coordinator, err := refresh.NewCoordinator(store, deps.Transport)
	if err != nil {
		return nil, err
	}

	executor, err := request.New(store, coordinator,
		request.WithHTTPClient(c.httpClient),
		request.WithProactiveRefresh(c.leeway),
	)
	if err != nil {
		return nil, err
	}

	builder, err := api.Configure(cfg, executor, store, c.apiOptions...)
	if err != nil {
		return nil, err
	}

	return &Client{
		Sessions:  store,
		Refresher: coordinator,
		Executor:  executor,
		Builder:   builder,
	}, nil
}

// For returns the API bound to component.
func (c *Client) For(component api.Component) *api.API {
	return c.Builder.For(component)
}
