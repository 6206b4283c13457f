package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-session-client/api"
	"github.com/jrsteele09/go-session-client/client"
	"github.com/jrsteele09/go-session-client/internal/config"
	"github.com/jrsteele09/go-session-client/internal/papers"
	"github.com/jrsteele09/go-session-client/storage"
	storagerepofake "github.com/jrsteele09/go-session-client/storage/repofake"
	"github.com/jrsteele09/go-session-client/token/refresh"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const redisKeyPrefix = "apiclient:"

// newClient builds a Client from the configuration and the services file.
func newClient(ctx context.Context, cfg config.Config) (*client.Client, error) {
	services, err := api.ReadServices(cfg.GetServicesFile())
	if err != nil {
		return nil, err
	}
	apiConfig := api.Configuration{
		Environment: cfg.GetEnv(),
		Actions:     papers.Actions(),
		Services:    services,
	}

	repo, err := newRepo(ctx, cfg)
	if err != nil {
		return nil, err
	}
	httpClient := &http.Client{Timeout: cfg.GetHTTPTimeout()}
	transport, err := newTransport(ctx, cfg, apiConfig, httpClient)
	if err != nil {
		return nil, err
	}

	return client.New(ctx, apiConfig, client.Deps{
		Storage:   repo,
		Transport: transport,
	},
		client.WithSessionKey(cfg.GetSessionKey()),
		client.WithHTTPClient(httpClient),
		client.WithProactiveRefresh(cfg.GetProactiveRefreshLeeway()),
	)
}

func newRepo(ctx context.Context, cfg config.SessionConfig) (storage.Repo, error) {
	switch cfg.GetSessionStorage() {
	case config.StorageFile:
		return storage.NewFileRepo(cfg.GetSessionDir())
	case config.StorageRedis:
		if cfg.GetRedisURL() == "" {
			return nil, fmt.Errorf("REDIS_URL is required for the redis session storage")
		}
		rdb, err := storage.DialRedis(ctx, cfg.GetRedisURL(), cfg.GetRedisPassword())
		if err != nil {
			return nil, err
		}
		return storage.NewRedisRepo(rdb, storage.WithKeyPrefix(redisKeyPrefix)), nil
	case config.StorageMemory:
		log.Warn().Msg("Using in-memory session storage, the session will not survive restarts")
		return storagerepofake.NewFakeStorageRepo(), nil
	}
	return nil, fmt.Errorf("unknown session storage %q", cfg.GetSessionStorage())
}

func newTransport(ctx context.Context, cfg config.Config, apiConfig api.Configuration, httpClient *http.Client) (refresh.Transport, error) {
	switch cfg.GetRefreshTransport() {
	case config.TransportHTTP:
		svc, ok := apiConfig.Services[cfg.GetRefreshService()]
		if !ok {
			return nil, fmt.Errorf("refresh service %q is not configured", cfg.GetRefreshService())
		}
		base, ok := svc.Base[apiConfig.Environment]
		if !ok {
			return nil, fmt.Errorf("refresh service %q has no base URL for environment %q", cfg.GetRefreshService(), apiConfig.Environment)
		}
		return refresh.NewHTTPTransport(base+cfg.GetRefreshPath(), httpClient)

	case config.TransportOAuth2:
		oauthConfig := &oauth2.Config{
			ClientID:     cfg.GetOAuthClientID(),
			ClientSecret: cfg.GetOAuthClientSecret(),
			Scopes:       cfg.GetOAuthScopes(),
			Endpoint:     oauth2.Endpoint{TokenURL: cfg.GetOAuthTokenURL()},
		}
		options := []refresh.OAuth2Option{refresh.WithHTTPClient(httpClient)}
		if issuer := cfg.GetOIDCIssuer(); issuer != "" {
			provider, err := oidc.NewProvider(oidc.ClientContext(ctx, httpClient), issuer)
			if err != nil {
				return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
			}
			if oauthConfig.Endpoint.TokenURL == "" {
				oauthConfig.Endpoint = provider.Endpoint()
			}
			options = append(options, refresh.WithIDTokenVerifier(provider.Verifier(&oidc.Config{ClientID: oauthConfig.ClientID})))
		}
		return refresh.NewOAuth2Transport(oauthConfig, options...)
	}
	return nil, fmt.Errorf("unknown refresh transport %q", cfg.GetRefreshTransport())
}
