package api

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jrsteele09/go-session-client/apierrors"
	"github.com/jrsteele09/go-session-client/request"
	"github.com/jrsteele09/go-session-client/session"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Executor performs one authenticated request.
type Executor interface {
	Execute(ctx context.Context, url string, opts request.Options) (any, error)
}

// SessionWriter establishes and ends sessions.
type SessionWriter interface {
	Save(ctx context.Context, s session.Session) error
	Clear(ctx context.Context) error
}

// Builder holds a validated Configuration and hands out per-component APIs.
type Builder struct {
	cfg         Configuration
	exec        Executor
	sessions    SessionWriter
	detectLogin bool
}

type Option func(*Builder)

// WithLoginDetection controls whether any login-shaped response establishes a
// session. When disabled, only actions wrapped with AsLogin do. Enabled by
// default.
func WithLoginDetection(enabled bool) Option {
	return func(b *Builder) {
		b.detectLogin = enabled
	}
}

// Configure validates cfg and returns the Builder for it.
func Configure(cfg Configuration, exec Executor, sessions SessionWriter, options ...Option) (*Builder, error) {
	if exec == nil {
		return nil, pkgerrors.New("[api Configure] executor is required")
	}
	if sessions == nil {
		return nil, pkgerrors.New("[api Configure] session writer is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	for name, svc := range cfg.Services {
		if _, ok := svc.Base[cfg.Environment]; !ok {
			log.Warn().
				Str("service", name).
				Str("environment", cfg.Environment).
				Msg("Service has no base URL for the active environment")
		}
	}

	b := &Builder{
		cfg:         cfg,
		exec:        exec,
		sessions:    sessions,
		detectLogin: true,
	}
	for _, opt := range options {
		opt(b)
	}
	return b, nil
}

// For returns an API bound to component. component may be nil, in which case
// nothing is reflected.
func (b *Builder) For(component Component) *API {
	return &API{builder: b, component: component}
}

func (b *Builder) Environment() string {
	return b.cfg.Environment
}

// Domains returns the configured domain names, sorted.
func (b *Builder) Domains() []string {
	names := make([]string, 0, len(b.cfg.Actions))
	for name := range b.cfg.Actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (b *Builder) baseURL(service string) (string, error) {
	svc, ok := b.cfg.Services[service]
	if !ok {
		return "", apierrors.ServiceNotFound(service)
	}
	base, ok := svc.Base[b.cfg.Environment]
	if !ok || base == "" {
		return "", apierrors.EnvironmentNotFound(service, b.cfg.Environment)
	}
	return base, nil
}

func (b *Builder) action(domain, method string) (Action, error) {
	action, ok := b.cfg.Actions[domain][method]
	if !ok {
		return nil, apierrors.ActionNotFound(domain, method)
	}
	return action, nil
}

// API is the view of the configuration bound to one component.
type API struct {
	builder   *Builder
	component Component
}

// Fetch requests path from the named service in the active environment.
// Configuration errors are returned before any request is made.
func (a *API) Fetch(ctx context.Context, service, path string, opts request.Options) (any, error) {
	base, err := a.builder.baseURL(service)
	if err != nil {
		a.reflectError(err)
		return nil, err
	}

	if a.component != nil {
		a.component.SetLoading(true)
		a.component.SetLastError(nil)
	}

	body, err := a.builder.exec.Execute(ctx, base+path, opts)
	if err == nil {
		err = a.establishSession(ctx, body)
	}

	if a.component != nil {
		a.component.SetLoading(false)
	}
	if err != nil {
		a.reflectError(err)
		return nil, err
	}
	if a.component != nil {
		a.component.SetLastResponse(body)
		a.component.Emit(EventResponse, body)
	}
	return body, nil
}

// Call runs domain.method with args.
func (a *API) Call(ctx context.Context, domain, method string, args ...any) (any, error) {
	action, err := a.builder.action(domain, method)
	if err != nil {
		a.reflectError(err)
		return nil, err
	}
	return action(ctx, a, args...)
}

// Domain returns a handle for calling the actions of one domain.
func (a *API) Domain(name string) Domain {
	return Domain{api: a, name: name}
}

// Logout ends the session.
func (a *API) Logout(ctx context.Context) error {
	if err := a.builder.sessions.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

func (a *API) Component() Component {
	return a.component
}

func (a *API) reflectError(err error) {
	if a.component == nil {
		return
	}
	a.component.SetLastResponse(nil)
	a.component.SetLastError(err)
	a.component.Emit(EventError, err)
}

// establishSession saves a login-shaped response as the new session.
func (a *API) establishSession(ctx context.Context, body any) error {
	if !a.builder.detectLogin && !isLogin(ctx) {
		return nil
	}
	if _, ok := body.(map[string]any); !ok {
		return nil
	}
	s, ok := session.FromPayload(body)
	if !ok {
		return nil
	}
	if err := a.builder.sessions.Save(ctx, s); err != nil {
		return fmt.Errorf("failed to establish session: %w", err)
	}
	log.Info().Str("user_id", s.UserID).Msg("Session established")
	return nil
}

// Domain is a handle on one configured domain of an API.
type Domain struct {
	api  *API
	name string
}

func (d Domain) Call(ctx context.Context, method string, args ...any) (any, error) {
	return d.api.Call(ctx, d.name, method, args...)
}

// Methods returns the configured method names, sorted.
func (d Domain) Methods() []string {
	methods := d.api.builder.cfg.Actions[d.name]
	names := make([]string, 0, len(methods))
	for name := range methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type loginKey struct{}

// AsLogin marks action as a login: login-shaped responses it fetches establish
// a session even when login detection is disabled.
func AsLogin(action Action) Action {
	return func(ctx context.Context, a *API, args ...any) (any, error) {
		return action(context.WithValue(ctx, loginKey{}, true), a, args...)
	}
}

func isLogin(ctx context.Context) bool {
	marked, _ := ctx.Value(loginKey{}).(bool)
	return marked
}

// IsConfigurationError reports whether err is a configuration mistake rather
// than a runtime failure.
func IsConfigurationError(err error) bool {
	return errors.Is(err, apierrors.ErrServiceNotFound) ||
		errors.Is(err, apierrors.ErrEnvironmentNotFound) ||
		errors.Is(err, apierrors.ErrActionNotFound)
}
