package api_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/jrsteele09/go-session-client/api"
	"github.com/jrsteele09/go-session-client/apierrors"
	"github.com/jrsteele09/go-session-client/client"
	"github.com/jrsteele09/go-session-client/internal/fakebackend"
	"github.com/jrsteele09/go-session-client/request"
	"github.com/jrsteele09/go-session-client/session"
	storagerepofake "github.com/jrsteele09/go-session-client/storage/repofake"
	"github.com/jrsteele09/go-session-client/token/refresh"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var paperOne = map[string]any{"id": "p1", "title": "On Computable Numbers"}

func getPaper(ctx context.Context, a *api.API, args ...any) (any, error) {
	return a.Fetch(ctx, "papers", "/paper/"+args[0].(string), request.Options{})
}

func login(ctx context.Context, a *api.API, args ...any) (any, error) {
	return a.Fetch(ctx, "auth", "/auth/login", request.Options{
		Method:   http.MethodPost,
		Body:     map[string]any{"email": args[0], "password": args[1]},
		SkipAuth: true,
	})
}

func configuration(backend *fakebackend.Backend, environment string) api.Configuration {
	base := map[string]string{
		"development": backend.URL(),
		"production":  "https://papers.example.com",
	}
	return api.Configuration{
		Environment: environment,
		Actions: map[string]map[string]api.Action{
			"auth": {
				"login":       login,
				"markedLogin": api.AsLogin(login),
			},
			"paper": {
				"get": getPaper,
				"broken": func(ctx context.Context, a *api.API, _ ...any) (any, error) {
					return a.Fetch(ctx, "nonexistent", "/x", request.Options{})
				},
				"getViaSibling": func(ctx context.Context, a *api.API, args ...any) (any, error) {
					return a.Domain("paper").Call(ctx, "get", args...)
				},
			},
		},
		Services: map[string]api.Service{
			"auth":   {Base: base},
			"papers": {Base: base},
		},
	}
}

func newBackend(t *testing.T) *fakebackend.Backend {
	t.Helper()
	backend := fakebackend.New()
	t.Cleanup(backend.Close)
	backend.AddUser(fakebackend.User{ID: "user-1", Name: "Ada Lovelace", Email: "ada@example.com", Password: "secret"})
	backend.PutPaper("p1", map[string]any{"title": "On Computable Numbers"})
	return backend
}

func newClient(t *testing.T, backend *fakebackend.Backend, environment string, options ...api.Option) *client.Client {
	t.Helper()
	transport, err := refresh.NewHTTPTransport(backend.URL()+"/auth/refresh", backend.Client())
	require.NoError(t, err)
	c, err := client.New(context.Background(), configuration(backend, environment), client.Deps{
		Storage:   storagerepofake.NewFakeStorageRepo(),
		Transport: transport,
	}, client.WithHTTPClient(backend.Client()), client.WithAPIOptions(options...))
	require.NoError(t, err)
	return c
}

func signIn(t *testing.T, backend *fakebackend.Backend, c *client.Client) {
	t.Helper()
	payload, err := backend.Login("ada@example.com")
	require.NoError(t, err)
	s, ok := session.FromPayload(payload)
	require.True(t, ok)
	require.NoError(t, c.Sessions.Save(context.Background(), s))
}

func TestFetch_ServiceNotFound(t *testing.T) {
	backend := newBackend(t)
	c := newClient(t, backend, "development")
	state := api.NewState()

	_, err := c.For(state).Call(context.Background(), "paper", "broken")
	require.ErrorIs(t, err, apierrors.ErrServiceNotFound)
	require.Contains(t, err.Error(), `"nonexistent"`)
	require.True(t, api.IsConfigurationError(err))

	require.False(t, state.Loading())
	require.Equal(t, err, state.LastError())
	require.Nil(t, state.LastResponse())
	require.Equal(t, []api.Event{{Name: api.EventError, Payload: err}}, state.Events())
	require.Equal(t, 0, backend.Hits(fakebackend.RoutePaperGet))
	require.Equal(t, 0, backend.RefreshCalls())
}

func TestFetch_EnvironmentNotFound(t *testing.T) {
	backend := newBackend(t)
	c := newClient(t, backend, "staging")
	signIn(t, backend, c)

	_, err := c.For(nil).Call(context.Background(), "paper", "get", "p1")
	require.ErrorIs(t, err, apierrors.ErrEnvironmentNotFound)
	require.Contains(t, err.Error(), `"staging"`)
	require.Equal(t, 0, backend.Hits(fakebackend.RoutePaperGet))
}

func TestCall_ActionNotFound(t *testing.T) {
	backend := newBackend(t)
	c := newClient(t, backend, "development")
	state := api.NewState()

	_, err := c.For(state).Domain("paper").Call(context.Background(), "frobnicate")
	require.ErrorIs(t, err, apierrors.ErrActionNotFound)
	require.Equal(t, err, state.LastError())
}

func TestCall_SiblingAction(t *testing.T) {
	backend := newBackend(t)
	c := newClient(t, backend, "development")
	signIn(t, backend, c)
	state := api.NewState()

	body, err := c.For(state).Call(context.Background(), "paper", "getViaSibling", "p1")
	require.NoError(t, err)
	require.Equal(t, paperOne, body)
	// The sibling call reflects onto the same component.
	require.Equal(t, paperOne, state.LastResponse())
}

func TestFetch_TransparentRefresh(t *testing.T) {
	backend := newBackend(t)
	c := newClient(t, backend, "development")
	signIn(t, backend, c)
	backend.ExpireAccessTokens()
	state := api.NewState()

	_, err := c.For(state).Call(context.Background(), "paper", "get", "p1")
	require.NoError(t, err)
	require.Equal(t, paperOne, state.LastResponse())
	require.NoError(t, state.LastError())
	require.False(t, state.Loading())
	require.Equal(t, []api.Event{{Name: api.EventResponse, Payload: paperOne}}, state.Events())
	require.Equal(t, 1, backend.RefreshCalls())
}

func TestFetch_RefreshFailureEndsInTerminalState(t *testing.T) {
	backend := newBackend(t)
	c := newClient(t, backend, "development")
	signIn(t, backend, c)
	backend.ExpireAccessTokens()
	backend.ExpireRefreshTokens()
	state := api.NewState()

	_, err := c.For(state).Call(context.Background(), "paper", "get", "p1")
	require.ErrorIs(t, err, apierrors.ErrTokenRefreshFailed)
	require.False(t, state.Loading())
	require.Equal(t, err, state.LastError())
	require.Nil(t, state.LastResponse())
	_, ok := c.Sessions.Current()
	require.False(t, ok)
}

func TestComponentIsolation(t *testing.T) {
	backend := newBackend(t)
	c := newClient(t, backend, "development")
	signIn(t, backend, c)
	backend.ExpireAccessTokens()

	found, missing := api.NewState(), api.NewState()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = c.For(found).Call(context.Background(), "paper", "get", "p1")
		}()
		go func() {
			defer wg.Done()
			_, _ = c.For(missing).Call(context.Background(), "paper", "get", "missing")
		}()
	}
	wg.Wait()

	require.False(t, found.Loading())
	require.NoError(t, found.LastError())
	require.Equal(t, paperOne, found.LastResponse())
	for _, e := range found.Events() {
		require.Equal(t, api.EventResponse, e.Name)
	}

	require.False(t, missing.Loading())
	require.ErrorIs(t, missing.LastError(), apierrors.ErrNotFound)
	require.Nil(t, missing.LastResponse())
	for _, e := range missing.Events() {
		require.Equal(t, api.EventError, e.Name)
	}
	require.Equal(t, 1, backend.RefreshCalls())
}

func TestLoginEstablishesSession(t *testing.T) {
	backend := newBackend(t)
	c := newClient(t, backend, "development")
	_, ok := c.Sessions.Current()
	require.False(t, ok)

	a := c.For(nil)
	_, err := a.Call(context.Background(), "auth", "login", "ada@example.com", "secret")
	require.NoError(t, err)

	s, ok := c.Sessions.Current()
	require.True(t, ok)
	require.Equal(t, "user-1", s.UserID)
	require.Equal(t, map[string]any{"theme": "dark"}, s.Preferences)

	body, err := a.Call(context.Background(), "paper", "get", "p1")
	require.NoError(t, err)
	require.Equal(t, paperOne, body)
}

func TestLoginDetectionDisabled(t *testing.T) {
	backend := newBackend(t)
	c := newClient(t, backend, "development", api.WithLoginDetection(false))
	a := c.For(nil)

	_, err := a.Call(context.Background(), "auth", "login", "ada@example.com", "secret")
	require.NoError(t, err)
	_, ok := c.Sessions.Current()
	require.False(t, ok)

	_, err = a.Call(context.Background(), "auth", "markedLogin", "ada@example.com", "secret")
	require.NoError(t, err)
	_, ok = c.Sessions.Current()
	require.True(t, ok)
}

func TestLogout(t *testing.T) {
	backend := newBackend(t)
	c := newClient(t, backend, "development")
	signIn(t, backend, c)

	a := c.For(nil)
	require.NoError(t, a.Logout(context.Background()))
	_, ok := c.Sessions.Current()
	require.False(t, ok)

	_, err := a.Call(context.Background(), "paper", "get", "p1")
	require.ErrorIs(t, err, apierrors.ErrTokenRefreshFailed)
}

type mockComponent struct {
	mock.Mock
}

func (m *mockComponent) SetLoading(loading bool)      { m.Called(loading) }
func (m *mockComponent) SetLastError(err error)       { m.Called(err) }
func (m *mockComponent) SetLastResponse(response any) { m.Called(response) }
func (m *mockComponent) Emit(event string, payload any) {
	m.Called(event, payload)
}

func TestFetch_ReflectsOntoComponent(t *testing.T) {
	backend := newBackend(t)
	c := newClient(t, backend, "development")
	signIn(t, backend, c)

	t.Run("success", func(t *testing.T) {
		component := &mockComponent{}
		component.On("SetLoading", true).Once()
		component.On("SetLastError", nil).Once()
		component.On("SetLoading", false).Once()
		component.On("SetLastResponse", paperOne).Once()
		component.On("Emit", api.EventResponse, paperOne).Once()

		_, err := c.For(component).Call(context.Background(), "paper", "get", "p1")
		require.NoError(t, err)
		component.AssertExpectations(t)
	})

	t.Run("failure", func(t *testing.T) {
		isNotFound := mock.MatchedBy(func(err error) bool { return errors.Is(err, apierrors.ErrNotFound) })
		component := &mockComponent{}
		component.On("SetLoading", true).Once()
		component.On("SetLastError", nil).Once()
		component.On("SetLoading", false).Once()
		component.On("SetLastResponse", nil).Once()
		component.On("SetLastError", isNotFound).Once()
		component.On("Emit", api.EventError, isNotFound).Once()

		_, err := c.For(component).Call(context.Background(), "paper", "get", "missing")
		require.ErrorIs(t, err, apierrors.ErrNotFound)
		component.AssertExpectations(t)
	})
}

func TestConfigureValidation(t *testing.T) {
	exec := &request.Executor{}
	store, err := session.NewStore(storagerepofake.NewFakeStorageRepo(), "")
	require.NoError(t, err)
	valid := api.Configuration{
		Environment: "development",
		Actions:     map[string]map[string]api.Action{"paper": {"get": getPaper}},
		Services:    map[string]api.Service{"papers": {Base: map[string]string{"development": "http://localhost:8080"}}},
	}

	_, err = api.Configure(valid, exec, store)
	require.NoError(t, err)

	noEnvironment := valid
	noEnvironment.Environment = ""
	_, err = api.Configure(noEnvironment, exec, store)
	require.Error(t, err)

	noServices := valid
	noServices.Services = nil
	_, err = api.Configure(noServices, exec, store)
	require.Error(t, err)

	badURL := valid
	badURL.Services = map[string]api.Service{"papers": {Base: map[string]string{"development": "not a url"}}}
	_, err = api.Configure(badURL, exec, store)
	require.Error(t, err)

	nilAction := valid
	nilAction.Actions = map[string]map[string]api.Action{"paper": {"get": nil}}
	_, err = api.Configure(nilAction, exec, store)
	require.Error(t, err)

	_, err = api.Configure(valid, nil, store)
	require.Error(t, err)
}
