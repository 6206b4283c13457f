package papers_test

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/jrsteele09/go-session-client/api"
	"github.com/jrsteele09/go-session-client/client"
	"github.com/jrsteele09/go-session-client/internal/fakebackend"
	"github.com/jrsteele09/go-session-client/internal/papers"
	"github.com/jrsteele09/go-session-client/request"
	"github.com/jrsteele09/go-session-client/session"
	storagerepofake "github.com/jrsteele09/go-session-client/storage/repofake"
	"github.com/jrsteele09/go-session-client/token/refresh"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*fakebackend.Backend, *client.Client) {
	t.Helper()
	backend := fakebackend.New()
	t.Cleanup(backend.Close)
	backend.AddUser(fakebackend.User{ID: "user-1", Name: "Ada Lovelace", Email: "ada@example.com", Password: "secret"})
	backend.PutPaper("p1", map[string]any{"title": "On Computable Numbers"})

	base := map[string]string{"test": backend.URL()}
	transport, err := refresh.NewHTTPTransport(backend.URL()+"/auth/refresh", backend.Client())
	require.NoError(t, err)
	c, err := client.New(context.Background(), api.Configuration{
		Environment: "test",
		Actions:     papers.Actions(),
		Services: map[string]api.Service{
			papers.AuthService:  {Base: base},
			papers.PaperService: {Base: base},
		},
	}, client.Deps{
		Storage:   storagerepofake.NewFakeStorageRepo(),
		Transport: transport,
	}, client.WithHTTPClient(backend.Client()))
	require.NoError(t, err)

	_, err = c.For(nil).Call(context.Background(), papers.AuthDomain, "login", "ada@example.com", "secret")
	require.NoError(t, err)
	backend.ResetHits()
	return backend, c
}

func TestSave(t *testing.T) {
	tests := []struct {
		name    string
		paper   map[string]any
		updates int
		creates int
		gets    int
	}{
		{"existing paper is edited", map[string]any{"id": "p1", "title": "Revised"}, 1, 0, 1},
		{"unknown paper is added", map[string]any{"id": "p2", "title": "New"}, 0, 1, 1},
		{"paper without id is looked up then added", map[string]any{"title": "Untitled draft"}, 0, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend, c := setup(t)
			state := api.NewState()

			body, err := c.For(state).Domain(papers.PaperDomain).Call(context.Background(), "save", tt.paper)
			require.NoError(t, err)
			require.Equal(t, tt.paper["title"], body.(map[string]any)["title"])
			require.NotEmpty(t, body.(map[string]any)["id"])

			require.Equal(t, tt.gets, backend.Hits(fakebackend.RoutePaperGet))
			require.Equal(t, tt.updates, backend.Hits(fakebackend.RoutePaperUpdate))
			require.Equal(t, tt.creates, backend.Hits(fakebackend.RoutePaperCreate))
			require.NoError(t, state.LastError())
			require.Equal(t, body, state.LastResponse())
		})
	}
}

func TestLoginAndStatus(t *testing.T) {
	_, c := setup(t)

	s, ok := c.Sessions.Current()
	require.True(t, ok)
	require.Equal(t, "Ada Lovelace", s.Name)

	body, err := c.For(nil).Call(context.Background(), papers.AuthDomain, "status")
	require.NoError(t, err)
	require.Equal(t, "ok", body)
}

func TestDelete(t *testing.T) {
	backend, c := setup(t)

	body, err := c.For(nil).Call(context.Background(), papers.PaperDomain, "delete", "p1")
	require.NoError(t, err)
	require.Nil(t, body)
	_, ok := backend.Paper("p1")
	require.False(t, ok)
}

func TestArgumentErrors(t *testing.T) {
	backend, c := setup(t)
	a := c.For(nil)

	_, err := a.Call(context.Background(), papers.PaperDomain, "get")
	require.Error(t, err)
	_, err = a.Call(context.Background(), papers.PaperDomain, "save", "not a paper")
	require.Error(t, err)
	require.Equal(t, 0, backend.Hits(fakebackend.RoutePaperGet))
}

// scriptedExecutor answers GET with a fixed body and echoes everything else.
type scriptedExecutor struct {
	lock    sync.Mutex
	getBody any
	sent    []string
}

func (e *scriptedExecutor) Execute(_ context.Context, url string, opts request.Options) (any, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	e.lock.Lock()
	e.sent = append(e.sent, method+" "+strings.TrimPrefix(url, "http://papers.test"))
	e.lock.Unlock()
	if method == http.MethodGet {
		return e.getBody, nil
	}
	return opts.Body, nil
}

type discardSessions struct{}

func (discardSessions) Save(context.Context, session.Session) error { return nil }
func (discardSessions) Clear(context.Context) error { return nil }

func TestSaveBranchesOnLookupResult(t *testing.T) {
	tests := []struct {
		name    string
		getBody any
		want    []string
	}{
		{"false", false, []string{"GET /paper/p9", "POST /paper"}},
		{"empty string", "", []string{"GET /paper/p9", "POST /paper"}},
		{"zero", float64(0), []string{"GET /paper/p9", "POST /paper"}},
		{"empty object", map[string]any{}, []string{"GET /paper/p9", "POST /paper"}},
		{"null", nil, []string{"GET /paper/p9", "POST /paper"}},
		{"true", true, []string{"GET /paper/p9", "PUT /paper/p9"}},
		{"paper", map[string]any{"id": "p9"}, []string{"GET /paper/p9", "PUT /paper/p9"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &scriptedExecutor{getBody: tt.getBody}
			base := map[string]string{"test": "http://papers.test"}
			b, err := api.Configure(api.Configuration{
				Environment: "test",
				Actions:     papers.Actions(),
				Services: map[string]api.Service{
					papers.AuthService:  {Base: base},
					papers.PaperService: {Base: base},
				},
			}, exec, discardSessions{})
			require.NoError(t, err)

			_, err = b.For(nil).Call(context.Background(), papers.PaperDomain, "save", map[string]any{"id": "p9", "title": "t"})
			require.NoError(t, err)
			require.Equal(t, tt.want, exec.sent)
		})
	}
}
