package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jrsteele09/go-session-client/api"
	"github.com/jrsteele09/go-session-client/apierrors"
	"github.com/jrsteele09/go-session-client/client"
	"github.com/jrsteele09/go-session-client/internal/fakebackend"
	"github.com/jrsteele09/go-session-client/internal/papers"
	"github.com/jrsteele09/go-session-client/request"
	"github.com/jrsteele09/go-session-client/session"
	storagerepofake "github.com/jrsteele09/go-session-client/storage/repofake"
	"github.com/jrsteele09/go-session-client/token/refresh"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	demoEnvironment = "demo"
	demoEmail       = "ada@example.com"
	demoPassword    = "analytical-engine"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the client against an in-process backend",
	Long: `demo starts an in-process backend and walks through transparent refresh,
refresh deduplication, refresh failure, configuration errors and a composed
save, reporting each scenario.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		displayAppname(cmd.OutOrStdout(), "apiclient demo")
		return runDemo(cmd.Context(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)
}

type demoEnv struct {
	backend *fakebackend.Backend
	client  *client.Client
}

type scenario struct {
	name string
	run  func(ctx context.Context, env demoEnv) error
}

var scenarios = []scenario{
	{"expired access token is refreshed transparently", transparentRefresh},
	{"concurrent refreshes share one exchange", concurrentRefresh},
	{"expired refresh token clears the session", expiredRefreshToken},
	{"unknown service fails before any request", unknownService},
	{"save edits an existing paper", composedSave},
}

func runDemo(ctx context.Context, w io.Writer) error {
	backend := fakebackend.New()
	defer backend.Close()
	backend.AddUser(fakebackend.User{Name: "Ada Lovelace", Email: demoEmail, Password: demoPassword})
	backend.PutPaper("p1", map[string]any{"title": "Notes on the Analytical Engine"})

	base := map[string]string{demoEnvironment: backend.URL()}
	transport, err := refresh.NewHTTPTransport(backend.URL()+"/auth/refresh", backend.Client())
	if err != nil {
		return err
	}
	c, err := client.New(ctx, api.Configuration{
		Environment: demoEnvironment,
		Actions:     papers.Actions(),
		Services: map[string]api.Service{
			papers.AuthService:  {Base: base},
			papers.PaperService: {Base: base},
		},
	}, client.Deps{
		Storage:   storagerepofake.NewFakeStorageRepo(),
		Transport: transport,
	}, client.WithHTTPClient(backend.Client()))
	if err != nil {
		return err
	}

	env := demoEnv{backend: backend, client: c}
	failed := 0
	for i, sc := range scenarios {
		if err := signIn(ctx, env); err != nil {
			return err
		}
		backend.ResetHits()

		if err := sc.run(ctx, env); err != nil {
			failed++
			fmt.Fprintf(w, "%d. FAIL %s: %v\n", i+1, sc.name, err)
			continue
		}
		fmt.Fprintf(w, "%d. PASS %s\n", i+1, sc.name)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scenarios failed", failed, len(scenarios))
	}
	return nil
}

func signIn(ctx context.Context, env demoEnv) error {
	_, err := env.client.For(nil).Call(ctx, papers.AuthDomain, "login", demoEmail, demoPassword)
	return err
}

func transparentRefresh(ctx context.Context, env demoEnv) error {
	env.backend.ExpireAccessTokens()
	state := api.NewState()
	if _, err := env.client.For(state).Call(ctx, papers.PaperDomain, "get", "p1"); err != nil {
		return err
	}
	if state.LastError() != nil || state.LastResponse() == nil {
		return fmt.Errorf("component ended with lastError=%v lastResponse=%v", state.LastError(), state.LastResponse())
	}
	if n := env.backend.RefreshCalls(); n != 1 {
		return fmt.Errorf("expected 1 refresh call, got %d", n)
	}
	return nil
}

func concurrentRefresh(ctx context.Context, env demoEnv) error {
	env.backend.SetRefreshDelay(100 * time.Millisecond)
	defer env.backend.SetRefreshDelay(0)

	const callers = 3
	results := make([]session.Session, callers)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			s, err := env.client.Refresher.Refresh(gctx)
			results[i] = s
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if n := env.backend.RefreshCalls(); n != 1 {
		return fmt.Errorf("expected 1 refresh call, got %d", n)
	}
	for _, s := range results[1:] {
		if s.AccessToken != results[0].AccessToken || s.RefreshToken != results[0].RefreshToken {
			return errors.New("callers observed different token pairs")
		}
	}
	return nil
}

func expiredRefreshToken(ctx context.Context, env demoEnv) error {
	env.backend.ExpireRefreshTokens()
	_, err := env.client.Refresher.Refresh(ctx)
	apiErr, ok := apierrors.As(err)
	if !ok || apiErr.Code != apierrors.CodeTokenRefreshFailed || apiErr.State != apierrors.RefreshStateExpired {
		return fmt.Errorf("expected TOKEN_REFRESH_FAILED (expired), got %v", err)
	}
	if _, ok := env.client.Sessions.Current(); ok {
		return errors.New("session was not cleared")
	}
	return nil
}

func unknownService(ctx context.Context, env demoEnv) error {
	_, err := env.client.For(api.NewState()).Fetch(ctx, "nonexistent", "/x", request.Options{})
	if !errors.Is(err, apierrors.ErrServiceNotFound) {
		return fmt.Errorf("expected SERVICE_NOT_FOUND, got %v", err)
	}
	if n := env.backend.Hits(fakebackend.RoutePaperGet) + env.backend.RefreshCalls(); n != 0 {
		return fmt.Errorf("expected no requests, got %d", n)
	}
	return nil
}

func composedSave(ctx context.Context, env demoEnv) error {
	paper := map[string]any{"id": "p1", "title": "Notes on the Analytical Engine, revised"}
	if _, err := env.client.For(nil).Call(ctx, papers.PaperDomain, "save", paper); err != nil {
		return err
	}
	gets := env.backend.Hits(fakebackend.RoutePaperGet)
	edits := env.backend.Hits(fakebackend.RoutePaperUpdate)
	adds := env.backend.Hits(fakebackend.RoutePaperCreate)
	if gets != 1 || edits+adds != 1 || edits != 1 {
		return fmt.Errorf("expected get then edit, got get=%d edit=%d add=%d", gets, edits, adds)
	}
	return nil
}
