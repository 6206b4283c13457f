package refresh

import (
	"context"
	"errors"
	"fmt"

	"github.com/jrsteele09/go-session-client/apierrors"
	"github.com/jrsteele09/go-session-client/session"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// flightKey is the single singleflight key: there is at most one refresh in
// flight per Coordinator.
const flightKey = "refresh"

// SessionStore is the part of session.Store the Coordinator needs.
type SessionStore interface {
	Load(ctx context.Context) session.Session
	Current() (session.Session, bool)
	Save(ctx context.Context, s session.Session) error
	Clear(ctx context.Context) error
}

// Coordinator runs refresh-token exchanges, collapsing concurrent callers
// into one exchange whose outcome they all share. The in-flight handle is
// released before waiters are woken, so the next expiry starts a new exchange.
type Coordinator struct {
	store     SessionStore
	transport Transport
	group     singleflight.Group
}

func NewCoordinator(store SessionStore, transport Transport) (*Coordinator, error) {
	if store == nil {
		return nil, pkgerrors.New("[NewCoordinator] session store is required")
	}
	if transport == nil {
		return nil, pkgerrors.New("[NewCoordinator] transport is required")
	}
	return &Coordinator{store: store, transport: transport}, nil
}

// Refresh exchanges the persisted refresh token for a new session, or joins
// the exchange already in flight.
func (c *Coordinator) Refresh(ctx context.Context) (session.Session, error) {
	return c.do(ctx, "")
}

// RefreshAfter is Refresh for a caller that was rejected while presenting
// staleAccessToken. If the session has already moved on to a different access
// token, that session is returned without contacting the backend.
func (c *Coordinator) RefreshAfter(ctx context.Context, staleAccessToken string) (session.Session, error) {
	return c.do(ctx, staleAccessToken)
}

func (c *Coordinator) do(ctx context.Context, stale string) (session.Session, error) {
	// The exchange is shared, so it must outlive any single caller's cancellation.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(flightKey, func() (any, error) {
		return c.exchange(shared, stale)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return session.Session{}, res.Err
		}
		return res.Val.(session.Session), nil
	case <-ctx.Done():
		return session.Session{}, ctx.Err()
	}
}

func (c *Coordinator) exchange(ctx context.Context, stale string) (session.Session, error) {
	if current, ok := c.store.Current(); ok && stale != "" && current.AccessToken != stale {
		log.Debug().Msg("Access token already rotated, skipping refresh")
		return current, nil
	}

	previous := c.store.Load(ctx)
	if previous.RefreshToken == "" {
		return session.Session{}, apierrors.NoRefreshToken()
	}

	log.Debug().Str("user_id", previous.UserID).Msg("Refreshing access token")
	next, err := c.transport.Exchange(ctx, previous.RefreshToken)
	if err == nil && !next.IsValid() {
		err = fmt.Errorf("refresh response: %w", session.ErrIncompleteSession)
	}
	if err != nil {
		return session.Session{}, c.fail(ctx, err)
	}

	next = merge(previous, next)
	if current, ok := c.store.Current(); ok {
		next = keepExtras(current, next)
	}
	if err := c.store.Save(ctx, next); err != nil {
		return session.Session{}, c.fail(ctx, err)
	}

	log.Info().Str("user_id", next.UserID).Msg("Access token refreshed")
	return next, nil
}

// fail classifies err and destroys the session: the refresh token has either
// been consumed or rejected, so it cannot be used again.
func (c *Coordinator) fail(ctx context.Context, err error) error {
	var body any
	var exchangeErr *ExchangeError
	if errors.As(err, &exchangeErr) {
		body = exchangeErr.Body
	}
	classified := apierrors.RefreshFailed(body, err)

	log.Warn().
		Err(err).
		Str("state", string(classified.State)).
		Msg("Token refresh failed, clearing session")
	if clearErr := c.store.Clear(ctx); clearErr != nil {
		log.Err(clearErr).Msg("Failed to clear session after refresh failure")
	}
	return classified
}

// merge takes the token pair from next and any profile field next provides,
// falling back to previous for profile fields the backend left out.
func merge(previous, next session.Session) session.Session {
	out := previous
	out.AccessToken = next.AccessToken
	out.RefreshToken = next.RefreshToken
	if next.UserID != "" {
		out.UserID = next.UserID
	}
	if next.Name != "" {
		out.Name = next.Name
	}
	if next.Email != "" {
		out.Email = next.Email
	}
	if next.Network != "" {
		out.Network = next.Network
	}
	out.Preferences = next.Preferences
	out.Subscription = next.Subscription
	return out
}

func keepExtras(current, next session.Session) session.Session {
	if next.Preferences == nil {
		next.Preferences = current.Preferences
	}
	if next.Subscription == nil {
		next.Subscription = current.Subscription
	}
	return next
}
