package refresh

import (
	"context"
	"fmt"

	"github.com/jrsteele09/go-session-client/session"
)

// Transport exchanges a refresh token for a new session at the backend.
// Refresh tokens are single use: a successful exchange invalidates the one
// that was sent.
type Transport interface {
	Exchange(ctx context.Context, refreshToken string) (session.Session, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, refreshToken string) (session.Session, error)

func (f TransportFunc) Exchange(ctx context.Context, refreshToken string) (session.Session, error) {
	return f(ctx, refreshToken)
}

// ExchangeError is returned by transports when the backend answered the
// exchange with an error. Body is the parsed error body, used to tell an
// expired refresh token from other failures.
type ExchangeError struct {
	Status int
	Body   any
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("refresh exchange failed with status %d", e.Status)
}
