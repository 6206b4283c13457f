package transportfake

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jrsteele09/go-session-client/session"
	"github.com/jrsteele09/go-session-client/token/refresh"
)

var _ refresh.Transport = (*FakeTransport)(nil)

// FakeTransport issues numbered token pairs. Each exchange can be held open
// with Hold until Release is called, to line up concurrent callers.
type FakeTransport struct {
	calls atomic.Int32
	lock  sync.Mutex
	gate  chan struct{}
	err   error
	seen  []string
	user  session.Session
}

func NewFakeTransport(user session.Session) *FakeTransport {
	return &FakeTransport{user: user}
}

// Hold makes subsequent exchanges block until Release.
func (f *FakeTransport) Hold() {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.gate = make(chan struct{})
}

func (f *FakeTransport) Release() {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.gate != nil {
		close(f.gate)
		f.gate = nil
	}
}

// FailWith makes subsequent exchanges return err.
func (f *FakeTransport) FailWith(err error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.err = err
}

func (f *FakeTransport) Calls() int {
	return int(f.calls.Load())
}

// RefreshTokens returns the refresh tokens presented so far, in order.
func (f *FakeTransport) RefreshTokens() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string(nil), f.seen...)
}

func (f *FakeTransport) Exchange(ctx context.Context, refreshToken string) (session.Session, error) {
	n := f.calls.Add(1)

	f.lock.Lock()
	gate, err := f.gate, f.err
	f.seen = append(f.seen, refreshToken)
	f.lock.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return session.Session{}, ctx.Err()
		}
	}
	if err != nil {
		return session.Session{}, err
	}

	s := f.user
	s.AccessToken = fmt.Sprintf("access-%d", n)
	s.RefreshToken = fmt.Sprintf("refresh-%d", n)
	return s, nil
}
