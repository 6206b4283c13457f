package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jrsteele09/go-session-client/storage"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultKey is the well-known storage key of the persisted record.
const DefaultKey = "session"

// ErrIncompleteSession is returned when saving a Session without both tokens.
var ErrIncompleteSession = errors.New("session requires both access and refresh tokens")

// Store owns the persisted record and the in-memory current Session. It is
// the only writer of the record.
type Store struct {
	repo storage.Repo
	key  string

	writeMu sync.Mutex // serialises persist+swap so record and memory never disagree
	mu      sync.RWMutex
	current *Session
}

// NewStore creates a Store persisting under key (DefaultKey when empty).
// The in-memory session starts absent; call Restore at startup.
func NewStore(repo storage.Repo, key string) (*Store, error) {
	if repo == nil {
		return nil, pkgerrors.New("[NewStore] storage repo is required")
	}
	if key == "" {
		key = DefaultKey
	}
	return &Store{repo: repo, key: key}, nil
}

// Load reads the persisted record. A missing, malformed, or partial record
// yields the zero Session; Load never fails.
func (s *Store) Load(ctx context.Context) Session {
	rec, ok := s.read(ctx)
	if !ok {
		return Session{}
	}
	sess := rec.toSession()
	if !sess.IsValid() {
		return Session{}
	}
	return sess
}

// Restore loads the persisted record into memory. A partial record (for
// example one without a refresh token, which can never be renewed) is removed.
func (s *Store) Restore(ctx context.Context) (Session, bool) {
	rec, ok := s.read(ctx)
	if !ok {
		return Session{}, false
	}

	sess := rec.toSession()
	if !sess.IsValid() {
		log.Info().Bool("has_refresh_token", rec.Tokens.Refresh != "").Msg("Discarding partial persisted session")
		if err := s.Clear(ctx); err != nil {
			log.Err(err).Msg("Failed to clear partial session")
		}
		return Session{}, false
	}

	s.mu.Lock()
	s.current = &sess
	s.mu.Unlock()
	return sess, true
}

// Save persists the essential fields of sess and then makes it current.
// The token pair is replaced wholesale.
func (s *Store) Save(ctx context.Context, sess Session) error {
	if !sess.IsValid() {
		return ErrIncompleteSession
	}

	data, err := json.Marshal(sess.ToRecord())
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.repo.Set(ctx, s.key, string(data)); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}

	s.mu.Lock()
	s.current = &sess
	s.mu.Unlock()
	return nil
}

// Clear removes the persisted record and drops the in-memory session. The
// in-memory session is dropped even when storage fails.
func (s *Store) Clear(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()

	if err := s.repo.Remove(ctx, s.key); err != nil {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}

// Current returns the in-memory session.
func (s *Store) Current() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Session{}, false
	}
	return *s.current, true
}

func (s *Store) read(ctx context.Context) (Record, bool) {
	raw, err := s.repo.Get(ctx, s.key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Err(err).Str("key", s.key).Msg("Failed to read persisted session")
		}
		return Record{}, false
	}

	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		log.Warn().Err(err).Str("key", s.key).Msg("Ignoring malformed persisted session")
		return Record{}, false
	}
	return rec, true
}
