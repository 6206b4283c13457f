package api

import "sync"

// Notification names emitted to components.
const (
	EventResponse = "response"
	EventError    = "error"
)

// Component is the UI-side object a call reflects its progress onto. The API
// only writes to it.
type Component interface {
	SetLoading(loading bool)
	SetLastError(err error)
	SetLastResponse(response any)
	Emit(event string, payload any)
}

type Event struct {
	Name    string
	Payload any
}

// State is a ready-made Component that records what it is told. It is safe for
// concurrent use.
type State struct {
	lock         sync.RWMutex
	loading      bool
	lastError    error
	lastResponse any
	events       []Event
	listeners    map[string][]func(payload any)
}

var _ Component = (*State)(nil)

func NewState() *State {
	return &State{listeners: make(map[string][]func(payload any))}
}

func (s *State) SetLoading(loading bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.loading = loading
}

func (s *State) SetLastError(err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.lastError = err
}

func (s *State) SetLastResponse(response any) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.lastResponse = response
}

// Emit records the event and calls the listeners registered for it.
func (s *State) Emit(event string, payload any) {
	s.lock.Lock()
	s.events = append(s.events, Event{Name: event, Payload: payload})
	listeners := append([]func(any){}, s.listeners[event]...)
	s.lock.Unlock()

	for _, fn := range listeners {
		fn(payload)
	}
}

// On registers fn for event.
func (s *State) On(event string, fn func(payload any)) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.listeners == nil {
		s.listeners = make(map[string][]func(payload any))
	}
	s.listeners[event] = append(s.listeners[event], fn)
}

func (s *State) Loading() bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.loading
}

func (s *State) LastError() error {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.lastError
}

func (s *State) LastResponse() any {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.lastResponse
}

func (s *State) Events() []Event {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return append([]Event(nil), s.events...)
}
