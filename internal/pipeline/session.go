package pipeline

import (
	"encoding/json"
	"fmt"
	"sync"
)

// SessionState accumulates stage outputs for one pipeline run, keyed by
// output name. Each key is written exactly once, and a value only becomes
// visible after its stage has fully completed — downstream readers never
// observe a partial write. Keys iterate in completion order, which for
// fan-out branches is nondeterministic.
//
// A SessionState is owned by a single run's controller; runs never share
// state.
type SessionState struct {
	mu      sync.RWMutex
	outputs map[string]json.RawMessage
	order   []string
}

// NewSessionState creates an empty session state.
func NewSessionState() *SessionState {
	return &SessionState{outputs: make(map[string]json.RawMessage)}
}

// Set records a stage output. Writing a key twice is a bug in the
// pipeline definition (setup validation should have caught it) and
// returns an error rather than overwriting.
func (s *SessionState) Set(key string, value json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.outputs[key]; exists {
		return fmt.Errorf("session key %q written twice", key)
	}
	s.outputs[key] = value
	s.order = append(s.order, key)
	return nil
}

// Get returns the output stored under key, if any.
func (s *SessionState) Get(key string) (json.RawMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.outputs[key]
	return v, ok
}

// Keys returns the stored keys in completion order.
func (s *SessionState) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, len(s.order))
	copy(keys, s.order)
	return keys
}
