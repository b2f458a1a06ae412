package staterepo

import (
	"errors"
	"sync"
)

// InMemoryRepo is a thread-safe in-memory implementation of the Repo interface
type InMemoryRepo struct {
	mu     sync.Mutex
	states map[string]*IssuedState
}

// NewInMemoryRepo creates a new in-memory state repository
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{states: make(map[string]*IssuedState)}
}

// Put stores an issued state token
func (r *InMemoryRepo) Put(state string, issued *IssuedState) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}
	if issued == nil {
		return errors.New("issued cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *issued
	r.states[state] = &stored
	return nil
}

// Consume retrieves and deletes a state token; a second Consume of the
// same token fails.
func (r *InMemoryRepo) Consume(state string) (*IssuedState, error) {
	if state == "" {
		return nil, errors.New("state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	issued, exists := r.states[state]
	if !exists {
		return nil, errors.New("state not found")
	}
	delete(r.states, state)

	out := *issued
	return &out, nil
}
