package popupauth

import "sync"

// StorageKey is the fixed application-namespaced key under which the
// session credential is persisted in origin-scoped storage.
const StorageKey = "kelo_auth_token"

// TokenStore persists the opaque session credential. Presence never
// implies validity; the controller re-verifies on every start.
type TokenStore interface {
	Get() (token string, ok bool)
	Set(token string) error
	Clear()
}

// MemoryTokenStore is a TokenStore for tests and non-browser hosts.
type MemoryTokenStore struct {
	mu    sync.Mutex
	token string
	set   bool
}

// NewMemoryTokenStore creates an empty in-memory token store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Get() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.set
}

func (s *MemoryTokenStore) Set(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.set = true
	return nil
}

func (s *MemoryTokenStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.set = false
}
