// Package surfacefake provides an in-memory Surface for testing the popup
// controller without a real browser.
package surfacefake

import (
	"sync"

	"github.com/kelo-finance/kelo-auth/popupauth"
)

// FakeWindow is a controllable detached window.
type FakeWindow struct {
	mu     sync.Mutex
	closed bool
	URL    string
	Opts   popupauth.WindowOptions
}

func (w *FakeWindow) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *FakeWindow) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
}

// FakeSurface implements popupauth.Surface with injectable behavior.
type FakeSurface struct {
	mu         sync.Mutex
	origin     string
	blockPopup bool
	windows    []*FakeWindow
	listeners  map[int]func(popupauth.Message)
	nextID     int
	removals   int
}

// New creates a fake surface reporting the given origin.
func New(origin string) *FakeSurface {
	return &FakeSurface{
		origin:    origin,
		listeners: make(map[int]func(popupauth.Message)),
	}
}

// BlockPopups makes subsequent OpenWindow calls fail like a popup blocker.
func (s *FakeSurface) BlockPopups() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blockPopup = true
}

func (s *FakeSurface) Origin() string { return s.origin }

func (s *FakeSurface) ScreenSize() (int, int) { return 1920, 1080 }

func (s *FakeSurface) OpenWindow(url string, opts popupauth.WindowOptions) (popupauth.Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blockPopup {
		return nil, popupauth.ErrPopupBlocked
	}
	w := &FakeWindow{URL: url, Opts: opts}
	s.windows = append(s.windows, w)
	return w, nil
}

func (s *FakeSurface) AddMessageListener(fn func(popupauth.Message)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.listeners, id)
			s.removals++
		})
	}
}

// PostMessage delivers a message to every registered listener, the way the
// host would dispatch a window message event.
func (s *FakeSurface) PostMessage(origin string, data []byte) {
	s.mu.Lock()
	fns := make([]func(popupauth.Message), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(popupauth.Message{Origin: origin, Data: data})
	}
}

// OpenedWindows returns every window opened so far.
func (s *FakeSurface) OpenedWindows() []*FakeWindow {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*FakeWindow, len(s.windows))
	copy(out, s.windows)
	return out
}

// ListenerCount returns the number of currently registered listeners.
func (s *FakeSurface) ListenerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

var _ popupauth.Surface = (*FakeSurface)(nil)
