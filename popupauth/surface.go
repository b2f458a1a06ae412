package popupauth

// WindowOptions positions and names the detached window.
type WindowOptions struct {
	Name   string
	Width  int
	Height int
	Left   int
	Top    int
}

// Window is a live detached browsing context. Close and Closed must be
// safe to call after the window has already gone away.
type Window interface {
	Closed() bool
	Close()
}

// Message is a cross-window message as delivered by the hosting surface.
// Data is untrusted external input; its shape is validated before use.
type Message struct {
	Origin string
	Data   []byte
}

// Surface abstracts the ambient host objects (window, screen, messaging)
// so the controller's state machine can run without a real browser.
type Surface interface {
	// Origin is the hosting page's own origin. Messages from any other
	// origin are discarded.
	Origin() string

	// ScreenSize reports the caller's screen dimensions for centering.
	ScreenSize() (width, height int)

	// OpenWindow opens a detached window. A nil window or an error means
	// the popup was refused by policy.
	OpenWindow(url string, opts WindowOptions) (Window, error)

	// AddMessageListener registers fn for incoming messages and returns
	// the deregistration func. Deregistration must be idempotent.
	AddMessageListener(fn func(Message)) (remove func())
}
