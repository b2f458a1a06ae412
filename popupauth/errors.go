package popupauth

import "errors"

var (
	// ErrPopupBlocked means the browser refused to open the window.
	ErrPopupBlocked = errors.New("failed to open authentication popup; please allow popups for this site")

	// ErrCancelled means the user closed the window before a result arrived.
	ErrCancelled = errors.New("authentication was cancelled")

	// ErrTimeout means no resolution occurred within the absolute timeout.
	ErrTimeout = errors.New("authentication timed out; please try again")

	// ErrNoSession means the backend does not recognize the presented token.
	ErrNoSession = errors.New("no session")
)
