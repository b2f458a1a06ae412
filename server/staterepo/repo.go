// Package staterepo stores issued anti-replay state tokens between the
// authorization redirect and the provider callback.
package staterepo

import "time"

// IssuedState records when a state token was handed out.
type IssuedState struct {
	CreatedAt time.Time
}

// Repo is the storage contract. Consume must remove the entry so each
// state token is honored at most once.
type Repo interface {
	Put(state string, issued *IssuedState) error
	Consume(state string) (*IssuedState, error)
}
