package vault

import "errors"

// Game is one catalog entry. ID is the stable cross-run identity; the title
// may normalize differently between runs and must not be used as a key.
type Game struct {
	Name    string
	PageURL string
	ID      string
	Section string
}

// ErrNotFound marks a permanent remote failure (the vault has no media for
// the entry). It is never worth retrying.
var ErrNotFound = errors.New("vault: media not found")
