// Package mailbox exposes the mail account as a set of marked conversation threads.
package mailbox

import (
	"context"
	"errors"
)

// ErrMarkerNotFound is returned when the marker label does not exist in the account
var ErrMarkerNotFound = errors.New("marker label not found")

// Thread is a conversation thread carrying the marker
type Thread struct {
	ID string `json:"id"`
}

// ThreadSource resolves a marker to its threads and clears it again
type ThreadSource interface {
	// Threads returns a snapshot of the threads that carry marker, in the
	// order the mail host returns them.
	Threads(ctx context.Context, marker string) ([]Thread, error)
	// FirstSubject returns the subject of the first message of thread.
	FirstSubject(ctx context.Context, thread Thread) (string, error)
	// RemoveMarker removes marker from every thread in threads.
	RemoveMarker(ctx context.Context, marker string, threads []Thread) error
	// Verify checks that the account is reachable with the configured credentials.
	Verify(ctx context.Context) error
	Close() error
}
