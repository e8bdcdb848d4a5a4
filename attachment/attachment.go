// Package attachment stores the raw content behind message attachments.
// Threads carry attachment references only (name, URI, mime type); the bytes
// live in a Store keyed by thread so that destroying a thread can release its
// content in one sweep.
package attachment

import "errors"

// ErrNotFound is returned when no content exists for the given thread / name
// pair.
var ErrNotFound = errors.New("attachment not found")

// Store persists attachment content. Implementations must be safe for
// concurrent use.
type Store interface {
	// Save stores (or overwrites) the content for the given thread and name.
	Save(threadID, name string, data []byte) error
	// Get returns the stored content or ErrNotFound.
	Get(threadID, name string) ([]byte, error)
	// List returns the attachment names stored for the thread.
	List(threadID string) ([]string, error)
	// Release drops all content stored for the thread. Idempotent.
	Release(threadID string) error
}
