// Package thread implements conversation thread storage: ordered,
// append-only message logs shared by runs. A thread is the unit of
// conversational memory; two runs sharing a thread see each other's messages
// in insertion order.
package thread

import "github.com/hupe1980/agentrun/core"

// Store persists threads and their message histories. The store enforces no
// run-exclusivity: appending during an active run on the same thread simply
// extends what the next run on that thread will see. Exclusivity, if desired,
// is a workflow policy.
type Store interface {
	// Create allocates a new thread and returns its id.
	Create(metadata map[string]string) (string, error)
	// Append adds a message to the thread's log. Fails with
	// core.ErrUnknownThread if the thread does not exist.
	Append(threadID string, msg core.Message) error
	// Messages returns the thread's messages in append order.
	Messages(threadID string) ([]core.Message, error)
	// Metadata returns the thread's metadata bag.
	Metadata(threadID string) (map[string]string, error)
	// Destroy releases the thread's storage. Idempotent.
	Destroy(threadID string) error
}
