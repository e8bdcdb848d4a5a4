package core

import "time"

// Role identifies the author side of a message within a thread.
type Role string

const (
	// RoleUser marks caller-authored messages.
	RoleUser Role = "user"
	// RoleAgent marks agent-authored messages.
	RoleAgent Role = "agent"
)

// Attachment references auxiliary content (a file, an image, a rendered
// artifact) attached to a message. The engine treats attachments as opaque;
// resolving URIs is a collaborator concern.
type Attachment struct {
	Name     string `json:"name,omitempty"`
	URI      string `json:"uri,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// Message is one entry in a thread's append-only log. Past messages are never
// mutated or reordered.
type Message struct {
	Role        Role              `json:"role"`
	Content     string            `json:"content"`
	Attachments []Attachment      `json:"attachments,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	clone := m
	if m.Attachments != nil {
		clone.Attachments = make([]Attachment, len(m.Attachments))
		copy(clone.Attachments, m.Attachments)
	}
	if m.Metadata != nil {
		clone.Metadata = make(map[string]string, len(m.Metadata))
		for k, v := range m.Metadata {
			clone.Metadata[k] = v
		}
	}
	return clone
}

// NewUserMessage builds a user-authored text message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content, CreatedAt: time.Now().UTC()}
}

// NewAgentMessage builds an agent-authored text message.
func NewAgentMessage(content string) Message {
	return Message{Role: RoleAgent, Content: content, CreatedAt: time.Now().UTC()}
}

// LastAgentMessage returns the most recent agent-authored message in the
// slice and whether one exists. Workflow steps use it to extract a run's
// final output from a thread snapshot.
func LastAgentMessage(messages []Message) (Message, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleAgent {
			return messages[i], true
		}
	}
	return Message{}, false
}
