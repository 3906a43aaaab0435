package models

import "fmt"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// Message is a single entry of a chat's log.
// ID is the storage row id; it is zero for messages that were never persisted.
type Message struct {
	ID       int64  `json:"-" yaml:"-"`
	Role     Role   `json:"role" yaml:"role"`
	Content  string `json:"content" yaml:"content"`
	Media    string `json:"image,omitempty" yaml:"image,omitempty"`
	Position int    `json:"-" yaml:"-"`
}

type MessageOption func(*Message)

// WithMedia attaches an external asset reference (e.g. an image path).
func WithMedia(ref string) MessageOption {
	return func(m *Message) {
		m.Media = ref
	}
}

func NewMessage(role Role, content string, options ...MessageOption) Message {
	ret := Message{
		Role:    role,
		Content: content,
	}
	for _, option := range options {
		option(&ret)
	}
	return ret
}

func (m Message) String() string {
	return fmt.Sprintf("[%s]: %s", m.Role, m.Content)
}
