// Package conversation defines the durable message model for a chat and the
// in-memory append-only log that holds one conversation's history.
//
// Messages are immutable once appended. The JSON wire shape is the single
// format used both for persistence and for replay, so a log written during a
// live turn and a log reloaded from storage are indistinguishable to the
// projection layer. Unknown part kinds survive a round trip: the kind
// discriminators are plain strings, never enums that reject new values.
package conversation

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// PartKind discriminates user content parts.
type PartKind string

const (
	PartText  PartKind = "text"
	PartImage PartKind = "image"
	PartFile  PartKind = "file"
)

// ContentPart is one element of a user message. Exactly the fields for its
// kind are set; the rest stay zero and are omitted from JSON.
type ContentPart struct {
	Kind     PartKind `json:"type"`
	Text     string   `json:"text,omitempty"`
	Image    []byte   `json:"image,omitempty"` // raw bytes, base64 on the wire
	Data     []byte   `json:"data,omitempty"`  // file bytes, base64 on the wire
	MIMEType string   `json:"mimeType,omitempty"`
	Name     string   `json:"name,omitempty"`
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Kind: PartText, Text: text}
}

// ImagePart builds an image content part.
func ImagePart(data []byte) ContentPart {
	return ContentPart{Kind: PartImage, Image: data}
}

// FilePart builds a file content part.
func FilePart(data []byte, mimeType, name string) ContentPart {
	return ContentPart{Kind: PartFile, Data: data, MIMEType: mimeType, Name: name}
}

// AssistantPartKind discriminates structured assistant content.
type AssistantPartKind string

const (
	AssistantToolCall AssistantPartKind = "tool-call"
	AssistantText     AssistantPartKind = "text"
)

// AssistantPart is one element of a structured assistant message: either a
// tool invocation record or narrated text attributed to a tool.
type AssistantPart struct {
	Kind     AssistantPartKind `json:"type"`
	ToolName string            `json:"toolName,omitempty"`
	CallID   string            `json:"toolCallId,omitempty"`
	Args     json.RawMessage   `json:"args,omitempty"`
	Text     string            `json:"text,omitempty"`
	Meta     string            `json:"meta,omitempty"`
}

// ToolResultKind is the type tag of tool message entries.
const ToolResultKind = "tool-result"

// ToolResult records the outcome of one tool invocation.
// Result is kept raw so replay reproduces it byte for byte.
type ToolResult struct {
	Kind     string          `json:"type"`
	ToolName string          `json:"toolName"`
	CallID   string          `json:"toolCallId"`
	Result   json.RawMessage `json:"result"`
}

// Message is one entry in a conversation log.
//
// The populated fields depend on Role:
//   - RoleUser: Content
//   - RoleAssistant: Text (plain response) or Parts (tool-call / narration)
//   - RoleTool: Results
//   - RoleSystem: Text
type Message struct {
	ID      string
	Role    Role
	Text    string
	Content []ContentPart
	Parts   []AssistantPart
	Results []ToolResult
}

// NewID returns a fresh message identifier.
func NewID() string {
	return uuid.NewString()
}

// NewUserMessage builds a user message from content parts.
func NewUserMessage(parts ...ContentPart) Message {
	return Message{ID: NewID(), Role: RoleUser, Content: parts}
}

// NewAssistantText builds a plain-text assistant message.
func NewAssistantText(text string) Message {
	return Message{ID: NewID(), Role: RoleAssistant, Text: text}
}

// NewAssistantParts builds a structured assistant message.
func NewAssistantParts(parts ...AssistantPart) Message {
	return Message{ID: NewID(), Role: RoleAssistant, Parts: parts}
}

// NewToolMessage builds a tool message carrying invocation results.
func NewToolMessage(results ...ToolResult) Message {
	for i := range results {
		if results[i].Kind == "" {
			results[i].Kind = ToolResultKind
		}
	}
	return Message{ID: NewID(), Role: RoleTool, Results: results}
}

// NewSystemMessage builds a system message. System messages are persisted
// but excluded from projection.
func NewSystemMessage(text string) Message {
	return Message{ID: NewID(), Role: RoleSystem, Text: text}
}

// wireMessage is the persisted JSON envelope.
type wireMessage struct {
	ID      string          `json:"id"`
	Role    Role            `json:"role"`
	Content json.RawMessage `json:"content"`
}

// MarshalJSON writes the role-dependent wire shape. Assistant content is a
// bare string for plain responses and a part array for structured ones,
// matching the replay reader exactly.
func (m Message) MarshalJSON() ([]byte, error) {
	var content any
	switch m.Role {
	case RoleUser:
		content = m.Content
	case RoleAssistant:
		if m.Parts != nil {
			content = m.Parts
		} else {
			content = m.Text
		}
	case RoleTool:
		content = m.Results
	default: // system and any future roles carry plain text
		content = m.Text
	}

	raw, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("marshal %s content: %w", m.Role, err)
	}
	return json.Marshal(wireMessage{ID: m.ID, Role: m.Role, Content: raw})
}

// UnmarshalJSON reads the wire shape back into the tagged union.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("unmarshal message envelope: %w", err)
	}

	*m = Message{ID: w.ID, Role: w.Role}
	if len(w.Content) == 0 {
		return nil
	}

	switch w.Role {
	case RoleUser:
		if err := json.Unmarshal(w.Content, &m.Content); err != nil {
			return fmt.Errorf("unmarshal user content: %w", err)
		}
	case RoleAssistant:
		// Plain response (string) or structured parts (array).
		if w.Content[0] == '"' {
			if err := json.Unmarshal(w.Content, &m.Text); err != nil {
				return fmt.Errorf("unmarshal assistant text: %w", err)
			}
		} else {
			if err := json.Unmarshal(w.Content, &m.Parts); err != nil {
				return fmt.Errorf("unmarshal assistant parts: %w", err)
			}
		}
	case RoleTool:
		if err := json.Unmarshal(w.Content, &m.Results); err != nil {
			return fmt.Errorf("unmarshal tool results: %w", err)
		}
	default:
		if err := json.Unmarshal(w.Content, &m.Text); err != nil {
			return fmt.Errorf("unmarshal %s content: %w", w.Role, err)
		}
	}
	return nil
}

const (
	// DefaultTitle is used when a chat has no user text to derive from.
	DefaultTitle = "New conversation"

	// maxTitleLen bounds derived chat titles.
	maxTitleLen = 100
)

// Title derives a chat title from the first user message's first text part,
// truncated to 100 characters. Returns DefaultTitle when no text exists.
func Title(msgs []Message) string {
	for _, m := range msgs {
		if m.Role != RoleUser {
			continue
		}
		for _, p := range m.Content {
			if p.Kind == PartText && p.Text != "" {
				return truncate(p.Text, maxTitleLen)
			}
		}
		break
	}
	return DefaultTitle
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
