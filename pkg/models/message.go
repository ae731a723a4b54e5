// Package models defines the canonical on-wire types shared by the kernel,
// the context pipeline, providers, and plugins.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Role indicates the message author type.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartType identifies a content part variant.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image"
)

// Part is one element of structured message content.
type Part struct {
	Type PartType `json:"type"`

	// Text is set when Type == PartText.
	Text string `json:"text,omitempty"`

	// MediaType and Data are set when Type == PartImage.
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
}

// Content is message content: either plain text or a list of parts.
// The zero value is empty text. Pipeline stages go through ToText and
// Length instead of branching on the underlying form.
type Content struct {
	text  string
	parts []Part
	isStr bool
}

// Text builds plain-text content.
func Text(s string) Content {
	return Content{text: s, isStr: true}
}

// Parts builds structured content from parts.
func Parts(parts ...Part) Content {
	return Content{parts: parts}
}

// TextPart builds a text part.
func TextPart(s string) Part {
	return Part{Type: PartText, Text: s}
}

// IsText reports whether the content is the plain-text form.
func (c Content) IsText() bool { return c.isStr }

// Parts returns the structured parts, or nil for plain-text content.
func (c Content) Parts() []Part {
	if c.isStr {
		return nil
	}
	out := make([]Part, len(c.parts))
	copy(out, c.parts)
	return out
}

// ToText flattens content to a single string. Text parts are joined with
// newlines; non-text parts are skipped.
func (c Content) ToText() string {
	if c.isStr {
		return c.text
	}
	var sb strings.Builder
	for _, p := range c.parts {
		if p.Type != PartText {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// Length returns the character length of the flattened text.
func (c Content) Length() int {
	if c.isStr {
		return len(c.text)
	}
	n := 0
	for _, p := range c.parts {
		if p.Type == PartText {
			if n > 0 {
				n++ // joining newline
			}
			n += len(p.Text)
		}
	}
	return n
}

// MarshalJSON emits the wire form: a bare string for plain text, an array
// of parts otherwise.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.isStr {
		return json.Marshal(c.text)
	}
	return json.Marshal(c.parts)
}

// UnmarshalJSON accepts both the string and the part-array wire forms.
func (c *Content) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Text(s)
		return nil
	}
	var parts []Part
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("content must be a string or part array: %w", err)
	}
	*c = Content{parts: parts}
	return nil
}

// Message is the canonical conversation unit passed to providers.
type Message struct {
	Role    Role    `json:"role"`
	Content Content `json:"content"`
}

// NewMessage builds a plain-text message.
func NewMessage(role Role, text string) Message {
	return Message{Role: role, Content: Text(text)}
}

// EventEnvelope wraps a payload published on the event bus.
type EventEnvelope struct {
	Type    string    `json:"type"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// NewEnvelope builds an envelope stamped with the current time.
func NewEnvelope(eventType string, payload any) EventEnvelope {
	return EventEnvelope{Type: eventType, Payload: payload, At: time.Now().UTC()}
}
