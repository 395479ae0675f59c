// Package stream defines the append-only history model: entities, stream keys,
// messages and the entry IDs assigned to them.
package stream

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// Message types.
const (
	TypeText     = "text"
	TypeImage    = "image"
	TypeAudio    = "audio"
	TypeVideo    = "video"
	TypeDocument = "document"
)

// Well known keys in Message.Extra.
const (
	ExtraCompressed      = "compressed"
	ExtraCompressAlgo    = "compress_algo"
	ExtraURL             = "url"
	ExtraSize            = "size"
	ExtraFormat          = "format"
	ExtraTranscribedFrom = "transcribed_from"

	// ExtraTZ is the IANA time zone the message was written in.
	ExtraTZ = "tz"
)

// MaxImportance is the upper bound of Message.Importance.
const MaxImportance = 10

var (
	validRoles = map[string]bool{RoleUser: true, RoleAssistant: true, RoleSystem: true, RoleTool: true}
	validTypes = map[string]bool{TypeText: true, TypeImage: true, TypeAudio: true, TypeVideo: true, TypeDocument: true}
)

// Message is the unit appended to a stream. For non-text types Content holds
// a reference (usually a blob URL) instead of the payload.
type Message struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	Type       string         `json:"type"`
	Extra      map[string]any `json:"extra,omitempty"`
	TS         time.Time      `json:"ts"`
	Importance int            `json:"importance"`
	Tags       []string       `json:"tags,omitempty"`
}

// NewTextMessage builds a text message stamped with the current time.
func NewTextMessage(role, content string) Message {
	return Message{
		Role:    role,
		Content: content,
		Type:    TypeText,
		TS:      time.Now().UTC(),
	}
}

// Normalize fills defaults for fields a client may omit.
func (m *Message) Normalize() {
	if m.Type == "" {
		m.Type = TypeText
	}
	if m.TS.IsZero() {
		m.TS = time.Now().UTC()
	}
}

// Validate checks the role and type enums and the importance range.
func (m Message) Validate() error {
	if !validRoles[m.Role] {
		return fmt.Errorf("invalid role %q", m.Role)
	}
	if !validTypes[m.Type] {
		return fmt.Errorf("invalid type %q", m.Type)
	}
	if m.Importance < 0 || m.Importance > MaxImportance {
		return fmt.Errorf("importance %d out of range 0-%d", m.Importance, MaxImportance)
	}
	return nil
}

// IsText reports whether the message carries text content.
func (m Message) IsText() bool {
	return m.Type == TypeText && strings.TrimSpace(m.Content) != ""
}

// Compressed reports whether Content holds compressed text.
func (m Message) Compressed() bool {
	if m.Extra == nil {
		return false
	}
	v, ok := m.Extra[ExtraCompressed].(bool)
	return ok && v
}

// SetExtra sets an extra key, allocating the map on first use.
func (m *Message) SetExtra(key string, value any) {
	if m.Extra == nil {
		m.Extra = make(map[string]any)
	}
	m.Extra[key] = value
}

// ExtraString returns the string value stored under key, if any.
func (m Message) ExtraString(key string) string {
	if m.Extra == nil {
		return ""
	}
	s, _ := m.Extra[key].(string)
	return s
}

// Clone returns a copy that does not share the Extra map or Tags slice.
func (m Message) Clone() Message {
	out := m
	if m.Extra != nil {
		out.Extra = make(map[string]any, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[k] = v
		}
	}
	if m.Tags != nil {
		out.Tags = append([]string(nil), m.Tags...)
	}
	return out
}

// Entry is a message together with the ID its stream assigned to it.
type Entry struct {
	ID      EntryID `json:"-"`
	Message Message `json:"-"`
}

// MarshalJSON flattens the entry so clients see {"id": "...", ...message}.
func (e Entry) MarshalJSON() ([]byte, error) {
	type flat struct {
		ID string `json:"id"`
		Message
	}
	return json.Marshal(flat{ID: e.ID.String(), Message: e.Message})
}

// UnmarshalJSON reads the flattened form written by MarshalJSON.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var flat struct {
		ID string `json:"id"`
		Message
	}
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}

	id, err := ParseEntryID(flat.ID)
	if err != nil {
		return err
	}

	e.ID = id
	e.Message = flat.Message
	return nil
}

// IDs returns the entry IDs of entries in order.
func IDs(entries []Entry) []EntryID {
	out := make([]EntryID, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}
