package stream

import (
	"fmt"
	"strings"
)

// Entity is a tenant scoped actor. The same ID under two companies names two
// unrelated entities.
type Entity struct {
	Company string `json:"company"`
	ID      string `json:"id"`
}

// String renders the entity as "<company>/<id>".
func (e Entity) String() string {
	return e.Company + "/" + e.ID
}

// Validate rejects entities missing either component.
func (e Entity) Validate() error {
	if strings.TrimSpace(e.Company) == "" {
		return fmt.Errorf("entity company is required")
	}
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("entity id is required")
	}
	return nil
}

// Key identifies exactly one stream. An empty Chat names the entity's default stream.
type Key struct {
	Entity Entity `json:"entity"`
	Chat   string `json:"chat,omitempty"`
}

// DefaultKey returns the default stream key of an entity.
func DefaultKey(e Entity) Key {
	return Key{Entity: e}
}

// ChatKey returns the stream key of one chat of an entity.
func ChatKey(e Entity, chat string) Key {
	return Key{Entity: e, Chat: chat}
}

// IsDefault reports whether k names the entity's default stream.
func (k Key) IsDefault() bool {
	return k.Chat == ""
}

// String renders the key as "<company>/<id>" or "<company>/<id>#<chat>".
// It doubles as the namespace of the stream's vector documents.
func (k Key) String() string {
	if k.Chat == "" {
		return k.Entity.String()
	}
	return k.Entity.String() + "#" + k.Chat
}
