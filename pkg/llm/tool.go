package llm

import (
	"encoding/json"
	"fmt"
)

// Tool is a function the model may call. Parameters is a JSON schema object.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall is a structured call returned by the model.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// String returns the named argument as a string. Numbers are formatted.
func (c ToolCall) String(name string) string {
	switch v := c.Arguments[name].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%g", v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the named argument as an int and whether it was numeric.
func (c ToolCall) Int(name string) (int, bool) {
	switch v := c.Arguments[name].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	default:
		return 0, false
	}
}

// Float returns the named argument as a float64 and whether it was numeric.
func (c ToolCall) Float(name string) (float64, bool) {
	switch v := c.Arguments[name].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// Ints returns the named array argument as ints, skipping non-numeric items.
func (c ToolCall) Ints(name string) []int {
	items, _ := c.Arguments[name].([]any)
	out := make([]int, 0, len(items))
	for _, item := range items {
		if f, ok := item.(float64); ok {
			out = append(out, int(f))
		}
	}
	return out
}

// Strings returns the named array argument as strings, skipping non-string items.
func (c ToolCall) Strings(name string) []string {
	items, _ := c.Arguments[name].([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// ObjectSchema builds a JSON schema object with string typed properties
// unless a property schema is given explicitly.
func ObjectSchema(required []string, properties map[string]any) map[string]any {
	props := make(map[string]any, len(properties))
	for name, p := range properties {
		if desc, ok := p.(string); ok {
			props[name] = map[string]any{"type": "string", "description": desc}
			continue
		}
		props[name] = p
	}

	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
