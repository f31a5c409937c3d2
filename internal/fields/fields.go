// Package fields validates item payloads against a collection's custom
// field schema and sanitizes them for storage. Validation and
// sanitization are separate passes: callers validate the raw payload
// first, short-circuit on failure, and only then sanitize what gets
// persisted.
package fields

import (
	"fmt"
	"strings"
)

// Type is a custom field's declared value type.
type Type string

const (
	TypeText     Type = "text"
	TypeNumber   Type = "number"
	TypeDate     Type = "date"
	TypeCheckbox Type = "checkbox"
	TypeImage    Type = "image"
)

// Known reports whether t is one of the declared field types.
func (t Type) Known() bool {
	switch t {
	case TypeText, TypeNumber, TypeDate, TypeCheckbox, TypeImage:
		return true
	}
	return false
}

// Field is one entry in a collection's custom field schema.
type Field struct {
	Name     string `json:"name"`
	Type     Type   `json:"type"`
	Required bool   `json:"required,omitempty"`
}

// Schema is a collection's ordered custom field list. Order matters:
// validation reports the first failing field in schema order.
type Schema []Field

// Validate checks the schema itself at authoring time. Field names must
// be non-empty and unique (compared case-insensitively, stored
// case-sensitively) and every type must be known. Payload validation
// assumes a schema that already passed this check.
func (s Schema) Validate() error {
	seen := make(map[string]struct{}, len(s))
	for _, f := range s {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("field name must not be empty")
		}
		lower := strings.ToLower(f.Name)
		if _, dup := seen[lower]; dup {
			return fmt.Errorf("duplicate field name %q", f.Name)
		}
		seen[lower] = struct{}{}
		if !f.Type.Known() {
			return fmt.Errorf("field %q has unknown type %q", f.Name, f.Type)
		}
	}
	return nil
}

// Payload is an item's custom field values keyed by field name. Values
// are whatever the JSON decoder produced: string, float64, bool, nil,
// []any or map[string]any.
type Payload map[string]any
