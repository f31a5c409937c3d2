package fields

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultMaxTextLen bounds text field values and sanitized strings,
// measured in runes.
const DefaultMaxTextLen = 10000

// Accepted date layouts, tried in order. The first match wins.
var dateLayouts = []string{
	"2006-01-02",
	"02.01.2006",
	"02/01/2006",
	"2006-01-02 15:04:05",
}

// FieldError reports the first field that failed validation. The message
// is user-facing.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string { return e.Reason }

// Validator checks payloads against schemas. The zero value is unusable;
// call NewValidator.
type Validator struct {
	maxTextLen int
}

type ValidatorOption func(*Validator)

// WithMaxTextLen overrides the text length ceiling.
func WithMaxTextLen(n int) ValidatorOption {
	return func(v *Validator) {
		if n > 0 {
			v.maxTextLen = n
		}
	}
}

func NewValidator(opts ...ValidatorOption) *Validator {
	v := &Validator{maxTextLen: DefaultMaxTextLen}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Validate checks payload against schema in schema order and returns the
// first failure as a *FieldError, or nil when the payload conforms. An
// empty schema accepts anything. Payload keys not declared in the schema
// are ignored here; Sanitize deals with them.
func (v *Validator) Validate(payload Payload, schema Schema) error {
	if len(schema) == 0 {
		return nil
	}
	for _, f := range schema {
		val, present := payload[f.Name]

		if f.Required {
			if !present || strings.TrimSpace(fmt.Sprint(val)) == "" {
				return &FieldError{
					Field:  f.Name,
					Reason: fmt.Sprintf("required field %q is missing or empty", f.Name),
				}
			}
		}

		if !present || val == nil {
			continue
		}

		switch f.Type {
		case TypeNumber:
			if !coercesToNumber(val) {
				return &FieldError{Field: f.Name, Reason: fmt.Sprintf("field %q must be a valid number", f.Name)}
			}
		case TypeDate:
			if err := checkDate(f.Name, val); err != nil {
				return err
			}
		case TypeCheckbox:
			if _, ok := val.(bool); !ok {
				return &FieldError{Field: f.Name, Reason: fmt.Sprintf("field %q must be a boolean value", f.Name)}
			}
		case TypeText:
			s, ok := val.(string)
			if !ok {
				return &FieldError{Field: f.Name, Reason: fmt.Sprintf("field %q must be a text string", f.Name)}
			}
			if utf8.RuneCountInString(s) > v.maxTextLen {
				return &FieldError{
					Field:  f.Name,
					Reason: fmt.Sprintf("field %q is too long (max %d characters)", f.Name, v.maxTextLen),
				}
			}
		case TypeImage:
			if _, ok := val.(string); !ok {
				return &FieldError{Field: f.Name, Reason: fmt.Sprintf("field %q must be a string image URL", f.Name)}
			}
		}
	}
	return nil
}

// coercesToNumber accepts anything representable as a float, including
// numeric strings.
func coercesToNumber(val any) bool {
	switch x := val.(type) {
	case float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, bool:
		return true
	case json.Number:
		_, err := x.Float64()
		return err == nil
	case string:
		_, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return err == nil
	}
	return false
}

func checkDate(name string, val any) *FieldError {
	s, ok := val.(string)
	if !ok || utf8.RuneCountInString(strings.TrimSpace(s)) < 8 {
		return &FieldError{Field: name, Reason: fmt.Sprintf("field %q must be a valid date", name)}
	}
	if !parseDateAccepts(strings.TrimSpace(s)) {
		return &FieldError{Field: name, Reason: fmt.Sprintf("field %q has invalid date format", name)}
	}
	return nil
}

// parseDateAccepts tries each layout in order. A panic inside the parse
// loop accepts the value instead of failing the field; callers that
// wrote dates under the lenient path must keep reading them.
func parseDateAccepts(s string) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = true
		}
	}()
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}
