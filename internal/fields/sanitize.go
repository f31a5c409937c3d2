package fields

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// maxListLen caps sanitized list values; extra elements are dropped.
const maxListLen = 100

var (
	// script and style bodies go first so their contents disappear with
	// the tags instead of surviving as bare text
	scriptRe = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`)
	styleRe  = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style>`)
	tagRe    = regexp.MustCompile(`<[^>]+>`)
)

// StripHTML removes script and style elements with their contents, then
// all remaining tags, and trims surrounding whitespace.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	s = scriptRe.ReplaceAllString(s, "")
	s = styleRe.ReplaceAllString(s, "")
	s = tagRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Sanitize produces the storable form of a payload. It never fails:
// oversized values are truncated or dropped per type. Keys are
// HTML-stripped. String values are HTML-stripped and truncated to the
// max text length. Numbers and booleans pass through. Lists are
// sanitized element by element with over-length strings dropped rather
// than truncated, capped at 100 elements. Anything else is stringified,
// stripped, and kept only when it fits.
//
// Sanitize does not re-check types. Run Validate on the raw payload
// first and persist only what both passes validation and came out of
// Sanitize.
func (v *Validator) Sanitize(payload Payload) Payload {
	out := make(Payload, len(payload))
	for key, val := range payload {
		cleanKey := StripHTML(key)
		switch x := val.(type) {
		case string:
			out[cleanKey] = truncateRunes(StripHTML(x), v.maxTextLen)
		case float64, float32, int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64, bool:
			out[cleanKey] = x
		case []any:
			out[cleanKey] = v.sanitizeList(x)
		default:
			s := StripHTML(fmt.Sprint(x))
			if utf8.RuneCountInString(s) <= v.maxTextLen {
				out[cleanKey] = s
			}
		}
	}
	return out
}

func (v *Validator) sanitizeList(list []any) []any {
	if len(list) > maxListLen {
		list = list[:maxListLen]
	}
	clean := make([]any, 0, len(list))
	for _, item := range list {
		switch x := item.(type) {
		case string:
			// over-length list elements are dropped, not truncated
			s := StripHTML(x)
			if utf8.RuneCountInString(s) <= v.maxTextLen {
				clean = append(clean, s)
			}
		case float64, float32, int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64, bool:
			clean = append(clean, x)
		case []any:
			clean = append(clean, v.sanitizeList(x))
		default:
			s := StripHTML(fmt.Sprint(x))
			if utf8.RuneCountInString(s) <= v.maxTextLen {
				clean = append(clean, s)
			}
		}
	}
	return clean
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
