package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// NoResponseText is shown when a webhook answered with nothing usable.
const NoResponseText = "no response from webhook"

// Keys checked, in priority order, for the display text of an object reply.
var textKeys = []string{"output", "response", "message"}

// Keys checked, in priority order, for an avatar URL.
var avatarKeys = []string{"avatar_url", "profile_avatar", "user_avatar"}

// Result is the display form of one webhook reply.
type Result struct {
	Text   string
	Avatar *string
}

func noResponse() Result {
	return Result{Text: NoResponseText}
}

// Normalize decodes a raw webhook body and extracts its display text and
// avatar. Bodies that are not JSON are treated as plain strings.
func Normalize(raw []byte) Result {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return noResponse()
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return NormalizeValue(string(trimmed))
	}
	if _, err := dec.Token(); err != io.EOF {
		// trailing data after a leading JSON value, e.g. "42 apples"
		return NormalizeValue(string(trimmed))
	}
	return NormalizeValue(v)
}

// NormalizeValue applies the reply shape rules to an already decoded value:
// empty, array (first element), object, string, other primitive.
func NormalizeValue(v any) Result {
	switch val := v.(type) {
	case nil:
		return noResponse()
	case []any:
		if len(val) == 0 {
			return noResponse()
		}
		return normalizeElement(val[0])
	default:
		return normalizeElement(val)
	}
}

func normalizeElement(v any) Result {
	switch val := v.(type) {
	case map[string]any:
		return normalizeObject(val)
	case string:
		if strings.TrimSpace(val) == "" {
			return noResponse()
		}
		return Result{Text: RepairLinks(val)}
	default:
		return Result{Text: stringify(val)}
	}
}

func normalizeObject(obj map[string]any) Result {
	avatar := firstString(obj, avatarKeys)
	clean := sanitize(obj, false).(map[string]any)

	for _, key := range textKeys {
		if text, ok := displayValue(clean[key]); ok {
			return Result{Text: text, Avatar: avatar}
		}
	}

	// Unrecognised shape: show the untouched structure.
	return Result{Text: stringify(obj), Avatar: avatar}
}

func displayValue(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		if strings.TrimSpace(val) == "" {
			return "", false
		}
		return val, true
	default:
		return stringify(val), true
	}
}

func firstString(obj map[string]any, keys []string) *string {
	for _, key := range keys {
		if s, ok := obj[key].(string); ok && strings.TrimSpace(s) != "" {
			return &s
		}
	}
	return nil
}

// Sanitize returns a copy of v with links repaired in every string that sits
// under a display key, at any depth.
func Sanitize(v any) any {
	return sanitize(v, false)
}

func sanitize(v any, display bool) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = sanitize(child, display || isTextKey(k))
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = sanitize(child, display)
		}
		return out
	case string:
		if display {
			return RepairLinks(val)
		}
		return val
	default:
		return val
	}
}

func isTextKey(k string) bool {
	for _, key := range textKeys {
		if k == key {
			return true
		}
	}
	return false
}

// DisplayText renders message content for display, repairing links again.
func DisplayText(content any) string {
	switch val := content.(type) {
	case nil:
		return ""
	case string:
		return RepairLinks(val)
	default:
		return stringify(val)
	}
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		if val {
			return "true"
		}
		return "false"
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimRight(buf.String(), "\n")
}
