package graphstore

import (
	"encoding/json"
	"fmt"
)

// Document is a schemaless vertex or edge payload.
type Document map[string]any

// ID returns the document handle.
func (d Document) ID() string {
	return d.String(FieldID)
}

// String returns the string value stored under key, or "" when absent or not a string.
func (d Document) String(key string) string {
	if d == nil {
		return ""
	}
	if v, ok := d[key].(string); ok {
		return v
	}
	return ""
}

// Float returns the numeric value stored under key.
func (d Document) Float(key string) (float64, bool) {
	if d == nil {
		return 0, false
	}
	switch v := d[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// FloatOr returns the numeric value under key or fallback when absent.
func (d Document) FloatOr(key string, fallback float64) float64 {
	if v, ok := d.Float(key); ok {
		return v
	}
	return fallback
}

// Strings returns the string slice stored under key.
func (d Document) Strings(key string) []string {
	if d == nil {
		return nil
	}
	switch v := d[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Clone returns a shallow copy of the document.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Merge applies patch on top of the document. Reserved keys are never overwritten.
func (d Document) Merge(patch Document) Document {
	out := d.Clone()
	for k, v := range patch {
		switch k {
		case FieldID, FieldKey, FieldFrom, FieldTo:
			continue
		}
		out[k] = v
	}
	return out
}

// Matches reports whether every filter entry equals the document's value for that key.
// Values are compared through their JSON form so numbers decoded as float64 match ints.
func (d Document) Matches(filter Document) bool {
	for k, want := range filter {
		got, ok := d[k]
		if !ok {
			return false
		}
		if !sameValue(got, want) {
			return false
		}
	}
	return true
}

func sameValue(a, b any) bool {
	if sa, ok := a.(string); ok {
		sb, ok := b.(string)
		return ok && sa == sb
	}
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ja) == string(jb)
}

// Encode converts a tagged struct into a Document using its JSON representation.
func Encode(v any) (Document, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return doc, nil
}

// Decode fills a tagged struct from a Document.
func Decode(doc Document, v any) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}
