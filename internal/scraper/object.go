package scraper

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

// object gives lenient, field-by-field access to an upstream JSON record.
// A field of the wrong type reads as its zero value instead of failing the
// whole record, so only the fields normalization actually requires can make
// a record unusable.
type object map[string]json.RawMessage

func decodeObject(raw json.RawMessage) (object, error) {
	var o object
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, err
	}
	if o == nil {
		return nil, errNotAnObject
	}
	return o, nil
}

var errNotAnObject = errors.New("payload is not a JSON object")

// String returns the field as a string. Numbers are returned in their JSON
// spelling so that numeric IDs read naturally.
func (o object) String(key string) string {
	raw, ok := o[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// Strings returns the string elements of an array field; other elements are skipped.
func (o object) Strings(key string) []string {
	var items []json.RawMessage
	if err := json.Unmarshal(o[key], &items); err != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		var s string
		if err := json.Unmarshal(it, &s); err == nil && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

// Object returns a nested object field, or nil.
func (o object) Object(key string) object {
	raw, ok := o[key]
	if !ok {
		return nil
	}
	nested, err := decodeObject(raw)
	if err != nil {
		return nil
	}
	return nested
}

// Objects returns the object elements of an array field.
func (o object) Objects(key string) []object {
	var items []json.RawMessage
	if err := json.Unmarshal(o[key], &items); err != nil {
		return nil
	}
	out := make([]object, 0, len(items))
	for _, it := range items {
		if nested, err := decodeObject(it); err == nil {
			out = append(out, nested)
		}
	}
	return out
}

// Time parses the field as an RFC 3339 string or, when numeric, as epoch
// milliseconds. ok is false when absent or unparseable.
func (o object) Time(key string) (time.Time, bool) {
	raw, present := o[key]
	if !present {
		return time.Time{}, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
			return time.UnixMilli(ms).UTC(), true
		}
		return time.Time{}, false
	}
	var ms int64
	if err := json.Unmarshal(raw, &ms); err == nil && ms > 0 {
		return time.UnixMilli(ms).UTC(), true
	}
	return time.Time{}, false
}
