package models

import (
	"fmt"
	"strings"
	"time"
)

// RecordKind identifies which Daybook collection a record belongs to.
type RecordKind string

const (
	KindNote    RecordKind = "note"
	KindTask    RecordKind = "task"
	KindProject RecordKind = "project"
)

// Validate checks that the kind is one the API serves.
func (k RecordKind) Validate() error {
	switch k {
	case KindNote, KindTask, KindProject:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidKind, string(k))
	}
}

// Collection returns the API path segment for the kind.
func (k RecordKind) Collection() string {
	return string(k) + "s"
}

// ContentField returns the record field the edit loop treats as the body.
func (k RecordKind) ContentField() string {
	switch k {
	case KindTask:
		return "notes"
	case KindProject:
		return "description"
	default:
		return "content"
	}
}

// EditableFields returns the fields clients may write for the kind. Change
// detection is restricted to these so server-managed fields (id, timestamps)
// cannot mark a record dirty.
func (k RecordKind) EditableFields() []string {
	switch k {
	case KindTask:
		return []string{"title", "notes", "status", "due_date", "project_id"}
	case KindProject:
		return []string{"name", "description", "status"}
	default:
		return []string{"title", "content", "pinned", "tags"}
	}
}

// Record is a schemaless view of a Daybook entity, field names and values
// exactly as the API returns them. Callers own their Record instances; code
// that stores one across calls must Clone it first.
type Record map[string]any

// Clone returns a deep copy of the record. Nil stays nil.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	clone := make(Record, len(r))
	for k, v := range r {
		clone[k] = cloneValue(v)
	}
	return clone
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, inner := range val {
			m[k] = cloneValue(inner)
		}
		return m
	case Record:
		return map[string]any(val.Clone())
	case []any:
		s := make([]any, len(val))
		for i, inner := range val {
			s[i] = cloneValue(inner)
		}
		return s
	case []string:
		s := make([]string, len(val))
		copy(s, val)
		return s
	default:
		return v
	}
}

// Merge returns a copy of the record with the given fields applied on top.
// A nil receiver yields a record containing only the given fields.
func (r Record) Merge(fields map[string]any) Record {
	merged := r.Clone()
	if merged == nil {
		merged = make(Record, len(fields))
	}
	for k, v := range fields {
		merged[k] = cloneValue(v)
	}
	return merged
}

// StringField returns the named field as a string, or empty if absent or not
// a string.
func (r Record) StringField(name string) string {
	if s, ok := r[name].(string); ok {
		return s
	}
	return ""
}

// BoolField returns the named field as a bool, or false if absent.
func (r Record) BoolField(name string) bool {
	b, _ := r[name].(bool)
	return b
}

// TimeField parses the named field as an RFC 3339 timestamp, or returns the
// zero time.
func (r Record) TimeField(name string) time.Time {
	s := r.StringField(name)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Title returns a display title for the record, falling back through the
// common title fields.
func (r Record) Title() string {
	for _, field := range []string{"title", "name"} {
		if s := strings.TrimSpace(r.StringField(field)); s != "" {
			return s
		}
	}
	return ""
}
