package models

import (
	"fmt"
	"strings"
	"time"
)

// Draft journals the in-memory edits of one record so a crashed or closed
// session can be resumed. Record holds the working copy, Baseline the last
// snapshot known persisted when the draft was written.
type Draft struct {
	Key       string     `json:"key"`
	Kind      RecordKind `json:"kind"`
	RecordID  string     `json:"record_id"`
	Record    Record     `json:"record"`
	Baseline  Record     `json:"baseline,omitempty"`
	Dirty     bool       `json:"dirty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// DraftKey returns the journal key for a record.
func DraftKey(kind RecordKind, id string) string {
	return string(kind) + "/" + id
}

// NewDraft creates a clean draft for a freshly loaded record.
func NewDraft(kind RecordKind, id string, record Record) *Draft {
	return &Draft{
		Key:       DraftKey(kind, id),
		Kind:      kind,
		RecordID:  id,
		Record:    record.Clone(),
		Baseline:  record.Clone(),
		Dirty:     false,
		UpdatedAt: time.Now(),
	}
}

// Touch replaces the working copy with the latest edits and marks the draft
// dirty.
func (d *Draft) Touch(record Record) {
	d.Record = record.Clone()
	d.Dirty = true
	d.UpdatedAt = time.Now()
}

// MarkClean records that the given snapshot was persisted. The working copy
// is kept as-is; a draft is clean when it matches its baseline.
func (d *Draft) MarkClean(baseline Record) {
	d.Baseline = baseline.Clone()
	d.Dirty = false
	d.UpdatedAt = time.Now()
}

// Validate validates the draft structure.
func (d *Draft) Validate() error {
	if strings.TrimSpace(d.Key) == "" {
		return fmt.Errorf("draft key is required")
	}

	if err := d.Kind.Validate(); err != nil {
		return fmt.Errorf("draft kind: %w", err)
	}

	if strings.TrimSpace(d.RecordID) == "" {
		return fmt.Errorf("draft record ID is required")
	}

	if d.Key != DraftKey(d.Kind, d.RecordID) {
		return fmt.Errorf("draft key %q does not match kind/ID", d.Key)
	}

	if d.Record == nil {
		return fmt.Errorf("draft record cannot be nil")
	}

	return nil
}

// Clone creates a deep copy of the draft.
func (d *Draft) Clone() *Draft {
	return &Draft{
		Key:       d.Key,
		Kind:      d.Kind,
		RecordID:  d.RecordID,
		Record:    d.Record.Clone(),
		Baseline:  d.Baseline.Clone(),
		Dirty:     d.Dirty,
		UpdatedAt: d.UpdatedAt,
	}
}
