package testutil

import (
	"bytes"
	"time"

	"github.com/daybookhq/scribe/internal/events"
	"github.com/daybookhq/scribe/internal/models"
)

// NewTestLogger creates a logger for testing.
func NewTestLogger() *events.Logger {
	var buf bytes.Buffer
	return events.NewTestLogger(events.DebugLevel, "json", &buf)
}

// SampleNote returns a note record as the API would serve it.
func SampleNote(id string) models.Record {
	return models.Record{
		"id":         id,
		"title":      "Meeting notes",
		"content":    "# Agenda\n\n- Review roadmap\n- Assign owners\n",
		"pinned":     false,
		"tags":       []any{"work", "planning"},
		"updated_at": "2026-08-10T09:30:00Z",
	}
}

// SampleTask returns a task record as the API would serve it.
func SampleTask(id string) models.Record {
	return models.Record{
		"id":         id,
		"title":      "Ship quarterly report",
		"notes":      "Waiting on finance numbers.",
		"status":     "open",
		"due_date":   "2026-09-01",
		"project_id": "proj-1",
		"updated_at": "2026-08-12T15:00:00Z",
	}
}

// SampleProject returns a project record as the API would serve it.
func SampleProject(id string) models.Record {
	return models.Record{
		"id":          id,
		"name":        "Q3 Planning",
		"description": "Everything for the Q3 cycle.",
		"status":      "active",
		"updated_at":  "2026-08-01T08:00:00Z",
	}
}

// SampleRecord returns a record fixture for the given kind.
func SampleRecord(kind models.RecordKind, id string) models.Record {
	switch kind {
	case models.KindTask:
		return SampleTask(id)
	case models.KindProject:
		return SampleProject(id)
	default:
		return SampleNote(id)
	}
}

// SamplePreferences returns a preference fixture.
func SamplePreferences() *models.Preferences {
	return &models.Preferences{
		SidebarCollapsed: false,
		TooltipsEnabled:  true,
		Theme:            "dark",
		DefaultView:      "inbox",
		UpdatedAt:        time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC),
	}
}

// SampleDraft returns a dirty draft for resume tests.
func SampleDraft(kind models.RecordKind, id string) *models.Draft {
	record := SampleRecord(kind, id)
	record[kind.ContentField()] = "Unsaved local edits.\n"

	return &models.Draft{
		Key:       models.DraftKey(kind, id),
		Kind:      kind,
		RecordID:  id,
		Record:    record,
		Dirty:     true,
		UpdatedAt: time.Date(2026, 8, 16, 18, 45, 0, 0, time.UTC),
	}
}

// RecordUpdated builds a record.updated stream frame carrying the
// authoritative record copy.
func RecordUpdated(kind models.RecordKind, id string, record models.Record) models.UpdateMessage {
	return models.UpdateMessage{
		Op:        models.UpdateOpRecordUpdated,
		Kind:      kind,
		RecordID:  id,
		Record:    record,
		UpdatedAt: time.Now().UTC(),
	}
}

// RecordDeleted builds a record.deleted stream frame.
func RecordDeleted(kind models.RecordKind, id string) models.UpdateMessage {
	return models.UpdateMessage{
		Op:        models.UpdateOpRecordDeleted,
		Kind:      kind,
		RecordID:  id,
		UpdatedAt: time.Now().UTC(),
	}
}

// SampleFrames provides raw update stream frames for parser tests.
var SampleFrames = struct {
	Subscribe     string
	RecordUpdated string
	RecordDeleted string
	Pong          string
	Error         string
}{
	Subscribe: `{
		"op": "subscribe",
		"token": "test-token-12345",
		"kinds": ["note", "task"],
		"device": "cli-test"
	}`,

	RecordUpdated: `{
		"op": "record.updated",
		"kind": "note",
		"record_id": "note-1",
		"record": {
			"id": "note-1",
			"title": "Meeting notes",
			"content": "Updated elsewhere.",
			"updated_at": "2026-08-16T10:00:00Z"
		},
		"updated_at": "2026-08-16T10:00:00Z"
	}`,

	RecordDeleted: `{
		"op": "record.deleted",
		"kind": "task",
		"record_id": "task-9",
		"updated_at": "2026-08-16T11:00:00Z"
	}`,

	Pong: `{"op": "pong"}`,

	Error: `{
		"op": "error",
		"code": "subscription_limit",
		"message": "Too many concurrent streams"
	}`,
}
