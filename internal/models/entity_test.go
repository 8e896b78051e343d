package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/daybookhq/scribe/internal/models"
)

func TestNoteFromRecord(t *testing.T) {
	t.Run("full record", func(t *testing.T) {
		record := models.Record{
			"id":         "note-1",
			"title":      "Reading list",
			"content":    "- The Go Programming Language",
			"pinned":     true,
			"tags":       []any{"books", "personal"},
			"updated_at": "2026-08-01T10:00:00Z",
		}

		note := models.NoteFromRecord(record)

		assert.Equal(t, "note-1", note.ID)
		assert.Equal(t, "Reading list", note.Title)
		assert.True(t, note.Pinned)
		assert.Equal(t, []string{"books", "personal"}, note.Tags)
		assert.Equal(t, 2026, note.UpdatedAt.Year())
	})

	t.Run("sparse record", func(t *testing.T) {
		note := models.NoteFromRecord(models.Record{"title": "Untagged"})

		assert.Equal(t, "Untagged", note.Title)
		assert.Empty(t, note.Tags)
		assert.True(t, note.UpdatedAt.IsZero())
	})
}

func TestEditableFields(t *testing.T) {
	for _, kind := range []models.RecordKind{models.KindNote, models.KindTask, models.KindProject} {
		fields := kind.EditableFields()
		assert.NotEmpty(t, fields, "kind %s", kind)
		assert.NotContains(t, fields, "id")
		assert.NotContains(t, fields, "updated_at")
	}
}

func TestTaskFromRecord(t *testing.T) {
	record := models.Record{
		"id":         "task-7",
		"title":      "Renew passport",
		"notes":      "bring photos",
		"status":     models.TaskStatusOpen,
		"due_date":   "2026-09-01",
		"project_id": "proj-2",
	}

	task := models.TaskFromRecord(record)

	assert.Equal(t, "task-7", task.ID)
	assert.Equal(t, "Renew passport", task.Title)
	assert.Equal(t, "bring photos", task.Notes)
	assert.Equal(t, models.TaskStatusOpen, task.Status)
	assert.Equal(t, "2026-09-01", task.DueDate)
	assert.Equal(t, "proj-2", task.ProjectID)
}
