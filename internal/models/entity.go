package models

import "time"

// Note is a typed view of a note record, for display and fixtures. The
// editing path works on Record directly so unknown fields survive a
// round trip.
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Pinned    bool      `json:"pinned"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NoteFromRecord extracts the typed note fields. Missing or mistyped fields
// become zero values.
func NoteFromRecord(r Record) *Note {
	note := &Note{
		ID:        r.StringField("id"),
		Title:     r.StringField("title"),
		Content:   r.StringField("content"),
		Pinned:    r.BoolField("pinned"),
		CreatedAt: r.TimeField("created_at"),
		UpdatedAt: r.TimeField("updated_at"),
	}
	switch tags := r["tags"].(type) {
	case []string:
		note.Tags = append(note.Tags, tags...)
	case []any:
		for _, t := range tags {
			if s, ok := t.(string); ok {
				note.Tags = append(note.Tags, s)
			}
		}
	}
	return note
}

// Task is a typed view of a task record.
type Task struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Notes     string    `json:"notes"`
	Status    string    `json:"status"`
	DueDate   string    `json:"due_date,omitempty"`
	ProjectID string    `json:"project_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Task status values as the API reports them.
const (
	TaskStatusOpen = "open"
	TaskStatusDone = "done"
)

// TaskFromRecord extracts the typed task fields.
func TaskFromRecord(r Record) *Task {
	return &Task{
		ID:        r.StringField("id"),
		Title:     r.StringField("title"),
		Notes:     r.StringField("notes"),
		Status:    r.StringField("status"),
		DueDate:   r.StringField("due_date"),
		ProjectID: r.StringField("project_id"),
		CreatedAt: r.TimeField("created_at"),
		UpdatedAt: r.TimeField("updated_at"),
	}
}
