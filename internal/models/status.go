package models

// SaveStatus is the autosave lifecycle state of an edited record.
//
// The coordinator is the only writer. Status is "saved" exactly when the
// coordinator believes the working record matches the last persisted
// snapshot; it is never "saved" while a save is in flight.
type SaveStatus string

const (
	// SaveStatusSaved means the working record matches the last persisted
	// snapshot.
	SaveStatusSaved SaveStatus = "saved"

	// SaveStatusUnsaved means edits exist that have not been persisted yet.
	SaveStatusUnsaved SaveStatus = "unsaved"

	// SaveStatusSaving means a persist call is in flight.
	SaveStatusSaving SaveStatus = "saving"

	// SaveStatusError means the most recent persist attempt failed; a retry
	// is pending unless the caller intervenes.
	SaveStatusError SaveStatus = "error"
)
