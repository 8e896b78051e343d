package autosave

import (
	"encoding/json"

	"github.com/daybookhq/scribe/internal/models"
)

// DeepDetector compares entire records structurally. Two empty records
// (nil included) are equal.
func DeepDetector(current, lastSaved models.Record) bool {
	if len(current) == 0 && len(lastSaved) == 0 {
		return false
	}
	if len(current) != len(lastSaved) {
		return true
	}
	return !jsonEqual(current, lastSaved)
}

// FieldDetector compares only the named fields, so server-managed fields
// (timestamps, revision counters) rewritten by the backend cannot mark a
// record dirty on their own.
func FieldDetector(fields ...string) Detector {
	return func(current, lastSaved models.Record) bool {
		for _, field := range fields {
			cur, curOK := current[field]
			last, lastOK := lastSaved[field]
			if curOK != lastOK {
				return true
			}
			if !curOK {
				continue
			}
			if !jsonEqual(cur, last) {
				return true
			}
		}
		return false
	}
}

// jsonEqual compares two values by their canonical JSON encoding. Records
// come off the wire as generic maps, so marshalling normalizes numeric types
// and nested structure in one step. Unencodable values compare unequal,
// which errs on the side of saving.
func jsonEqual(a, b any) bool {
	aj, aErr := json.Marshal(a)
	bj, bErr := json.Marshal(b)
	if aErr != nil || bErr != nil {
		return false
	}
	return string(aj) == string(bj)
}
