package benchmark

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/daybookhq/scribe/internal/models"
	"github.com/daybookhq/scribe/internal/state"
	"github.com/daybookhq/scribe/test/testutil"
)

func benchDraft(id string, contentSize int) *models.Draft {
	record := testutil.SampleNote(id)
	record["content"] = strings.Repeat("x", contentSize)
	return models.NewDraft(models.KindNote, id, record)
}

// benchStores returns one store per backend so the draft journal backends
// can be compared directly.
func benchStores(b *testing.B) map[string]state.Store {
	b.Helper()

	jsonStore, err := state.NewJSONStore(filepath.Join(b.TempDir(), "drafts"), testutil.NewTestLogger())
	if err != nil {
		b.Fatal(err)
	}

	sqliteStore, err := state.NewSQLiteStore(filepath.Join(b.TempDir(), "drafts.db"), testutil.NewTestLogger())
	if err != nil {
		b.Fatal(err)
	}

	b.Cleanup(func() {
		_ = jsonStore.Close()
		_ = sqliteStore.Close()
	})

	return map[string]state.Store{
		"JSON":   jsonStore,
		"SQLite": sqliteStore,
	}
}

func BenchmarkDraftSave(b *testing.B) {
	contentSizes := []int{1024, 10240, 102400}

	for name, store := range benchStores(b) {
		for _, size := range contentSizes {
			b.Run(fmt.Sprintf("%s/%dKB", name, size/1024), func(b *testing.B) {
				draft := benchDraft("bench-note", size)

				b.ResetTimer()
				b.ReportAllocs()
				b.SetBytes(int64(size))

				for i := 0; i < b.N; i++ {
					draft.Touch(draft.Record)
					if err := store.Save(draft); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}

func BenchmarkDraftLoad(b *testing.B) {
	for name, store := range benchStores(b) {
		b.Run(name, func(b *testing.B) {
			draft := benchDraft("bench-note", 10240)
			if err := store.Save(draft); err != nil {
				b.Fatal(err)
			}

			b.ResetTimer()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				loaded, err := store.Load(draft.Key)
				if err != nil {
					b.Fatal(err)
				}
				if loaded.RecordID != "bench-note" {
					b.Fatal("wrong draft loaded")
				}
			}
		})
	}
}

func BenchmarkDraftList(b *testing.B) {
	counts := []int{10, 100, 1000}

	for name, store := range benchStores(b) {
		for _, count := range counts {
			b.Run(fmt.Sprintf("%s/%dDrafts", name, count), func(b *testing.B) {
				for i := 0; i < count; i++ {
					if err := store.Save(benchDraft(fmt.Sprintf("note-%d", i), 512)); err != nil {
						b.Fatal(err)
					}
				}

				b.ResetTimer()
				b.ReportAllocs()

				for i := 0; i < b.N; i++ {
					keys, err := store.List()
					if err != nil {
						b.Fatal(err)
					}
					if len(keys) < count {
						b.Fatalf("expected at least %d drafts, got %d", count, len(keys))
					}
				}
			})
		}
	}
}
