package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/daybookhq/scribe/internal/models"
	"github.com/daybookhq/scribe/internal/services/editor"
	"github.com/daybookhq/scribe/internal/storage"
)

var editCmd = &cobra.Command{
	Use:   "edit <kind> <id>",
	Short: "Edit a record with automatic saving",
	Long: `Edit fetches a record, materializes its content as a working file, and
watches the file for changes. Every save of the file is pushed to the
server through the auto-save loop; Ctrl-C flushes unsaved edits before
exiting. If the final save cannot reach the server the edits are kept as
a local draft and can be recovered with --resume.`,
	Example: `  scribe edit note 7f3c9a
  scribe edit task 98d2f1 --resume
  scribe edit note 7f3c9a --file ~/notes/groceries.md`,
	Args: cobra.ExactArgs(2),
	RunE: runEdit,
}

var (
	editResume bool
	editFile   string
)

func init() {
	rootCmd.AddCommand(editCmd)

	editCmd.Flags().BoolVar(&editResume, "resume", false,
		"Resume a dirty draft from a previous session instead of the server copy")
	editCmd.Flags().StringVar(&editFile, "file", "",
		"Materialize the record at this path instead of the work directory")
}

func runEdit(cmd *cobra.Command, args []string) error {
	kind := models.RecordKind(args[0])
	id := args[1]

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess, err := apiClient.OpenEditor(ctx, kind, id, editResume)
	if err != nil {
		if jsonOutput {
			printJSON(map[string]interface{}{
				"success": false,
				"error":   err.Error(),
			})
		} else {
			printError("Open failed: %v", err)
		}
		return err
	}

	opened := time.Now()
	apiClient.Analytics.Track("editor.session_opened", map[string]interface{}{
		"kind":    string(kind),
		"resumed": editResume,
	})

	workPath, err := materializeRecord(sess)
	if err != nil {
		_ = sess.Close(context.Background())
		return fmt.Errorf("materialize record: %w", err)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"event":  "opened",
			"kind":   string(kind),
			"id":     id,
			"title":  sess.Record().Title(),
			"file":   workPath,
			"status": string(sess.Status()),
		})
	} else {
		printInfo("Editing %s %s: %s", kind, id, describeRecord(kind, sess.Record()))
		printInfo("Working file: %s (Ctrl-C saves and exits)", workPath)
	}

	watchErr := watchAndForward(ctx, sess, workPath)

	closeErr := sess.Close(context.Background())

	apiClient.Analytics.Track("editor.session_closed", map[string]interface{}{
		"kind":     string(kind),
		"status":   string(sess.Status()),
		"duration": time.Since(opened).Round(time.Second).String(),
	})

	if jsonOutput {
		out := map[string]interface{}{
			"event":  "closed",
			"status": string(sess.Status()),
		}
		if closeErr != nil {
			out["error"] = closeErr.Error()
		}
		printJSON(out)
	} else if closeErr != nil {
		printWarning("Final save failed: %v", closeErr)
		printWarning("Draft kept; run 'scribe edit %s %s --resume' to recover it", kind, id)
	} else {
		printSuccess("All changes saved")
	}

	if watchErr != nil && !errors.Is(watchErr, context.Canceled) {
		return watchErr
	}
	return closeErr
}

// describeRecord builds the banner summary through the typed record views,
// so tasks show their status and due date and notes their tags.
func describeRecord(kind models.RecordKind, record models.Record) string {
	switch kind {
	case models.KindTask:
		task := models.TaskFromRecord(record)
		if task.DueDate != "" {
			return fmt.Sprintf("%q (%s, due %s)", task.Title, task.Status, task.DueDate)
		}
		return fmt.Sprintf("%q (%s)", task.Title, task.Status)
	case models.KindNote:
		note := models.NoteFromRecord(record)
		if len(note.Tags) > 0 {
			return fmt.Sprintf("%q [%s]", note.Title, strings.Join(note.Tags, " "))
		}
		return fmt.Sprintf("%q", note.Title)
	default:
		return fmt.Sprintf("%q", record.Title())
	}
}

// materializeRecord writes the record body to the working file and returns
// the absolute path. With --resume the session already holds the draft's
// working copy, so unsaved edits land in the file too.
func materializeRecord(sess *editor.Session) (string, error) {
	content := sess.Record().StringField(sess.Kind().ContentField())

	if editFile != "" {
		abs, err := filepath.Abs(editFile)
		if err != nil {
			return "", err
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
			return "", err
		}
		if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
			return "", err
		}
		return abs, nil
	}

	rel := storage.WorkFile(sess.Kind(), sess.ID())
	if err := apiClient.Work.Write(rel, []byte(content), 0644); err != nil {
		return "", err
	}
	return apiClient.Work.Resolve(rel)
}

// watchAndForward mirrors file edits into the session and session events to
// the terminal until the user interrupts or the session ends.
func watchAndForward(ctx context.Context, sess *editor.Session, workPath string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors that save via rename swap
	// the inode and a watch on the file itself goes stale after the first
	// save.
	if err := watcher.Add(filepath.Dir(workPath)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(workPath), err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-sigCh:
			if !jsonOutput {
				fmt.Fprintln(os.Stderr)
				printInfo("Closing session")
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher closed")
			}
			if filepath.Clean(event.Name) != workPath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			data, err := os.ReadFile(workPath)
			if err != nil {
				// Rename-style saves briefly leave no file at the path.
				continue
			}
			sess.SetContent(string(data))

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher closed")
			}
			logger.WithError(err).Warn("File watcher error")

		case ev := <-sess.Events():
			if done := renderSessionEvent(sess, ev, workPath); done {
				return nil
			}
		}
	}
}

// renderSessionEvent reports one session event and returns true when the
// session is over.
func renderSessionEvent(sess *editor.Session, ev editor.Event, workPath string) bool {
	if jsonOutput {
		out := map[string]interface{}{
			"event": string(ev.Type),
			"time":  ev.Timestamp.Format(time.RFC3339),
		}
		if ev.Status != "" {
			out["status"] = string(ev.Status)
		}
		if ev.Err != nil {
			out["error"] = ev.Err.Error()
		}
		printJSON(out)
	}

	switch ev.Type {
	case editor.EventSaveStatus:
		if !jsonOutput {
			renderStatus(ev)
		}
	case editor.EventRemoteUpdate:
		refreshWorkFile(sess, workPath)
		if !jsonOutput {
			printInfo("Record changed on the server")
		}
	case editor.EventRemoteDelete:
		if !jsonOutput {
			printWarning("Record was deleted on the server; closing")
		}
		return true
	case editor.EventStreamEnd:
		if !jsonOutput {
			printWarning("Realtime updates ended; closing")
		}
		return true
	}

	return false
}

func renderStatus(ev editor.Event) {
	stamp := ev.Timestamp.Format("15:04:05")
	switch ev.Status {
	case models.SaveStatusSaved:
		printSuccess("saved %s", stamp)
	case models.SaveStatusSaving:
		printInfo("saving...")
	case models.SaveStatusUnsaved:
		// Fires on every edit; not reported.
	case models.SaveStatusError:
		printError("save failed: %v (retrying)", ev.Err)
	}
}

// refreshWorkFile rewrites the working file after the session adopted a
// server-side change. A dirty session keeps its local copy, so the rewrite
// is skipped when content already matches.
func refreshWorkFile(sess *editor.Session, workPath string) {
	content := sess.Record().StringField(sess.Kind().ContentField())

	current, err := os.ReadFile(workPath)
	if err == nil && string(current) == content {
		return
	}

	if err := os.WriteFile(workPath, []byte(content), 0644); err != nil {
		logger.WithError(err).Warn("Could not refresh working file")
	}
}
