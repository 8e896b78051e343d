package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/daybookhq/scribe/internal/state"
)

var draftsCmd = &cobra.Command{
	Use:   "drafts",
	Short: "Inspect and recover draft journals",
	Long: `Every edit session journals its working copy locally. A session that could
not push its final save leaves a dirty draft here; 'scribe edit --resume'
picks it up again.`,
}

var draftsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List journaled drafts",
	RunE:  runDraftsList,
}

var draftsShowCmd = &cobra.Command{
	Use:   "show <kind/id>",
	Short: "Show a draft's content",
	Args:  cobra.ExactArgs(1),
	RunE:  runDraftsShow,
}

var draftsClearCmd = &cobra.Command{
	Use:   "clear [kind/id]",
	Short: "Delete drafts",
	Long:  `Clear deletes one draft, or every draft with --all. A dirty draft holds unsaved edits; deleting it discards them.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDraftsClear,
}

var draftsMigrateCmd = &cobra.Command{
	Use:   "migrate <json|sqlite>",
	Short: "Copy drafts into the other journal backend",
	Long: `Migrate copies every draft into the target backend and leaves the source
in place. Set storage.backend to the target afterwards to switch over.`,
	Args: cobra.ExactArgs(1),
	RunE: runDraftsMigrate,
}

var draftsClearAll bool

func init() {
	rootCmd.AddCommand(draftsCmd)
	draftsCmd.AddCommand(draftsListCmd)
	draftsCmd.AddCommand(draftsShowCmd)
	draftsCmd.AddCommand(draftsClearCmd)
	draftsCmd.AddCommand(draftsMigrateCmd)

	draftsClearCmd.Flags().BoolVar(&draftsClearAll, "all", false,
		"Delete every draft")
}

func runDraftsList(cmd *cobra.Command, args []string) error {
	keys, err := apiClient.Drafts.List()
	if err != nil {
		return fmt.Errorf("list drafts: %w", err)
	}

	if jsonOutput {
		out := make([]map[string]interface{}, 0, len(keys))
		for _, key := range keys {
			draft, err := apiClient.Drafts.Load(key)
			if err != nil {
				continue
			}
			out = append(out, map[string]interface{}{
				"key":        draft.Key,
				"kind":       string(draft.Kind),
				"record_id":  draft.RecordID,
				"title":      draft.Record.Title(),
				"dirty":      draft.Dirty,
				"updated_at": draft.UpdatedAt,
			})
		}
		printJSON(out)
		return nil
	}

	if len(keys) == 0 {
		printInfo("No drafts")
		return nil
	}

	for _, key := range keys {
		draft, err := apiClient.Drafts.Load(key)
		if err != nil {
			printWarning("%s: %v", key, err)
			continue
		}
		marker := " "
		if draft.Dirty {
			marker = "*"
		}
		fmt.Printf("%s %-24s %-32q %s\n",
			marker, draft.Key, draft.Record.Title(), humanAge(draft.UpdatedAt))
	}
	printInfo("* dirty (has unsaved edits)")
	return nil
}

func runDraftsShow(cmd *cobra.Command, args []string) error {
	draft, err := apiClient.Drafts.Load(args[0])
	if err != nil {
		if errors.Is(err, state.ErrDraftNotFound) {
			return fmt.Errorf("no draft for %q", args[0])
		}
		return fmt.Errorf("load draft: %w", err)
	}

	if jsonOutput {
		printJSON(draft)
		return nil
	}

	label := "clean"
	if draft.Dirty {
		label = "dirty (unsaved edits)"
	}
	printInfo("%s %q: %s, updated %s",
		draft.Key, draft.Record.Title(), label, humanAge(draft.UpdatedAt))
	fmt.Println(draft.Record.StringField(draft.Kind.ContentField()))
	return nil
}

func runDraftsClear(cmd *cobra.Command, args []string) error {
	if draftsClearAll {
		keys, err := apiClient.Drafts.List()
		if err != nil {
			return fmt.Errorf("list drafts: %w", err)
		}
		for _, key := range keys {
			if err := apiClient.Drafts.Delete(key); err != nil {
				printWarning("%s: %v", key, err)
			}
		}
		if jsonOutput {
			printJSON(map[string]interface{}{"success": true, "deleted": len(keys)})
		} else {
			printSuccess("Deleted %d draft(s)", len(keys))
		}
		return nil
	}

	if len(args) != 1 {
		return fmt.Errorf("draft key required (or --all)")
	}

	if err := apiClient.Drafts.Delete(args[0]); err != nil {
		if errors.Is(err, state.ErrDraftNotFound) {
			return fmt.Errorf("no draft for %q", args[0])
		}
		return fmt.Errorf("delete draft: %w", err)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "deleted": 1})
	} else {
		printSuccess("Deleted %s", args[0])
	}
	return nil
}

func runDraftsMigrate(cmd *cobra.Command, args []string) error {
	if err := apiClient.MigrateDrafts(args[0]); err != nil {
		return fmt.Errorf("migrate drafts: %w", err)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "backend": args[0]})
	} else {
		printSuccess("Drafts copied to the %s backend", args[0])
		printInfo("Set storage.backend: %s to switch over", args[0])
	}
	return nil
}

func humanAge(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	age := time.Since(t).Round(time.Minute)
	if age < time.Minute {
		return "just now"
	}
	return fmt.Sprintf("%s ago", age)
}
