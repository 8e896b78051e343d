package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daybookhq/scribe/internal/models"
)

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Inspect and change user preferences",
	Long: `Preferences live in a local file and mirror to the server. Changes apply
locally at once and push through the auto-save loop; sync reconciles both
copies by their update time.`,
}

var prefsGetCmd = &cobra.Command{
	Use:   "get [field]",
	Short: "Show preferences",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPrefsGet,
}

var prefsSetCmd = &cobra.Command{
	Use:   "set <field> <value>",
	Short: "Change a preference",
	Example: `  scribe prefs set theme dark
  scribe prefs set sidebar_collapsed true`,
	Args: cobra.ExactArgs(2),
	RunE: runPrefsSet,
}

var prefsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile local preferences with the server",
	RunE:  runPrefsSync,
}

func init() {
	rootCmd.AddCommand(prefsCmd)
	prefsCmd.AddCommand(prefsGetCmd)
	prefsCmd.AddCommand(prefsSetCmd)
	prefsCmd.AddCommand(prefsSyncCmd)
}

func runPrefsGet(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		value, err := apiClient.Prefs.Get(args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(map[string]interface{}{args[0]: value})
		} else {
			fmt.Println(value)
		}
		return nil
	}

	prefs := apiClient.Prefs.All()
	if jsonOutput {
		printJSON(prefs)
		return nil
	}

	for _, field := range models.PreferenceFields {
		value, _ := prefs.Get(field)
		fmt.Printf("%-20s %s\n", field, value)
	}
	return nil
}

func runPrefsSet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	// Without a token the push cannot land; the change still applies
	// locally and syncs after the next login.
	if err := apiClient.Session.EnsureAuthenticated(ctx); err != nil {
		if !errors.Is(err, models.ErrNotAuthenticated) {
			return err
		}
		if !jsonOutput {
			printWarning("Not logged in; change saved locally and will sync later")
		}
	}

	if err := apiClient.Prefs.Set(args[0], args[1]); err != nil {
		return err
	}

	apiClient.Analytics.Track("prefs.set", map[string]interface{}{
		"field": args[0],
	})

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, args[0]: args[1]})
	} else {
		printSuccess("%s = %s", args[0], args[1])
	}
	return nil
}

func runPrefsSync(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if err := apiClient.Session.EnsureAuthenticated(ctx); err != nil {
		return err
	}

	if err := apiClient.Prefs.Sync(ctx); err != nil {
		return fmt.Errorf("sync preferences: %w", err)
	}

	if jsonOutput {
		printJSON(apiClient.Prefs.All())
	} else {
		printSuccess("Preferences in sync")
	}
	return nil
}
