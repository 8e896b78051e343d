// Command scribe is a command-line client for Daybook workspaces. It edits
// notes, tasks and projects through a debounced auto-save loop and keeps
// local drafts of anything that could not be pushed.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
