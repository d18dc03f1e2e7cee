package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is set via ldflags at build time
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "rose",
	Short: "rose - workspace runtime for browser-based app development",
	Long: `rose serves one application workspace over HTTP: files, a shared
terminal, the app's dev server process and versioned snapshots.`,
	Example: `  # Serve ./app on port 4000
  rose serve --root ./app

  # Attach to the shared terminal of a running instance
  rose attach --url http://localhost:4000

  # Snapshot the workspace as a new version of project 7
  rose snapshot save 7 -m "before refactor"`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "server", Title: "Server Commands:"},
		&cobra.Group{ID: "workspace", Title: "Workspace Commands:"},
	)

	serveCmd.GroupID = "server"
	configCmd.GroupID = "server"

	attachCmd.GroupID = "workspace"
	execCmd.GroupID = "workspace"
	appCmd.GroupID = "workspace"
	snapshotCmd.GroupID = "workspace"

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(attachCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(appCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
