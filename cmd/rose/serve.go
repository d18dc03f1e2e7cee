package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bitrifttech/rose/internal/server"
)

var (
	servePort int
	serveRoot string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the workspace gateway",
	Long: `Start the HTTP gateway for one workspace.

Examples:
  rose serve                    # Serve ./app on port 4000
  rose serve --root /srv/app    # Serve another directory
  rose serve --port 8080        # Override port

Environment variables:
  ROSE_SERVER_PORT           Server port (default: 4000)
  ROSE_SERVER_MODE           development or production
  ROSE_WORKSPACE_ROOT        Workspace directory (default: ./app)
  ROSE_TERMINAL_SHELL        Shell for the shared terminal
  ROSE_TERMINAL_COMPLETION   sentinel or idle
  ROSE_SNAPSHOT_TARGET       local or remote
  ROSE_SNAPSHOT_INSTANCE_URL Instance restored by remote snapshots
  ROSE_DATABASE_DRIVER       Database driver: sqlite, postgres
  ROSE_DATABASE_DSN          Database connection string
  ROSE_LOG_STREAM_VALKEY_ADDR Publish app output to Valkey`,
	Args: cobra.NoArgs,
	Run:  runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (overrides config)")
	serveCmd.Flags().StringVarP(&serveRoot, "root", "r", "", "Workspace root (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := server.Config{
		Port:    servePort,
		Root:    serveRoot,
		Version: Version,
	}

	if err := server.RunWithSignalHandling(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
