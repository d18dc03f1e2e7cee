package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bitrifttech/rose/internal/utils"
)

var (
	snapshotRoot    string
	snapshotMessage string
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Save, list and restore project versions",
	Long: `Manage versioned snapshots of the workspace. Commands operate on the
configured database and workspace directly, no running server is needed.`,
}

var snapshotSaveCmd = &cobra.Command{
	Use:   "save <project-id>",
	Short: "Save the workspace as the project's next version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, err := parseProjectID(args[0])
		if err != nil {
			return err
		}
		rt, err := openRuntime(snapshotRoot)
		if err != nil {
			return err
		}
		defer rt.Close(context.Background())

		v, err := rt.Versions.Save(cmd.Context(), projectID, snapshotMessage)
		if err != nil {
			return err
		}
		fmt.Printf("Saved version %d of project %d (%s, %s)\n",
			v.VersionNumber, projectID, utils.FormatBytes(v.SizeBytes), v.ContentHash[:12])
		return nil
	},
}

var snapshotListCmd = &cobra.Command{
	Use:   "list <project-id>",
	Short: "List the project's versions, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, err := parseProjectID(args[0])
		if err != nil {
			return err
		}
		rt, err := openRuntime(snapshotRoot)
		if err != nil {
			return err
		}
		defer rt.Close(context.Background())

		versions, err := rt.Versions.List(cmd.Context(), projectID)
		if err != nil {
			return err
		}
		if len(versions) == 0 {
			fmt.Fprintf(os.Stderr, "No versions saved for project %d\n", projectID)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "VERSION\tACTIVE\tSIZE\tCREATED\tMESSAGE")
		for _, v := range versions {
			active := ""
			if v.IsActive {
				active = "*"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
				v.VersionNumber, active, utils.FormatBytes(v.SizeBytes), formatTimeAgo(v.CreatedAt), v.Message)
		}
		return w.Flush()
	},
}

var snapshotRestoreCmd = &cobra.Command{
	Use:   "restore <project-id> <version>",
	Short: "Replace the workspace with a saved version",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, err := parseProjectID(args[0])
		if err != nil {
			return err
		}
		n, err := parseVersion(args[1])
		if err != nil {
			return err
		}
		rt, err := openRuntime(snapshotRoot)
		if err != nil {
			return err
		}
		defer rt.Close(context.Background())

		res, err := rt.Versions.Restore(cmd.Context(), projectID, n)
		if err != nil {
			return err
		}
		fmt.Printf("Restored version %d of project %d\n", res.Version.VersionNumber, projectID)
		printWarning(os.Stderr, res.Warning)
		return nil
	},
}

func init() {
	snapshotCmd.PersistentFlags().StringVarP(&snapshotRoot, "root", "r", "", "Workspace root (overrides config)")
	snapshotSaveCmd.Flags().StringVarP(&snapshotMessage, "message", "m", "", "Version message (default \"Version N\")")

	snapshotCmd.AddCommand(snapshotSaveCmd)
	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotRestoreCmd)
}
