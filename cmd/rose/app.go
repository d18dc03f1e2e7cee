package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bitrifttech/rose/internal/cliclient"
	"github.com/bitrifttech/rose/internal/utils"
)

var (
	appURL    string
	appOutput string
)

// defaultInstanceURL is $ROSE_URL or the local gateway.
func defaultInstanceURL() string {
	if u := os.Getenv("ROSE_URL"); u != "" {
		return u
	}
	return "http://localhost:4000"
}

var execCmd = &cobra.Command{
	Use:   "exec -- <command...>",
	Short: "Run a command in the instance's shared terminal",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := cliclient.New(appURL)
		resp, err := client.Execute(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			if cliclient.IsConflict(err) {
				return fmt.Errorf("no terminal is running; attach or POST /terminal/start first")
			}
			return err
		}
		fmt.Print(resp.Output)
		if resp.Output != "" && !strings.HasSuffix(resp.Output, "\n") {
			fmt.Println()
		}
		if resp.TimedOut {
			fmt.Fprintln(os.Stderr, "Command did not finish before the timeout, output may be partial")
		}
		if resp.ExitCode != nil && *resp.ExitCode != 0 {
			os.Exit(*resp.ExitCode)
		}
		return nil
	},
}

var appCmd = &cobra.Command{
	Use:   "app",
	Short: "Control the instance's application process and files",
}

var appStartCmd = &cobra.Command{
	Use:   "start [command [args...]]",
	Short: "Start the application (default: npm start)",
	RunE: func(cmd *cobra.Command, args []string) error {
		req := cliclient.StartServerRequest{}
		if len(args) > 0 {
			req.Command, req.Args = args[0], args[1:]
		}
		status, err := cliclient.New(appURL).StartServer(cmd.Context(), req)
		if err != nil {
			return err
		}
		printStatus(status)
		return nil
	},
}

var appStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the application",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cliclient.New(appURL).StopServer(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Server stopped")
		return nil
	},
}

var appStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the application is running",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := cliclient.New(appURL).ServerStatus(cmd.Context())
		if err != nil {
			return err
		}
		printStatus(status)
		return nil
	},
}

var appUploadCmd = &cobra.Command{
	Use:   "upload <app.zip>",
	Short: "Replace the instance's workspace with a zip archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}
		resp, err := cliclient.New(appURL).UploadApp(cmd.Context(), data)
		if err != nil {
			return err
		}
		fmt.Printf("%s (%s)\n", resp.Message, utils.FormatBytes(int64(len(data))))
		printWarning(os.Stderr, resp.Warning)
		return nil
	},
}

var appDownloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download the instance's workspace as a zip archive",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := cliclient.New(appURL).DownloadApp(cmd.Context())
		if err != nil {
			return err
		}
		if err := os.WriteFile(appOutput, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", appOutput, err)
		}
		fmt.Printf("Wrote %s (%s)\n", appOutput, utils.FormatBytes(int64(len(data))))
		return nil
	},
}

func printStatus(s *cliclient.ServerStatus) {
	if !s.Running || s.PID == nil {
		fmt.Println("Server is not running")
		return
	}
	line := fmt.Sprintf("Server running (pid %d", *s.PID)
	if s.Command != "" {
		line += ", " + strings.TrimSpace(s.Command+" "+strings.Join(s.Args, " "))
	}
	if s.StartedAt != nil {
		line += ", started " + formatTimeAgo(*s.StartedAt)
	}
	fmt.Println(line + ")")
}

func init() {
	execCmd.Flags().StringVarP(&appURL, "url", "u", defaultInstanceURL(), "Instance URL")
	appCmd.PersistentFlags().StringVarP(&appURL, "url", "u", defaultInstanceURL(), "Instance URL")
	appDownloadCmd.Flags().StringVarP(&appOutput, "output", "o", "app.zip", "Output file")

	appCmd.AddCommand(appStartCmd)
	appCmd.AddCommand(appStopCmd)
	appCmd.AddCommand(appStatusCmd)
	appCmd.AddCommand(appUploadCmd)
	appCmd.AddCommand(appDownloadCmd)
}
