package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/deskmate/deskmate/pkg/client"
)

func newAPIClient(flags *APIFlags) *client.Client {
	cfg := client.DefaultConfig()
	if flags.APIUrl != "" {
		cfg.BaseURL = flags.APIUrl
	}
	if flags.APITimeout > 0 {
		cfg.Timeout = flags.APITimeout
	}
	return client.New(cfg)
}

func addAPIFlags(cmd *cobra.Command, flags *APIFlags) {
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "", "daemon URL (e.g. http://host:8080/api)")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
}

func createStatusCommand(flags *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show coordinator and service status",
		RunE: func(*cobra.Command, []string) error {
			status, err := newAPIClient(flags).Status(context.Background())
			if err != nil {
				return err
			}
			printJSON(status)
			return nil
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

func createHealthCommand(flags *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show per-service health",
		RunE: func(*cobra.Command, []string) error {
			health, err := newAPIClient(flags).Health(context.Background())
			if err != nil {
				return err
			}
			printJSON(health)
			return nil
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

func createCommandCommand(flags *APIFlags) *cobra.Command {
	var paramsJSON string
	cmd := &cobra.Command{
		Use:   "command <name>",
		Short: "Dispatch a backend command",
		Long: `Dispatch a named command with optional JSON parameters.

Examples:
  deskmate command start_recording
  deskmate command cleanup_storage --params '{"older_than_days": 30}'
  deskmate command update_settings --params '{"screenshot_interval": 10}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			var params map[string]any
			if paramsJSON != "" {
				if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
					return fmt.Errorf("invalid --params JSON: %w", err)
				}
			}
			res, err := newAPIClient(flags).Command(context.Background(), args[0], params)
			if err != nil {
				return err
			}
			printJSON(res)
			if !res.Success {
				return fmt.Errorf("command failed: %s", res.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&paramsJSON, "params", "", "command parameters as a JSON object")
	addAPIFlags(cmd, flags)
	return cmd
}

func createSessionsCommand(flags *APIFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recorded sessions",
		RunE: func(*cobra.Command, []string) error {
			params := map[string]any{"limit": limit}
			res, err := newAPIClient(flags).Command(context.Background(), "get_sessions", params)
			if err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("get_sessions failed: %s", res.Error)
			}
			printJSON(res.Result["sessions"])
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum sessions to list")
	addAPIFlags(cmd, flags)
	return cmd
}

func createHistoryCommand(flags *APIFlags) *cobra.Command {
	var eventType string
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent bus events, newest first",
		RunE: func(*cobra.Command, []string) error {
			hist, err := newAPIClient(flags).History(context.Background(), eventType, limit)
			if err != nil {
				return err
			}
			printJSON(hist.Events)
			return nil
		},
	}
	cmd.Flags().StringVar(&eventType, "type", "", "filter by event type")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum events to show")
	addAPIFlags(cmd, flags)
	return cmd
}
