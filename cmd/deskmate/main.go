package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	serveFlags := &ServeFlags{}
	apiFlags := &APIFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags, serveFlags),
		createStatusCommand(apiFlags),
		createHealthCommand(apiFlags),
		createCommandCommand(apiFlags),
		createSessionsCommand(apiFlags),
		createHistoryCommand(apiFlags),
		createVersionCommand(),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "deskmate",
		Short: "Desktop assistant backend daemon and control CLI",
		Long: `Deskmate runs the desktop assistant backend: the event bus, service
supervisor, session store and the HTTP/websocket API the UI connects to.

Examples:
  deskmate serve --config deskmate.toml   # Start the backend
  deskmate status                          # Coordinator status
  deskmate command start_recording         # Dispatch a command
  deskmate sessions --limit 10             # Recent sessions`,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the deskmate version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("deskmate %s\n", version)
		},
	}
}
