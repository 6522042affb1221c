package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/deskmate/deskmate"
)

func createServeCommand(globalFlags *GlobalFlags, serveFlags *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the deskmate backend",
		Long: `Start the deskmate backend: event bus, supervisor, session store and
the HTTP/websocket API.

Examples:
  deskmate serve                       # Defaults plus DESKMATE_* env
  deskmate serve deskmate.toml         # Specific config file
  deskmate serve --daemonize           # Run in the background`,
		RunE: func(_ *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			if len(args) > 0 {
				serveFlags.ConfigPath = args[0]
			}
			return runServe(serveFlags)
		},
	}
	cmd.Flags().BoolVar(&serveFlags.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&serveFlags.PidFile, "pidfile", "", "write the daemon PID to this file")
	cmd.Flags().StringVar(&serveFlags.LogFile, "logfile", "", "redirect daemon logs to file")
	return cmd
}

func runServe(flags *ServeFlags) error {
	cfg, err := deskmate.LoadConfig(flags.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	// The daemon exists to serve the API; a headless serve without it
	// would sit idle.
	cfg.Server.Enabled = true

	if flags.Daemonize {
		if err := daemonize(flags.PidFile, flags.LogFile); err != nil {
			return fmt.Errorf("daemonize: %w", err)
		}
	}

	backend, err := deskmate.New(cfg)
	if err != nil {
		return err
	}
	ctx := context.Background()
	if err := backend.Start(ctx); err != nil {
		return err
	}
	fmt.Printf("deskmate backend listening on %s%s\n", cfg.Server.Listen, cfg.Server.BasePath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("Shutting down...")
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = backend.Stop(stopCtx)
	if flags.PidFile != "" {
		_ = removePidFile(flags.PidFile)
	}
	return err
}
