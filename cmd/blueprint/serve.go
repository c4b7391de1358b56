package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/blueprint/internal/infrastructure/config"
	"github.com/GriffinCanCode/blueprint/internal/server"
)

var (
	serveHostFlag   string
	servePortFlag   string
	servePolicyFlag string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the plan daemon",
	Long: `serve starts the HTTP daemon: plans are submitted over REST and
watched over WebSocket while they execute. Configuration comes from
BLUEPRINT_* environment variables; flags override the listen address.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHostFlag, "host", "", "listen host (overrides BLUEPRINT_SERVER_HOST)")
	serveCmd.Flags().StringVar(&servePortFlag, "port", "", "listen port (overrides BLUEPRINT_SERVER_PORT)")
	serveCmd.Flags().StringVar(&servePolicyFlag, "policy", "", "policy file restricting side effects")
	root.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.LoadOrDefault()
	if serveHostFlag != "" {
		cfg.Server.Host = serveHostFlag
	}
	if servePortFlag != "" {
		cfg.Server.Port = servePortFlag
	}

	logger := buildLogger(cfg)
	defer func() { _ = logger.Sync() }()

	pol, err := loadRunPolicy(servePolicyFlag)
	if err != nil {
		return err
	}

	srv, err := server.NewServer(server.Options{
		Config: cfg,
		Logger: logger,
		Policy: pol,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	select {
	case <-ctx.Done():
		stop()
		grace, cancel := context.WithTimeout(context.Background(), cfg.Executor.ShutdownGrace)
		defer cancel()
		return srv.Shutdown(grace)
	case err := <-errCh:
		return err
	}
}
