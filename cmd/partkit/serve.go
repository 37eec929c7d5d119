package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/partkit-dev/partkit/internal/serve"
)

func serveCmd() *cobra.Command {
	var (
		addr    string
		project string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local import service",
		Long: `Run an HTTP service that imports parts on request and streams
progress events over a websocket.

Endpoints:
  POST /api/imports          Import a part
  GET  /api/imports/events   Websocket event stream
  GET  /api/tables           Registered library tables
  GET  /healthz              Health check
  GET  /metrics              Prometheus metrics

Examples:
  partkit serve
  partkit serve --addr 0.0.0.0:9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(addr, project)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default: from partkit.json)")
	cmd.Flags().StringVarP(&project, "project", "p", "", "Project directory (default: walk up from the working directory)")

	return cmd
}

func runServe(addr, project string) error {
	cfg, err := loadProject(project)
	if err != nil {
		return err
	}
	if addr == "" {
		addr = cfg.ServeAddress()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		info("Shutting down...")
		cancel()
	}()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	imp, err := newImporter(ctx, cfg, logger)
	if err != nil {
		return err
	}

	srv, err := serve.New(serve.Options{
		Addr:     addr,
		Importer: imp,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	printBanner()
	info("Project %s (%s mode)", cfg.Dir(), cfg.Mode)
	info("Listening on http://%s", addr)
	info("Press Ctrl+C to stop")

	return srv.Run(ctx)
}
