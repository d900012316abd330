package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"schoolsync/internal/config"
	appLog "schoolsync/internal/log"
	"schoolsync/internal/mcp"
	"schoolsync/internal/scheduler"
	"schoolsync/internal/web"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the background sync and the HTTP endpoints",
		Long: `Start the sync scheduler (one cycle immediately, then every interval with
jitter) and serve /mcp, /calendar.ics, /widget/briefing and /health until
interrupted. Edits to the config file's course list apply on the next cycle.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	cfg := opts.cfg
	appLog.Info("schoolsync starting", "version", version)

	a, err := openSyncApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	sched := scheduler.New(a.orchestrator, scheduler.Options{
		Interval:     cfg.SyncInterval(),
		MaxJitter:    cfg.SyncJitter(),
		MisfireGrace: cfg.MisfireGrace(),
	})

	mcpServer := mcp.NewServer(mcp.Options{Store: a.store, Sync: sched})
	srv := web.NewServer(web.Options{
		Listen:      cfg.Listen,
		MCP:         mcpServer,
		Briefing:    mcpServer,
		Calendar:    a.exporter(),
		DB:          a.store,
		Sync:        sched,
		MCPToken:    cfg.MCPToken,
		ICSCacheTTL: time.Duration(cfg.ICS.CacheSeconds) * time.Second,
	})

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	go func() {
		if err := config.Watch(ctx, opts.configPath, a.applyReload); err != nil {
			appLog.Error("config watch disabled", err, "path", opts.configPath)
		}
	}()

	err = srv.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("http server: %w", err)
	}
	appLog.Info("schoolsync exiting")
	return nil
}
