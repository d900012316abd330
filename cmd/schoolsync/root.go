package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"schoolsync/internal/config"
	appLog "schoolsync/internal/log"
)

// rootOptions holds the persistent flags and the config they resolve to.
type rootOptions struct {
	configPath string
	envFile    string
	logLevel   string
	listen     string

	cfg *config.Config
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "schoolsync",
		Short: "Sync a Schoology account into a local store and serve it to assistants",
		Long: `schoolsync scrapes the Schoology calendar and course materials of one
account on a schedule, keeps them in SQLite or Postgres, and exposes them
through an MCP tool endpoint, an iCalendar feed and a briefing widget.

Running without a subcommand is the same as "schoolsync serve".`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultPath, "path to config file (created on first run)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file with secrets; missing file is ignored")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug|info|warn|error); overrides config and LOG_LEVEL")
	cmd.PersistentFlags().StringVar(&opts.listen, "listen", "", "HTTP listen address (overrides config if set)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newExportICSCommand(opts))
	cmd.AddCommand(newSnapshotCommand(opts))

	return cmd
}

// load resolves the effective config: .env, then the YAML file, then the
// environment, then flags.
func (o *rootOptions) load() error {
	loadedEnv, err := config.LoadDotEnv(o.envFile)
	if err != nil {
		return err
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", o.configPath, err)
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.listen != "" {
		cfg.Listen = o.listen
	}
	o.cfg = cfg

	appLog.Configure(appLog.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	appLog.Info("effective config",
		"config_path", o.configPath,
		"dotenv", loadedEnv,
		"listen", cfg.Listen,
		"base_url", cfg.Schoology.BaseURL,
		"course_count", len(cfg.Schoology.CourseIDs),
		"db_driver", cfg.Database.Driver,
		"interval_minutes", cfg.Sync.IntervalMinutes,
		"jitter_seconds", cfg.Sync.JitterSeconds,
		"mcp_auth", cfg.MCPToken != "",
	)
	return nil
}
