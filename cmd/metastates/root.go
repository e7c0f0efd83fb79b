package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/metastates/pkg/config"
	"github.com/dmitrymomot/metastates/pkg/logger"
)

// cli holds what the persistent pre-run resolves for every subcommand.
type cli struct {
	cfg config.App
	log *slog.Logger

	metricsFile string
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "metastates",
		Short:         "Manage state histories of domain entities",
		Long:          `metastates records validated state transitions for owners and runs callbacks when a status changes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.String("storage", "", "storage backend: memory, sqlite, postgres or redis (env METASTATES_STORAGE)")
	flags.String("definitions", "", "state definitions file (env METASTATES_DEFINITIONS)")
	flags.String("sqlite-path", "", "sqlite database path (env METASTATES_SQLITE_PATH)")
	flags.String("nats-url", "", "publish transition events to this NATS server (env NATS_URL)")
	flags.String("log-level", "", "debug, info, warn or error (env LOG_LEVEL)")
	flags.StringVar(&c.metricsFile, "metrics-file", "", "write Prometheus metrics to this file after the command")

	root.AddCommand(
		newCheckCmd(c),
		newMigrateCmd(c),
		newAddCmd(c),
		newUpdateCmd(c),
		newHistoryCmd(c),
		newPingCmd(c),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (c *cli) setup(cmd *cobra.Command) error {
	if err := config.Load(&c.cfg); err != nil {
		return err
	}

	flags := cmd.Flags()
	override := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	override("storage", &c.cfg.Storage)
	override("definitions", &c.cfg.Definitions)
	override("sqlite-path", &c.cfg.SQLitePath)
	override("nats-url", &c.cfg.NATSURL)
	override("log-level", &c.cfg.LogLevel)

	opts := []logger.Option{
		logger.WithEnvironment(c.cfg.Env, c.cfg.ServiceName),
		logger.WithOutput(cmd.ErrOrStderr()),
		logger.WithContextExtractors(logger.Owner),
	}
	if c.cfg.LogLevel != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(c.cfg.LogLevel)); err != nil {
			return fmt.Errorf("invalid log level %q: %w", c.cfg.LogLevel, err)
		}
		opts = append(opts, logger.WithLevel(level))
	}
	c.log = logger.New(opts...)

	c.cfg.Storage = strings.ToLower(c.cfg.Storage)
	return nil
}
