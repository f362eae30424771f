package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/linechat/internal/app"
	"github.com/vovakirdan/linechat/internal/auth"
	"github.com/vovakirdan/linechat/internal/config"
	applog "github.com/vovakirdan/linechat/internal/log"
	"github.com/vovakirdan/linechat/internal/store/sqlite"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "linechat",
		Short:         "Multi-user line chat server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config.yaml")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (trace, debug, info, warn, error)")

	cmd.AddCommand(newServeCmd(opts), newUserCmd(opts), newMigrateCmd(opts))
	return cmd
}

// load resolves configuration and builds the logger. The returned cleanup
// closes the log file when one is configured.
func (o *rootOptions) load() (config.Config, *zerolog.Logger, func(), error) {
	bootLogger := applog.New(o.logLevel)
	cfg, path, err := config.Load(bootLogger, o.configPath)
	if err != nil {
		return cfg, nil, nil, err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}

	cleanup := func() {}
	var logger *zerolog.Logger
	if cfg.LogFile != "" {
		f, err := applog.OpenFile(cfg.LogFile)
		if err != nil {
			return cfg, nil, nil, fmt.Errorf("open log file: %w", err)
		}
		logger = applog.New(cfg.LogLevel, f)
		cleanup = func() { _ = f.Close() }
	} else {
		logger = applog.New(cfg.LogLevel)
	}

	logger.Debug().Str("config", path).Msg("configuration loaded")
	return cfg, logger, cleanup, nil
}

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr, httpAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, cleanup, err := root.load()
			if err != nil {
				return err
			}
			defer cleanup()

			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("http-addr") {
				cfg.HTTPAddr = httpAddr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(&cfg, logger)
			if err != nil {
				return err
			}

			logger.Info().Str("addr", cfg.Addr).Str("http_addr", cfg.HTTPAddr).Msg("starting linechat server")
			if err := application.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("server exited with error")
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "TCP listen address")
	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "HTTP listen address (empty disables)")
	return cmd
}

func newUserCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}

	var password string
	var isAdmin bool
	add := &cobra.Command{
		Use:   "add <username>",
		Short: "Create an account, or promote an existing one with --admin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, cleanup, err := root.load()
			if err != nil {
				return err
			}
			defer cleanup()

			st, err := sqlite.New(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			svc := auth.NewService(st, nil)
			created, err := svc.EnsureUser(ctx, args[0], password, isAdmin)
			if err != nil {
				if errors.Is(err, auth.ErrInvalidPassword) {
					return errors.New("--password is required for new accounts")
				}
				return err
			}

			logger.Info().Str("user", args[0]).Bool("admin", isAdmin).Bool("created", created).Msg("account saved")
			return nil
		},
	}
	add.Flags().StringVar(&password, "password", "", "password for a new account")
	add.Flags().BoolVar(&isAdmin, "admin", false, "grant admin rights")

	cmd.AddCommand(add)
	return cmd
}

func newMigrateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, logger, cleanup, err := root.load()
			if err != nil {
				return err
			}
			defer cleanup()

			st, err := sqlite.New(cfg.DatabasePath)
			if err != nil {
				return err
			}
			logger.Info().Str("db_path", cfg.DatabasePath).Msg("schema applied")
			return st.Close()
		},
	}
}
