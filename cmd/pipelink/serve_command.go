package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"pipelink/internal/daemon"
	"pipelink/internal/journal"
	"pipelink/internal/logging"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the pipelink service in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runService(cmd.Context(), ctx)
		},
	}
}

func runService(cmdCtx context.Context, ctx *commandContext) error {
	if cmdCtx == nil {
		cmdCtx = context.Background()
	}
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	sessionID := uuid.NewString()
	hub := logging.NewStreamHub(cfg.Logging.StreamCapacity)
	levelVar := new(slog.LevelVar)
	logger, err := logging.NewFromConfig(cfg, hub, levelVar, sessionID)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	var store *journal.Store
	if cfg.Journal.Enabled {
		store, err = journal.Open(cfg)
		if err != nil {
			logging.ErrorWithContext(logger, "open journal", "journal_open_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check permissions on data_dir or set journal.enabled = false"))
			return err
		}
		defer store.Close()
	}

	d, err := daemon.New(daemon.Options{
		Config:     cfg,
		ConfigPath: ctx.configPath,
		Logger:     logger,
		LevelVar:   levelVar,
		Hub:        hub,
		SessionID:  sessionID,
		Journal:    store,
	})
	if err != nil {
		return err
	}
	return d.Run(signalCtx)
}
