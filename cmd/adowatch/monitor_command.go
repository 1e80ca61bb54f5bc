package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"adowatch/internal/daemon"
	"adowatch/internal/event"
	"adowatch/internal/logging"
	"adowatch/internal/monitor"
	"adowatch/internal/snapshot"
)

func newMonitorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Run the poll loop in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			client, err := ctx.client()
			if err != nil {
				return err
			}

			store, err := snapshot.Open(cfg, ctx.configPath)
			if err != nil {
				return fmt.Errorf("open snapshot store: %w", err)
			}
			defer store.Close()

			events, err := event.NewRegistry().BuildAll(cfg.Events, event.Deps{
				Source: client,
				Store:  store,
				Logger: logger,
			})
			if err != nil {
				return err
			}

			mgr, err := monitor.New(cfg, store, events, logger)
			if err != nil {
				return err
			}
			d, err := daemon.New(cfg, store, mgr, logger)
			if err != nil {
				return err
			}

			runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return d.Run(runCtx)
		},
	}
}
