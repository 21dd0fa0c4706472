package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rendis/flowcanvas/internal/api"
	"github.com/rendis/flowcanvas/internal/scheduler"
)

func newServeCmd(a *app) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the canvas HTTP API and event stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen != "" {
				a.cfg.ListenAddr = listen
			}
			return runServe(cmd.Context(), a.cfg, a.logger)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "TCP listen address (overrides listen_addr)")
	return cmd
}

// runServe wires store, hub, scheduler and API and blocks until ctx ends.
func runServe(ctx context.Context, cfg Config, logger *slog.Logger) error {
	comps, err := buildComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := comps.close(); err != nil {
			logger.Error("shutdown", slog.Any("error", err))
		}
	}()

	sched := scheduler.NewScheduler(logger, scheduler.DefaultTick)
	if err := scheduler.Register(sched, cfg.Schedule, comps.store, comps.hub); err != nil {
		return fmt.Errorf("schedule jobs: %w", err)
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer func() { _ = sched.Stop() }()

	srv, err := api.NewServer(api.Deps{
		Store:       comps.store,
		Hub:         comps.hub,
		Converter:   comps.converter,
		Validator:   comps.validator,
		Expressions: comps.expressions,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx, cfg.ListenAddr)
}
