package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rendis/flowcanvas/pkg/mcp"
)

func newMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve canvas tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			comps, err := buildComponents(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := comps.close(); err != nil {
					a.logger.Error("shutdown", slog.Any("error", err))
				}
			}()

			srv, err := mcp.NewFlowCanvasServer(mcp.Deps{
				Store:       comps.store,
				Hub:         comps.hub,
				Converter:   comps.converter,
				Validator:   comps.validator,
				Expressions: comps.expressions,
				ASCIIBinDir: binDir(),
				Logger:      a.logger,
			})
			if err != nil {
				return err
			}
			return srv.Serve(ctx)
		},
	}
}
