package main

import (
	"context"

	"codeberg.org/meshalyzer/rigctl/internal/logger"
	"codeberg.org/meshalyzer/rigctl/internal/rig"
	"github.com/spf13/cobra"
)

func (a *app) monitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Stream rig status without running a protocol",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withRig(cmd.Context(), func(ctx context.Context, _ *rig.Rig) error {
				logger.Info().Msg("Monitor mode activated. Logging rig status...")
				<-ctx.Done()
				return nil
			})
		},
	}
}
