package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/meshalyzer/rigctl/internal/config"
	"codeberg.org/meshalyzer/rigctl/internal/logger"
	"github.com/spf13/cobra"
)

// app carries state shared by all subcommands once flags are parsed.
type app struct {
	cfg *config.Config
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "rigctl",
		Short:         "Pneumatic test rig controller",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
				return err
			}
			a.cfg = cfg

			if err := logger.Init(cfg.LogLevel, logger.IsService()); err != nil {
				fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
				return err
			}
			logger.Debug().Str("data_dir", cfg.DataDir).Msg("Config loaded")

			return nil
		},
	}

	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		a.runCmd(),
		a.checkCmd(),
		a.monitorCmd(),
		a.runsCmd(),
	)

	return root
}

// handleSignals cancels ctx on SIGINT or SIGTERM. onSignal, if set, runs
// first so a protocol can be asked to stop between steps.
func handleSignals(ctx context.Context, cancel context.CancelFunc, onSignal func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case <-sigs:
		logger.Info().Msg("Received termination signal.")
		if onSignal != nil {
			onSignal()
		}
		cancel()
	case <-ctx.Done():
	}
}
