package main

import (
	"context"
	"fmt"
	"os"

	"codeberg.org/meshalyzer/rigctl/internal/console"
	"codeberg.org/meshalyzer/rigctl/internal/errors"
	"codeberg.org/meshalyzer/rigctl/internal/logger"
	"codeberg.org/meshalyzer/rigctl/internal/pid"
	"codeberg.org/meshalyzer/rigctl/internal/protocol"
	"codeberg.org/meshalyzer/rigctl/internal/rig"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func (a *app) runCmd() *cobra.Command {
	var noSave bool

	cmd := &cobra.Command{
		Use:   "run <protocol>",
		Short: "Execute a protocol and save its recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRig(cmd.Context(), func(ctx context.Context, r *rig.Rig) error {
				return a.runProtocol(ctx, cmd, r, args[0], noSave)
			})
		},
	}

	cmd.Flags().BoolVar(&noSave, "no-save", false, "Discard the recording instead of saving it")

	return cmd
}

// withRig holds the PID lock, builds the rig and drives its background
// services for as long as fn runs.
func (a *app) withRig(parent context.Context, fn func(ctx context.Context, r *rig.Rig) error) error {
	lock, err := pid.Write(pid.Path(a.cfg.DataDir))
	if err != nil {
		if errors.IsCode(err, errors.ErrAlreadyRunning) {
			logger.Error().Err(err).Msg("Another rigctl instance controls the rig")
		}
		return err
	}
	defer func() {
		if err := lock.Remove(); err != nil {
			logger.Warn().Err(err).Msg("Failed to remove PID file")
		}
	}()

	r, err := rig.New(a.cfg)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize rig")
		return err
	}
	defer func() {
		if err := r.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close rig")
		}
		logger.Info().Msg("Exiting...")
	}()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	go handleSignals(ctx, cancel, r.Interpreter.Cancel)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.Run(gctx)
	})

	cons, err := console.New(console.Config{Interval: a.cfg.Console.Interval},
		r.Bridge, r.Interpreter.Prompts(), os.Stdin, os.Stdout)
	if err != nil {
		cancel()
		_ = g.Wait()
		return err
	}
	g.Go(func() error {
		return cons.Run(gctx)
	})

	g.Go(func() error {
		defer cancel()
		return fn(gctx, r)
	})

	return g.Wait()
}

func (a *app) runProtocol(ctx context.Context, cmd *cobra.Command, r *rig.Rig, path string, noSave bool) error {
	prog, err := r.LoadProtocol(path)
	if err != nil {
		logger.Error().Err(err).Str("protocol", path).Msg("Failed to load protocol")
		return err
	}

	if err := r.Interpreter.Start(ctx, prog, protocol.Options{SkipSave: noSave}); err != nil {
		return err
	}
	result := r.Interpreter.Wait()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Protocol %s %s after %d steps\n", prog.Name, result.Outcome, result.Steps)
	if result.Saved {
		fmt.Fprintf(out, "Saved trial %d to %s\n", result.Record.Trial, result.Record.Dir)
	}

	if result.SaveErr != nil {
		logger.Error().Err(result.SaveErr).Msg("Failed to save run")
		return result.SaveErr
	}
	if result.Outcome == protocol.Aborted && !errors.IsCode(result.Err, protocol.ErrCanceled) {
		return result.Err
	}

	return nil
}
