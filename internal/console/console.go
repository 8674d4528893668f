package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"codeberg.org/meshalyzer/rigctl/internal/errors"
	"codeberg.org/meshalyzer/rigctl/internal/logger"
	"codeberg.org/meshalyzer/rigctl/internal/protocol"
	"codeberg.org/meshalyzer/rigctl/internal/telemetry"
)

const defaultInterval = 200 * time.Millisecond

type Config struct {
	// Interval is how often pending snapshots are drained and reported.
	Interval time.Duration
}

func DefaultConfig() Config {
	return Config{Interval: defaultInterval}
}

func (c Config) Validate() error {
	if c.Interval <= 0 {
		return errors.New().WithData(ErrInvalidInterval, c.Interval)
	}
	return nil
}

// Console is the operator surface of a headless rig: it reports the
// latest snapshot at a fixed rate and answers protocol prompts from a
// line-oriented input.
type Console struct {
	cfg     Config
	bridge  *telemetry.Bridge
	prompts <-chan protocol.PromptRequest
	in      io.Reader
	out     io.Writer
	log     logger.Logger

	lastStep uint32
}

// New creates a console. prompts may be nil when no protocol will run.
func New(cfg Config, bridge *telemetry.Bridge, prompts <-chan protocol.PromptRequest, in io.Reader, out io.Writer) (*Console, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if bridge == nil {
		return nil, errors.New().WithMessage(errors.ErrInvalidArgument, "console requires a bridge")
	}

	return &Console{
		cfg:     cfg,
		bridge:  bridge,
		prompts: prompts,
		in:      in,
		out:     out,
		log:     logger.Default(),
	}, nil
}

// Run reports status and serves prompts until ctx is cancelled. If the
// input closes while a prompt is pending, Run returns ErrInputClosed.
func (c *Console) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	lines := c.readLines()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.report(c.bridge.DrainAll())
		case req := <-c.prompts:
			if err := c.answer(ctx, req, lines); err != nil {
				return err
			}
		}
	}
}

// readLines feeds input lines to a channel that is closed on EOF. The
// reader goroutine ends with the input, not with ctx.
func (c *Console) readLines() <-chan string {
	lines := make(chan string)
	if c.in == nil {
		close(lines)
		return lines
	}

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	return lines
}

func (c *Console) answer(ctx context.Context, req protocol.PromptRequest, lines <-chan string) error {
	if req.Error != "" {
		fmt.Fprintln(c.out, req.Error)
	}
	fmt.Fprintf(c.out, "%s [%s]: ", req.Title, req.Kind)

	select {
	case <-ctx.Done():
		return nil
	case line, ok := <-lines:
		if !ok {
			return errors.New().WithData(ErrInputClosed, req.Variable)
		}
		req.Reply <- line
		c.log.Debug().Str("variable", req.Variable).Str("input", line).Msg("Prompt answered")
		return nil
	}
}

// report logs the newest of the drained snapshots. Step changes are
// always logged at info level, steady state at debug.
func (c *Console) report(snaps []telemetry.Snapshot) {
	if len(snaps) == 0 {
		return
	}
	s := snaps[len(snaps)-1]

	event := c.log.Debug()
	if s.Step != c.lastStep {
		event = c.log.Info()
		c.lastStep = s.Step
	}

	event.
		Uint32("step", s.Step).
		Float64("elapsed", s.Elapsed).
		Floats64("calibrated", s.Calibrated[:]).
		Str("valve1", s.Valve1.String()).
		Str("valve2", s.Valve2.String()).
		Bool("clamp", s.Clamp).
		Float64("ambient_pressure", s.AmbientPressure).
		Int("drained", len(snaps)).
		Msg("Rig status")
}
