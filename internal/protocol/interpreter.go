package protocol

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/meshalyzer/rigctl/internal/errors"
	"codeberg.org/meshalyzer/rigctl/internal/logger"
	"codeberg.org/meshalyzer/rigctl/internal/metrics"
	"codeberg.org/meshalyzer/rigctl/internal/persistence"
	"codeberg.org/meshalyzer/rigctl/internal/telemetry"
	"codeberg.org/meshalyzer/rigctl/internal/variables"
)

type Outcome int

const (
	Completed Outcome = iota + 1
	Aborted
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Aborted:
		return "aborted"
	default:
		return "none"
	}
}

// Result describes a finished run. Err is the error that aborted the run;
// SaveErr is set when persistence failed.
type Result struct {
	Outcome Outcome
	Steps   uint32
	Saved   bool
	Record  persistence.RunRecord
	Err     error
	SaveErr error
}

// Saver persists a finished run.
type Saver interface {
	Save(ctx context.Context, run persistence.Run) (persistence.RunRecord, error)
}

type Options struct {
	// SkipSave suppresses persistence as if the program contained no_save.
	SkipSave bool
}

// Deps are the collaborators of an Interpreter. Saver may be nil.
type Deps struct {
	State     *telemetry.RunState
	Trace     *telemetry.Trace
	Store     *variables.Store
	Evaluator *metrics.Evaluator
	Actuator  *Actuator
	Saver     Saver
	Stats     *Stats
}

// Interpreter executes one protocol at a time on its own goroutine.
type Interpreter struct {
	deps    Deps
	prompts chan PromptRequest
	now     func() time.Time

	running  atomic.Bool
	canceled atomic.Bool

	mu       sync.Mutex
	done     chan struct{}
	cancelCh chan struct{}
	cancelFn *sync.Once
	result   Result
}

func NewInterpreter(deps Deps) (*Interpreter, error) {
	if deps.State == nil || deps.Trace == nil || deps.Store == nil || deps.Evaluator == nil || deps.Actuator == nil {
		return nil, errors.New().WithMessage(errors.ErrInvalidArgument, "interpreter requires run state, trace, store, evaluator and actuator")
	}
	if deps.Stats == nil {
		deps.Stats = NewStats(nil)
	}

	return &Interpreter{
		deps:    deps,
		prompts: make(chan PromptRequest),
		now:     time.Now,
	}, nil
}

// Prompts delivers operator prompts. The consumer must answer each request
// on its Reply channel.
func (i *Interpreter) Prompts() <-chan PromptRequest {
	return i.prompts
}

func (i *Interpreter) Running() bool {
	return i.running.Load()
}

// Start begins executing prog. It fails with ErrReentrancy, changing
// nothing, while another run is executing.
func (i *Interpreter) Start(ctx context.Context, prog *Program, opts Options) error {
	if prog == nil {
		return errors.New().WithMessage(errors.ErrInvalidArgument, "nil program")
	}
	if !i.running.CompareAndSwap(false, true) {
		return errors.New().New(ErrReentrancy)
	}

	i.mu.Lock()
	i.done = make(chan struct{})
	i.cancelCh = make(chan struct{})
	i.cancelFn = &sync.Once{}
	i.result = Result{}
	i.mu.Unlock()
	i.canceled.Store(false)

	i.deps.Store.ResetRun()
	run := i.deps.State.Begin()

	logger.Info().
		Str("protocol", prog.Name).
		Int("steps", len(prog.Steps)).
		Uint64("run", run).
		Msg("Protocol started")

	go i.execute(ctx, run, prog, opts)

	return nil
}

// Cancel asks the running protocol to stop before its next step.
func (i *Interpreter) Cancel() {
	i.canceled.Store(true)

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.cancelCh != nil {
		ch := i.cancelCh
		i.cancelFn.Do(func() { close(ch) })
	}
}

// Wait blocks until the current run finishes and returns its result. It
// returns the previous result, or a zero Result, when nothing is running.
func (i *Interpreter) Wait() Result {
	i.mu.Lock()
	done := i.done
	i.mu.Unlock()

	if done == nil {
		return Result{}
	}
	<-done

	i.mu.Lock()
	defer i.mu.Unlock()
	return i.result
}

func (i *Interpreter) stopRequested(ctx context.Context) bool {
	return i.canceled.Load() || ctx.Err() != nil
}

func (i *Interpreter) execute(ctx context.Context, run uint64, prog *Program, opts Options) {
	started := i.now()
	result := Result{Outcome: Completed}
	noSave := opts.SkipSave

steps:
	for _, step := range prog.Steps {
		if i.stopRequested(ctx) {
			result.Outcome = Aborted
			result.Err = errors.New().New(ErrCanceled)
			logger.Info().Uint32("step", step.Index).Msg("Protocol canceled")
			break
		}

		i.deps.State.SetStep(step.Index)
		result.Steps = step.Index
		stepStarted := i.now()

		err := i.executeStep(ctx, run, step, &noSave)
		i.deps.Stats.StepDuration.WithLabelValues(step.Op.String()).Observe(i.now().Sub(stepStarted).Seconds())

		switch {
		case err != nil:
			result.Outcome = Aborted
			result.Err = err
			logger.Warn().Err(err).Uint32("step", step.Index).Str("line", step.Raw).Msg("Protocol aborted")
			break steps
		case step.Op == OpEnd:
			break steps
		}
	}

	i.deps.State.End()
	finished := i.now()

	if !noSave && i.deps.Saver != nil {
		// An aborted run is still saved, even when ctx caused the abort.
		record, err := i.deps.Saver.Save(context.WithoutCancel(ctx), persistence.Run{
			Rows:         i.deps.Trace.Rows(run),
			Variables:    i.deps.Store.Snapshot(),
			Names:        i.deps.Store.Names(),
			ProtocolName: prog.Name,
			ProtocolPath: prog.Path,
			Outcome:      result.Outcome.String(),
			Steps:        int(result.Steps),
			Started:      started,
			Finished:     finished,
		})
		if err != nil {
			result.SaveErr = err
			logger.Error().Err(err).Msg("Failed to save run")
		} else {
			result.Saved = true
			result.Record = record
		}
	}

	i.deps.Stats.Runs.WithLabelValues(result.Outcome.String()).Inc()
	logger.Info().
		Str("outcome", result.Outcome.String()).
		Uint32("steps", result.Steps).
		Bool("saved", result.Saved).
		Dur("duration", finished.Sub(started)).
		Msg("Protocol finished")

	i.mu.Lock()
	i.result = result
	done := i.done
	i.mu.Unlock()

	i.running.Store(false)
	close(done)
}

func (i *Interpreter) executeStep(ctx context.Context, run uint64, step Step, noSave *bool) error {
	switch step.Op {
	case OpInflate, OpDeflate:
		return i.actuate(ctx, run, step)
	case OpWaitForInput:
		return i.prompt(ctx, step)
	case OpNoSave:
		*noSave = true
		logger.Debug().Uint32("step", step.Index).Msg("Saving disabled for this run")
	case OpEnd:
	default:
		logger.Debug().Uint32("step", step.Index).Str("line", step.Raw).Msg("Ignoring unknown instruction")
	}

	return nil
}

func (i *Interpreter) actuate(ctx context.Context, run uint64, step Step) error {
	act := step.Actuation

	target, err := i.deps.Store.ResolveFloat(act.Value)
	if err != nil {
		return err
	}

	dir := Inflate
	if step.Op == OpDeflate {
		dir = Deflate
	}

	if err := i.deps.Actuator.Actuate(ctx, dir, act.Mode, target, act.Valve, i.canceled.Load); err != nil {
		return err
	}

	if len(act.Bindings) == 0 {
		return nil
	}

	rows := i.deps.Trace.RowsForStep(run, step.Index)
	for _, b := range act.Bindings {
		v, err := i.deps.Evaluator.Compute(b.Metric, rows, step.Index)
		if err != nil {
			i.deps.Stats.MetricMisses.Inc()
			logger.Warn().Err(err).Str("metric", b.Metric.String()).Str("variable", b.Variable).Msg("Metric not bound")
			continue
		}
		if err := i.bind(b.Variable, variables.Float(v)); err != nil {
			return err
		}
	}

	return nil
}

// bind stores a value. Log write failures are reported but do not abort
// the run; the value itself is kept.
func (i *Interpreter) bind(name string, v variables.Value) error {
	err := i.deps.Store.Set(name, v)
	if err == nil {
		return nil
	}
	if errors.IsCode(err, variables.ErrLogWrite) {
		logger.Warn().Err(err).Str("variable", name).Msg("Variable stored but not logged")
		return nil
	}

	return errors.New().Wrap(ErrBindFailed, err)
}

func (i *Interpreter) prompt(ctx context.Context, step Step) error {
	p := step.Prompt

	i.mu.Lock()
	cancelCh := i.cancelCh
	i.mu.Unlock()

	var lastErr string
	for {
		reply := make(chan string, 1)
		req := PromptRequest{
			Title:    p.Title,
			Variable: p.Variable,
			Kind:     p.Kind,
			Error:    lastErr,
			Reply:    reply,
		}

		select {
		case i.prompts <- req:
		case <-cancelCh:
			return errors.New().New(ErrCanceled)
		case <-ctx.Done():
			return errors.New().Wrap(ErrCanceled, ctx.Err())
		}

		var answer string
		select {
		case answer = <-reply:
		case <-cancelCh:
			return errors.New().New(ErrCanceled)
		case <-ctx.Done():
			return errors.New().Wrap(ErrCanceled, ctx.Err())
		}

		v, err := variables.Coerce(answer, p.Kind)
		if err != nil {
			lastErr = "Invalid input type. Expected " + p.Kind.String() + "."
			logger.Debug().Str("input", answer).Str("expected", p.Kind.String()).Msg("Prompt answer rejected")
			continue
		}

		return i.bind(p.Variable, v)
	}
}
