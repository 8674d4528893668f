package telemetry

import "sync"

// RunState is the run-scoped state the interpreter publishes and the loop
// samples each tick. The interpreter is the only writer.
type RunState struct {
	mu             sync.RWMutex
	run            uint64
	step           uint32
	targetPressure *float64
	targetTime     *float64

	// observed is the last run generation the loop has started a trace for.
	observed uint64
}

// RunView is a consistent read of RunState.
type RunView struct {
	Run            uint64
	Step           uint32
	TargetPressure *float64
	TargetTime     *float64

	// Starting is set on the first loop read of a new run.
	Starting bool
}

// Begin opens a new run at step 1 and returns its generation number.
func (r *RunState) Begin() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.run++
	r.step = 1
	r.targetPressure = nil
	r.targetTime = nil

	return r.run
}

// SetStep advances the step. Steps never move backwards within a run.
func (r *RunState) SetStep(step uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.step == 0 || step < r.step {
		return
	}
	r.step = step
}

// SetTargets publishes the current actuation targets; nil clears them.
func (r *RunState) SetTargets(pressure, seconds *float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.targetPressure = pressure
	r.targetTime = seconds
}

// End closes the run.
func (r *RunState) End() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.step = 0
	r.targetPressure = nil
	r.targetTime = nil
}

func (r *RunState) Read() RunView {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.view()
}

// claim reads the state for the acquisition loop. Starting is reported once
// per run generation, in the same critical section as the read, so a run
// that ends and reopens between two ticks still starts a fresh trace.
func (r *RunState) claim() RunView {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := r.view()
	if r.step > 0 && r.observed != r.run {
		r.observed = r.run
		v.Starting = true
	}
	return v
}

func (r *RunState) view() RunView {
	return RunView{
		Run:            r.run,
		Step:           r.step,
		TargetPressure: r.targetPressure,
		TargetTime:     r.targetTime,
	}
}

// Active reports whether a run is open.
func (r *RunState) Active() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.step > 0
}
