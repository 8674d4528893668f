package telemetry

import "sync"

// Trace holds the snapshots of the current run in acquisition order. The
// acquisition loop is the only writer; readers get copies.
type Trace struct {
	mu   sync.RWMutex
	run  uint64
	rows []Snapshot
}

func NewTrace() *Trace {
	return &Trace{}
}

func (t *Trace) reset(run uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.run = run
	t.rows = nil
}

func (t *Trace) append(s Snapshot) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rows = append(t.rows, s)
	return len(t.rows)
}

// Run returns the generation of the run the trace currently holds.
func (t *Trace) Run() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.run
}

func (t *Trace) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Rows returns a copy of every row of run, or nil if the trace belongs to
// another run (the loop has not ticked since run began).
func (t *Trace) Rows(run uint64) []Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.run != run {
		return nil
	}

	out := make([]Snapshot, len(t.rows))
	copy(out, t.rows)

	return out
}

// RowsForStep returns a copy of the rows of run recorded during step.
func (t *Trace) RowsForStep(run uint64, step uint32) []Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.run != run {
		return nil
	}

	var out []Snapshot
	for _, s := range t.rows {
		if s.Step == step {
			out = append(out, s)
		}
	}

	return out
}
