package variables

import (
	"sort"
	"strings"
	"sync"

	"codeberg.org/meshalyzer/rigctl/internal/errors"
)

// MaxIndirections bounds how many string-valued variables Resolve follows.
const MaxIndirections = 10

// entry keeps the configured preset next to the current value so ResetRun
// can restore it after a run overrides it.
type entry struct {
	value     Value
	preset    Value
	hasPreset bool
}

// Store holds the named run variables. Presets survive ResetRun; everything
// written with Set belongs to the current run, including overrides of a
// preset. Every Set is mirrored to the log when one is attached.
type Store struct {
	mu     sync.RWMutex
	values map[string]entry
	log    *Log
}

// NewStore creates a store; log may be nil.
func NewStore(log *Log) *Store {
	return &Store{
		values: make(map[string]entry),
		log:    log,
	}
}

func validName(name string) bool {
	return name != "" && !strings.ContainsAny(name, ",\n\r")
}

// Set stores a run-scoped value. The value is kept even if the log write
// fails; the log error is returned so the caller can report it.
func (s *Store) Set(name string, v Value) error {
	errFactory := errors.New()
	name = strings.TrimSpace(name)
	if !validName(name) {
		return errFactory.WithData(ErrInvalidName, name)
	}

	s.mu.Lock()
	e := s.values[name]
	e.value = v
	s.values[name] = e
	s.mu.Unlock()

	if s.log == nil {
		return nil
	}
	return s.log.Append(name, v)
}

// Preset stores a value that persists across runs.
func (s *Store) Preset(name string, v Value) error {
	name = strings.TrimSpace(name)
	if !validName(name) {
		return errors.New().WithData(ErrInvalidName, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = entry{value: v, preset: v, hasPreset: true}

	return nil
}

func (s *Store) Get(name string) (Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.values[name]
	return e.value, ok
}

// ResetRun forgets every value written during the previous run and puts
// overridden presets back.
func (s *Store) ResetRun() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, e := range s.values {
		if !e.hasPreset {
			delete(s.values, name)
			continue
		}
		e.value = e.preset
		s.values[name] = e
	}
}

// Names returns the variable names in sorted order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.values))
	for name := range s.values {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Snapshot returns a copy of every value.
func (s *Store) Snapshot() map[string]Value {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Value, len(s.values))
	for name, e := range s.values {
		out[name] = e.value
	}
	return out
}

// Resolve turns a protocol token into a number of the requested kind. The
// token may be a literal, a parenthesized expression, or a variable name
// whose value may itself name another variable.
func (s *Store) Resolve(tok string, kind Kind) (Value, error) {
	tok = strings.TrimSpace(tok)

	if f, ok := parseNumber(tok); ok {
		return numeric(f, kind)
	}

	// The grammar treats parentheses as grouping, so the whole token is
	// evaluated and "(1)+(2)" stays one expression.
	if len(tok) >= 2 && strings.HasPrefix(tok, "(") && strings.HasSuffix(tok, ")") {
		f, err := evaluate(tok, s.resolveName)
		if err != nil {
			return Value{}, err
		}
		return numeric(f, kind)
	}

	f, err := s.resolveName(tok)
	if err != nil {
		return Value{}, err
	}
	return numeric(f, kind)
}

// ResolveFloat is Resolve for the common float case.
func (s *Store) ResolveFloat(tok string) (float64, error) {
	v, err := s.Resolve(tok, KindFloat)
	if err != nil {
		return 0, err
	}
	f, _ := v.Number()
	return f, nil
}

func (s *Store) resolveName(name string) (float64, error) {
	errFactory := errors.New()

	v, ok := s.Get(name)
	if !ok {
		return 0, errFactory.WithData(ErrNotFound, name)
	}

	for hops := 0; ; hops++ {
		if f, ok := v.Number(); ok {
			return f, nil
		}

		text, _ := v.Text()
		if f, ok := parseNumber(strings.TrimSpace(text)); ok {
			return f, nil
		}
		if hops == MaxIndirections {
			return 0, errFactory.WithData(ErrTooManyIndirections, name)
		}

		next, ok := s.Get(text)
		if !ok {
			return 0, errFactory.WithData(ErrNotFound, text)
		}
		v = next
	}
}
