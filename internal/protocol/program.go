package protocol

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"codeberg.org/meshalyzer/rigctl/internal/errors"
	"codeberg.org/meshalyzer/rigctl/internal/hardware"
	"codeberg.org/meshalyzer/rigctl/internal/metrics"
	"codeberg.org/meshalyzer/rigctl/internal/variables"
	"github.com/spf13/afero"
)

type Op int

const (
	OpUnknown Op = iota
	OpInflate
	OpDeflate
	OpWaitForInput
	OpNoSave
	OpEnd
)

var keywords = map[string]Op{
	"inflate":             OpInflate,
	"deflate":             OpDeflate,
	"wait_for_user_input": OpWaitForInput,
	"no_save":             OpNoSave,
	"end":                 OpEnd,
}

func (o Op) String() string {
	switch o {
	case OpInflate:
		return "inflate"
	case OpDeflate:
		return "deflate"
	case OpWaitForInput:
		return "wait_for_user_input"
	case OpNoSave:
		return "no_save"
	case OpEnd:
		return "end"
	default:
		return "unknown"
	}
}

type Mode int

const (
	ModeTime Mode = iota
	ModePressure
)

func (m Mode) String() string {
	if m == ModePressure {
		return "pressure"
	}
	return "time"
}

// Binding stores a metric of the step's trace rows into a variable.
type Binding struct {
	Metric   metrics.Metric
	Variable string
}

// Actuation is an Inflate or Deflate instruction. Value is resolved
// through the variable store when the step executes.
type Actuation struct {
	Mode     Mode
	Value    string
	Valve    hardware.ValveSelect
	Bindings []Binding
}

// Prompt is a Wait_for_user_input instruction.
type Prompt struct {
	Title    string
	Variable string
	Kind     variables.Kind
}

// Step is one protocol line. Index is the step number published while the
// step executes.
type Step struct {
	Index     uint32
	Line      int
	Raw       string
	Op        Op
	Actuation *Actuation
	Prompt    *Prompt
}

// Program is a parsed protocol. It is not modified after Parse returns.
type Program struct {
	Name  string
	Path  string
	Steps []Step
}

type parseFailure struct {
	Line   int
	Text   string
	Reason string
}

func (p parseFailure) String() string {
	return fmt.Sprintf("line %d %q: %s", p.Line, p.Text, p.Reason)
}

// ParseFile reads and parses the protocol at path.
func ParseFile(fs afero.Fs, path string) (*Program, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, errors.New().Wrap(ErrReadFile, err)
	}
	defer f.Close()

	prog, err := Parse(f)
	if err != nil {
		return nil, err
	}
	prog.Path = path
	prog.Name = filepath.Base(path)

	return prog, nil
}

// Parse reads one instruction per line. Blank lines and lines starting
// with # are skipped and do not consume a step number.
func Parse(r io.Reader) (*Program, error) {
	errFactory := errors.New()
	prog := &Program{}

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		step, reason := parseLine(text)
		if reason != "" {
			return nil, errFactory.WithData(ErrParse, parseFailure{Line: line, Text: text, Reason: reason})
		}
		step.Index = uint32(len(prog.Steps) + 1)
		step.Line = line
		step.Raw = text
		prog.Steps = append(prog.Steps, step)
	}
	if err := scanner.Err(); err != nil {
		return nil, errFactory.Wrap(ErrReadFile, err)
	}

	return prog, nil
}

func splitFields(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	fields := strings.Split(s, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}

func parseLine(text string) (Step, string) {
	keyword, args, _ := strings.Cut(text, ":")
	op := keywords[strings.ToLower(strings.TrimSpace(keyword))]
	fields := splitFields(args)

	switch op {
	case OpInflate, OpDeflate:
		act, reason := parseActuation(fields)
		return Step{Op: op, Actuation: act}, reason
	case OpWaitForInput:
		prompt, reason := parsePrompt(fields)
		return Step{Op: op, Prompt: prompt}, reason
	default:
		return Step{Op: op}, ""
	}
}

func parseActuation(fields []string) (*Actuation, string) {
	if len(fields) < 2 {
		return nil, "expects <time|pressure>, <value>"
	}

	act := &Actuation{Valve: hardware.Both}
	switch strings.ToLower(fields[0]) {
	case "time":
		act.Mode = ModeTime
	case "pressure":
		act.Mode = ModePressure
	default:
		return nil, fmt.Sprintf("unknown mode %q", fields[0])
	}

	if fields[1] == "" {
		return nil, "missing value"
	}
	act.Value = fields[1]

	next := 2
	if len(fields) > next {
		if valve, ok := hardware.ParseValveSelect(fields[next]); ok {
			act.Valve = valve
			next++
		}
	}

	for ; next < len(fields); next += 2 {
		m, err := metrics.ParseMetric(fields[next])
		if err != nil {
			return nil, fmt.Sprintf("unknown metric %q", fields[next])
		}

		name := m.String()
		if next+1 < len(fields) && fields[next+1] != "" {
			name = fields[next+1]
		}
		act.Bindings = append(act.Bindings, Binding{Metric: m, Variable: name})
	}

	return act, ""
}

// parsePrompt takes the variable and type from the end so titles may
// contain commas.
func parsePrompt(fields []string) (*Prompt, string) {
	if len(fields) < 3 {
		return nil, "expects <title>, <variable>, <int|float|string>"
	}

	n := len(fields)
	kind, err := variables.ParseKind(fields[n-1])
	if err != nil {
		return nil, fmt.Sprintf("unknown type %q", fields[n-1])
	}
	if fields[n-2] == "" {
		return nil, "missing variable name"
	}

	return &Prompt{
		Title:    strings.Join(fields[:n-2], ", "),
		Variable: fields[n-2],
		Kind:     kind,
	}, ""
}
