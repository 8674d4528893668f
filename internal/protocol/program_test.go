package protocol

import (
	"strings"
	"testing"

	"codeberg.org/meshalyzer/rigctl/internal/errors"
	"codeberg.org/meshalyzer/rigctl/internal/hardware"
	"codeberg.org/meshalyzer/rigctl/internal/metrics"
	"codeberg.org/meshalyzer/rigctl/internal/variables"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const example = `Inflate: time, 5, Both, max_force, peak1
Deflate: pressure, 10, Valve1

# operator identifies the sample
Wait_for_user_input: Enter ID, animal_id, string
no_save
End
`

func TestParseExample(t *testing.T) {
	prog, err := Parse(strings.NewReader(example))
	require.NoError(t, err)
	require.Len(t, prog.Steps, 5)

	inflate := prog.Steps[0]
	assert.Equal(t, uint32(1), inflate.Index)
	assert.Equal(t, OpInflate, inflate.Op)
	require.NotNil(t, inflate.Actuation)
	assert.Equal(t, ModeTime, inflate.Actuation.Mode)
	assert.Equal(t, "5", inflate.Actuation.Value)
	assert.Equal(t, hardware.Both, inflate.Actuation.Valve)
	assert.Equal(t, []Binding{{Metric: metrics.MaxForce, Variable: "peak1"}}, inflate.Actuation.Bindings)

	deflate := prog.Steps[1]
	assert.Equal(t, OpDeflate, deflate.Op)
	assert.Equal(t, ModePressure, deflate.Actuation.Mode)
	assert.Equal(t, hardware.Valve1, deflate.Actuation.Valve)
	assert.Empty(t, deflate.Actuation.Bindings)

	wait := prog.Steps[2]
	assert.Equal(t, uint32(3), wait.Index, "blank and comment lines do not consume steps")
	assert.Equal(t, 5, wait.Line)
	assert.Equal(t, &Prompt{Title: "Enter ID", Variable: "animal_id", Kind: variables.KindString}, wait.Prompt)

	assert.Equal(t, OpNoSave, prog.Steps[3].Op)
	assert.Equal(t, OpEnd, prog.Steps[4].Op)
}

func TestParseActuationFields(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		valve    hardware.ValveSelect
		value    string
		bindings []Binding
	}{
		{
			name:  "valve defaults to both",
			line:  "Inflate: pressure, 50",
			valve: hardware.Both,
			value: "50",
		},
		{
			name:     "metric without valve",
			line:     "Inflate: time, 2, min_angle, low",
			valve:    hardware.Both,
			value:    "2",
			bindings: []Binding{{Metric: metrics.MinAngle, Variable: "low"}},
		},
		{
			name:  "metric without variable binds to its own name",
			line:  "Deflate: time, (x * 2), Valve2, max_force, peak, total_time",
			valve: hardware.Valve2,
			value: "(x * 2)",
			bindings: []Binding{
				{Metric: metrics.MaxForce, Variable: "peak"},
				{Metric: metrics.TotalTime, Variable: "total_time"},
			},
		},
		{
			name:  "variable value",
			line:  "inflate: Time, target, valve1",
			valve: hardware.Valve1,
			value: "target",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog, err := Parse(strings.NewReader(tt.line))
			require.NoError(t, err)
			require.Len(t, prog.Steps, 1)

			act := prog.Steps[0].Actuation
			require.NotNil(t, act)
			assert.Equal(t, tt.valve, act.Valve)
			assert.Equal(t, tt.value, act.Value)
			assert.Equal(t, tt.bindings, act.Bindings)
		})
	}
}

func TestParsePromptTitleWithComma(t *testing.T) {
	prog, err := Parse(strings.NewReader("Wait_for_user_input: Weight, in grams, weight, float"))
	require.NoError(t, err)

	p := prog.Steps[0].Prompt
	assert.Equal(t, "Weight, in grams", p.Title)
	assert.Equal(t, "weight", p.Variable)
	assert.Equal(t, variables.KindFloat, p.Kind)
}

func TestParseUnknownKeywordKeepsStep(t *testing.T) {
	prog, err := Parse(strings.NewReader("Pause: 3\nEnd"))
	require.NoError(t, err)
	require.Len(t, prog.Steps, 2)

	assert.Equal(t, OpUnknown, prog.Steps[0].Op)
	assert.Equal(t, uint32(2), prog.Steps[1].Index)
}

func TestParseErrors(t *testing.T) {
	for _, line := range []string{
		"Inflate",
		"Inflate: time",
		"Inflate: volume, 3",
		"Inflate: time, 3, Both, peak_force, p",
		"Deflate: pressure, , Valve1",
		"Wait_for_user_input: Enter ID, animal_id",
		"Wait_for_user_input: Enter ID, animal_id, bool",
		"Wait_for_user_input: Enter ID, , int",
	} {
		t.Run(line, func(t *testing.T) {
			_, err := Parse(strings.NewReader("End\n" + line))
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, ErrParse))
			assert.Contains(t, err.Error(), "line 2")
		})
	}
}

func TestParseFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/protocols/ramp.txt", []byte(example), 0o644))

	prog, err := ParseFile(fs, "/protocols/ramp.txt")
	require.NoError(t, err)
	assert.Equal(t, "ramp.txt", prog.Name)
	assert.Equal(t, "/protocols/ramp.txt", prog.Path)

	_, err = ParseFile(fs, "/protocols/missing.txt")
	assert.True(t, errors.IsCode(err, ErrReadFile))
}
