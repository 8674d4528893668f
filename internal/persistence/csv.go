package persistence

import (
	"encoding/csv"
	"io"
	"strconv"

	"codeberg.org/meshalyzer/rigctl/internal/telemetry"
)

// Header is the column layout of trace CSV files.
var Header = []string{
	"time", "ambient_pressure", "ambient_temperature",
	"raw0", "raw1", "raw2", "raw3",
	"calibrated0", "calibrated1", "calibrated2",
	"valve1_state", "valve2_state",
	"target_pressure", "target_time",
	"clamp_state", "protocol_step",
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func record(s *telemetry.Snapshot) []string {
	out := make([]string, 0, len(Header))
	out = append(out,
		formatFloat(s.Elapsed),
		formatFloat(s.AmbientPressure),
		formatFloat(s.AmbientTemperature),
	)
	for _, v := range s.Raw {
		out = append(out, formatFloat(v))
	}
	for _, v := range s.Calibrated {
		out = append(out, formatFloat(v))
	}

	step := ""
	if s.Step > 0 {
		step = strconv.FormatUint(uint64(s.Step), 10)
	}

	return append(out,
		s.Valve1.String(),
		s.Valve2.String(),
		formatOptional(s.TargetPressure),
		formatOptional(s.TargetTime),
		strconv.FormatBool(s.Clamp),
		step,
	)
}

// WriteCSV writes the header and one record per snapshot.
func WriteCSV(w io.Writer, rows []telemetry.Snapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for i := range rows {
		if err := cw.Write(record(&rows[i])); err != nil {
			return err
		}
	}
	cw.Flush()

	return cw.Error()
}
