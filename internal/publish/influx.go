package publish

import (
	"context"
	"time"

	"github.com/nerrad567/clage-homeserver/internal/command"
	"github.com/nerrad567/clage-homeserver/internal/coordinator"
)

// Telemetry writes points to a time-series store.
// *influxdb.Client satisfies it.
type Telemetry interface {
	WriteStatus(deviceID string, fields map[string]float64, ts time.Time)
	WriteCommand(deviceID, commandID string, temperature int, ok bool, ts time.Time)
}

// TelemetrySink records numeric snapshot fields and command outcomes.
type TelemetrySink struct {
	writer Telemetry
}

// NewTelemetrySink creates a sink writing to w.
func NewTelemetrySink(w Telemetry) *TelemetrySink {
	return &TelemetrySink{writer: w}
}

// HandleUpdate writes the numeric and boolean fields of u. Text fields such
// as the heater name are not written.
func (s *TelemetrySink) HandleUpdate(_ context.Context, u coordinator.Update) {
	s.writer.WriteStatus(u.DeviceID, numericFields(u.Snapshot.Fields), u.At)
}

// HandleResult writes one point per targeted device of a dispatched command.
func (s *TelemetrySink) HandleResult(_ context.Context, res command.Result, _ error) {
	failed := make(map[string]bool, len(res.Failures))
	for _, f := range res.Failures {
		failed[f.DeviceID] = true
	}
	for _, id := range res.Targets {
		s.writer.WriteCommand(id, res.CommandID, res.Temperature, !failed[id], res.IssuedAt)
	}
}

func numericFields(fields map[string]any) map[string]float64 {
	out := make(map[string]float64, len(fields))
	for k, v := range fields {
		switch val := v.(type) {
		case float64:
			out[k] = val
		case float32:
			out[k] = float64(val)
		case int:
			out[k] = float64(val)
		case int64:
			out[k] = float64(val)
		case bool:
			if val {
				out[k] = 1
			} else {
				out[k] = 0
			}
		}
	}
	return out
}
