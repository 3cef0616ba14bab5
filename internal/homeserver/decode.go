package homeserver

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Sensor key prefixes produced when a status body is flattened.
const (
	prefixHomeserver = "homeserver_"
	prefixHeater     = "heater_"
)

// decodeStatus flattens a /devices/status response into a Snapshot.
//
// Top-level scalars become homeserver_<key>, scalars of the matching heater
// become heater_<key>, and its nested objects become heater_<object>_<key>.
// The returned snapshot is populated even when err is a device failure so
// callers can log what the homeserver did report.
func decodeStatus(body []byte, heaterID string) (Snapshot, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	fields := make(map[string]any, len(sensorTable))
	for k, v := range raw {
		if isScalar(v) {
			fields[prefixHomeserver+k] = v
		}
	}

	success, _ := raw["success"].(bool)
	fields["homeserver_success"] = success
	if t, ok := fields["homeserver_time"].(float64); ok {
		fields["homeserver_time"] = time.Unix(int64(t), 0).UTC().Format(time.RFC3339)
	}

	snap := Snapshot{Fields: fields, Success: success}
	if !success {
		return snap, fmt.Errorf("%w: success flag is false", ErrDeviceReportedFailure)
	}

	heater, ok := findHeater(raw["devices"], heaterID)
	if !ok {
		snap.Success = false
		return snap, fmt.Errorf("%w: heater %q not reported", ErrDeviceReportedFailure, heaterID)
	}
	flatten(fields, prefixHeater, heater)
	applyScale(fields)

	return snap, nil
}

// decodeLogs reduces a /devices/logs response to the consumption totals.
//
// Each log entry is one tap: length in seconds, power in Wh, water in ml.
func decodeLogs(body []byte, heaterID string) (map[string]any, error) {
	var raw struct {
		Success bool `json:"success"`
		Devices []struct {
			ID   string `json:"id"`
			Logs []struct {
				Length float64 `json:"length"`
				Power  float64 `json:"power"`
				Water  float64 `json:"water"`
			} `json:"logs"`
		} `json:"devices"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if !raw.Success {
		return nil, fmt.Errorf("%w: log request unsuccessful", ErrDeviceReportedFailure)
	}

	for _, d := range raw.Devices {
		if d.ID != heaterID {
			continue
		}
		var seconds, wh, ml float64
		for _, entry := range d.Logs {
			seconds += entry.Length
			wh += entry.Power
			ml += entry.Water
		}
		return map[string]any{
			"number_of_watertaps": float64(len(d.Logs)),
			"usage_time":          round2(seconds / 60),
			"consumption_energy":  round2(wh / 1000),
			"consumption_water":   round2(ml / 1000),
		}, nil
	}
	return nil, fmt.Errorf("%w: heater %q not in logs", ErrDeviceReportedFailure, heaterID)
}

func findHeater(devices any, heaterID string) (map[string]any, bool) {
	list, ok := devices.([]any)
	if !ok {
		return nil, false
	}
	for _, d := range list {
		m, ok := d.(map[string]any)
		if !ok {
			continue
		}
		if id, _ := m["id"].(string); id == heaterID {
			return m, true
		}
	}
	return nil, false
}

func flatten(dst map[string]any, prefix string, src map[string]any) {
	for k, v := range src {
		switch val := v.(type) {
		case map[string]any:
			flatten(dst, prefix+k+"_", val)
		default:
			if isScalar(val) {
				dst[prefix+k] = val
			}
		}
	}
}

func applyScale(fields map[string]any) {
	for k, v := range fields {
		def, ok := LookupSensor(k)
		if !ok || def.Scale == 0 {
			continue
		}
		if f, ok := v.(float64); ok {
			fields[k] = round2(f * def.Scale)
		}
	}
}

func isScalar(v any) bool {
	switch v.(type) {
	case nil, bool, float64, string:
		return true
	default:
		return false
	}
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
