package homeserver

import (
	"context"
	"maps"
	"math"
	"strconv"
)

// Client is the capability the service needs from one homeserver/heater pair.
//
// Implementations block until the device answers or ctx expires.
type Client interface {
	// RequestStatus fetches a full status snapshot.
	RequestStatus(ctx context.Context) (Snapshot, error)

	// SetTemperature changes the heater setpoint, in whole °C.
	SetTemperature(ctx context.Context, celsius int) error
}

// Snapshot is one point-in-time status read from a device.
//
// Fields are keyed by the sensor keys in Sensors(). Values are JSON
// scalars: float64, string, bool or nil.
type Snapshot struct {
	Fields  map[string]any `json:"fields"`
	Success bool           `json:"success"`
}

// Field returns the named value and whether it is present.
func (s Snapshot) Field(name string) (any, bool) {
	v, ok := s.Fields[name]
	return v, ok
}

// Numeric returns the named value as a float64 when it is numeric or a
// numeric string.
func (s Snapshot) Numeric(name string) (float64, bool) {
	v, ok := s.Fields[name]
	if !ok {
		return 0, false
	}
	return ToFloat(v)
}

// Clone returns a copy whose Fields map can be modified independently.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		Fields:  maps.Clone(s.Fields),
		Success: s.Success,
	}
}

// ToFloat converts a snapshot value to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
