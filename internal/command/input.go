package command

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/nerrad567/clage-homeserver/internal/homeserver"
)

// Temperature bounds in °C. Resolved values are clamped, never rejected.
const (
	MinTemperature     = 10
	MaxTemperature     = 60
	DefaultTemperature = 32
)

// InputKind tags how a TemperatureInput is resolved.
type InputKind int

const (
	// KindDefault is the zero value: no temperature was given, so
	// DefaultTemperature applies.
	KindDefault InputKind = iota
	// KindLiteral is a number given directly.
	KindLiteral
	// KindNumeric is a numeric string, parsed at resolution.
	KindNumeric
	// KindReference names a sensor entity whose current value is used.
	KindReference
)

func (k InputKind) String() string {
	switch k {
	case KindDefault:
		return "default"
	case KindLiteral:
		return "literal"
	case KindNumeric:
		return "numeric"
	case KindReference:
		return "reference"
	default:
		return "unknown"
	}
}

// entityIDRegex matches "<domain>.<object>" entity ids.
var entityIDRegex = regexp.MustCompile(`^[a-z0-9]+(?:_[a-z0-9]+)*\.[a-z0-9]+(?:_[a-z0-9]+)*$`)

// TemperatureInput is a temperature as the caller supplied it.
type TemperatureInput struct {
	kind    InputKind
	literal int
	text    string
}

// Literal returns an input holding v.
func Literal(v int) TemperatureInput {
	return TemperatureInput{kind: KindLiteral, literal: v}
}

// Numeric returns an input holding a numeric string.
func Numeric(s string) TemperatureInput {
	return TemperatureInput{kind: KindNumeric, text: strings.TrimSpace(s)}
}

// Reference returns an input resolved from the live value of entityID.
func Reference(entityID string) TemperatureInput {
	return TemperatureInput{kind: KindReference, text: strings.TrimSpace(entityID)}
}

// Kind returns how the input is resolved.
func (in TemperatureInput) Kind() InputKind { return in.kind }

// String renders the input for logs and results.
func (in TemperatureInput) String() string {
	switch in.kind {
	case KindDefault:
		return strconv.Itoa(DefaultTemperature)
	case KindLiteral:
		return strconv.Itoa(in.literal)
	default:
		return in.text
	}
}

// ParseTemperatureInput classifies a decoded JSON (or MQTT) value.
//
// nil yields the zero input, which resolves to DefaultTemperature. Numbers become literals, rounded to the
// nearest integer. Strings become numeric inputs when they parse as a
// number, references when they look like an entity id, and are rejected
// otherwise.
func ParseTemperatureInput(v any) (TemperatureInput, error) {
	switch val := v.(type) {
	case nil:
		return TemperatureInput{}, nil
	case int:
		return Literal(val), nil
	case int64:
		return Literal(int(val)), nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return TemperatureInput{}, fmt.Errorf("%w: %v", ErrInvalidCommandValue, val)
		}
		return Literal(roundTemperature(val)), nil
	case json.Number:
		return Numeric(val.String()), nil
	case string:
		s := strings.TrimSpace(val)
		if _, err := strconv.ParseFloat(s, 64); err == nil {
			return Numeric(s), nil
		}
		if entityIDRegex.MatchString(strings.ToLower(s)) {
			return Reference(s), nil
		}
		return TemperatureInput{}, fmt.Errorf("%w: %q is neither a number nor an entity id", ErrInvalidCommandValue, val)
	default:
		return TemperatureInput{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidCommandValue, v)
	}
}

// StateReader looks up the live value of a sensor entity.
type StateReader interface {
	EntityValue(entityID string) (any, bool)
}

// Resolve turns the input into whole °C, before clamping.
//
// References are read through states at call time; a missing entity or a
// non-numeric value yields ErrInvalidCommandValue.
func (in TemperatureInput) Resolve(states StateReader) (int, error) {
	switch in.kind {
	case KindDefault:
		return DefaultTemperature, nil
	case KindLiteral:
		return in.literal, nil
	case KindNumeric:
		f, err := strconv.ParseFloat(in.text, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("%w: %q", ErrInvalidCommandValue, in.text)
		}
		return roundTemperature(f), nil
	case KindReference:
		if states == nil {
			return 0, fmt.Errorf("%w: cannot resolve %s", ErrInvalidCommandValue, in.text)
		}
		v, ok := states.EntityValue(in.text)
		if !ok {
			return 0, fmt.Errorf("%w: entity %s has no value", ErrInvalidCommandValue, in.text)
		}
		f, ok := homeserver.ToFloat(v)
		if !ok || math.IsNaN(f) {
			return 0, fmt.Errorf("%w: entity %s value %v is not numeric", ErrInvalidCommandValue, in.text, v)
		}
		return roundTemperature(f), nil
	default:
		return 0, fmt.Errorf("%w: unknown input kind", ErrInvalidCommandValue)
	}
}

// requestLimit bounds a requested value before it is converted to int, so
// out-of-range floats still clamp to the nearest bound.
const requestLimit = 1_000_000

// roundTemperature rounds f to whole °C, saturating at ±requestLimit.
func roundTemperature(f float64) int {
	return int(math.Round(max(-requestLimit, min(requestLimit, f))))
}

// Clamp limits v to [MinTemperature, MaxTemperature].
func Clamp(v int) int {
	return max(MinTemperature, min(MaxTemperature, v))
}

// Command is one set_temperature request.
type Command struct {
	// DeviceID targets one device. Empty broadcasts to all.
	DeviceID    string
	Temperature TemperatureInput
}

// commandJSON is the wire form accepted by the API and MQTT.
type commandJSON struct {
	DeviceID    string `json:"device_id,omitempty"`
	Temperature any    `json:"temperature,omitempty"`
}

// UnmarshalJSON decodes {"device_id": "...", "temperature": ...}. Field type
// errors wrap ErrInvalidCommandValue; malformed JSON is rejected by
// encoding/json as a *json.SyntaxError before this runs.
func (c *Command) UnmarshalJSON(data []byte) error {
	var raw commandJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCommandValue, err)
	}
	in, err := ParseTemperatureInput(raw.Temperature)
	if err != nil {
		return err
	}
	c.DeviceID = strings.TrimSpace(raw.DeviceID)
	c.Temperature = in
	return nil
}

// MarshalJSON encodes the command in its wire form.
func (c Command) MarshalJSON() ([]byte, error) {
	var temp any
	switch c.Temperature.kind {
	case KindDefault:
	case KindLiteral:
		temp = c.Temperature.literal
	default:
		temp = c.Temperature.String()
	}
	return json.Marshal(commandJSON{DeviceID: c.DeviceID, Temperature: temp})
}
