package command

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/clage-homeserver/internal/coordinator"
	"github.com/nerrad567/clage-homeserver/internal/homeserver"
)

// Logger defines the logging interface used by the Dispatcher.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Devices is the view of the registry the dispatcher needs.
// *device.Registry satisfies it.
type Devices interface {
	IDs() []string
	Has(id string) bool
	Client(id string) (homeserver.Client, error)
}

// Refresher runs an out-of-band refresh. *coordinator.Coordinator satisfies it.
type Refresher interface {
	Refresh(ctx context.Context) (coordinator.Summary, error)
}

// Failure is one device that did not accept the setpoint.
type Failure struct {
	DeviceID string `json:"device_id"`
	Error    string `json:"error"`
}

// Result describes one dispatched command.
type Result struct {
	CommandID string `json:"command_id"`

	// DeviceID is the requested target, empty for a broadcast.
	DeviceID string `json:"device_id,omitempty"`

	// Requested is the resolved value before clamping.
	Requested int `json:"requested"`

	// Temperature is the value sent to the devices.
	Temperature int `json:"temperature"`

	Targets  []string  `json:"targets"`
	Failures []Failure `json:"failures,omitempty"`

	// Source and Caller come from the Origin on the command's context.
	Source string `json:"source,omitempty"`
	Caller string `json:"caller,omitempty"`

	IssuedAt time.Time `json:"issued_at"`
}

// OK reports whether every target accepted the setpoint.
func (r Result) OK() bool {
	return len(r.Targets) > 0 && len(r.Failures) == 0
}

// ResultListener observes every SetTemperature outcome, including rejected
// commands. err is the error SetTemperature returned.
type ResultListener func(ctx context.Context, res Result, err error)

// Dispatcher validates set_temperature commands and applies them.
type Dispatcher struct {
	devices   Devices
	refresher Refresher
	states    StateReader
	timeout   time.Duration
	logger    Logger

	listenersMu sync.RWMutex
	listeners   []ResultListener
}

// NewDispatcher creates a dispatcher.
//
// Parameters:
//   - devices: Registered devices and their clients
//   - refresher: Refreshed after every dispatch that reached a device
//   - states: Resolves reference inputs; may be nil if references are unused
func NewDispatcher(devices Devices, refresher Refresher, states StateReader) *Dispatcher {
	return &Dispatcher{
		devices:   devices,
		refresher: refresher,
		states:    states,
		timeout:   homeserver.DefaultTimeout,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// AddListener registers l for every subsequent command outcome.
func (d *Dispatcher) AddListener(l ResultListener) {
	d.listenersMu.Lock()
	d.listeners = append(d.listeners, l)
	d.listenersMu.Unlock()
}

// SetRequestTimeout bounds each set-temperature request.
func (d *Dispatcher) SetRequestTimeout(timeout time.Duration) {
	if timeout > 0 {
		d.timeout = timeout
	}
}

// SetTemperature applies cmd.
//
// Order of checks: an unknown target returns ErrUnknownDevice, then an
// unresolvable temperature returns ErrInvalidCommandValue; in both cases no
// device is called and no refresh runs. The resolved value is clamped to
// [10, 60]. A broadcast calls every registered device, recording failures
// in Result.Failures without stopping. After any device call a refresh is
// triggered.
//
// Returns:
//   - Result: Always carries a CommandID
//   - error: ErrUnknownDevice, ErrInvalidCommandValue, or for a targeted
//     command the device error; broadcast failures are only in the Result
func (d *Dispatcher) SetTemperature(ctx context.Context, cmd Command) (Result, error) {
	res, err := d.setTemperature(ctx, cmd)
	d.notify(ctx, res, err)
	return res, err
}

func (d *Dispatcher) setTemperature(ctx context.Context, cmd Command) (Result, error) {
	origin := OriginFrom(ctx)
	res := Result{
		CommandID: uuid.NewString(),
		DeviceID:  cmd.DeviceID,
		Source:    origin.Source,
		Caller:    origin.Caller,
		IssuedAt:  time.Now().UTC(),
		Targets:   []string{},
	}

	if cmd.DeviceID != "" && !d.devices.Has(cmd.DeviceID) {
		d.logger.Error("heater not found", "device_id", cmd.DeviceID, "command_id", res.CommandID)
		return res, fmt.Errorf("%w: %s", ErrUnknownDevice, cmd.DeviceID)
	}

	requested, err := cmd.Temperature.Resolve(d.states)
	if err != nil {
		d.logger.Warn("rejected set_temperature", "input", cmd.Temperature.String(), "error", err)
		return res, err
	}
	res.Requested = requested
	res.Temperature = Clamp(requested)

	if cmd.DeviceID != "" {
		res.Targets = []string{cmd.DeviceID}
	} else {
		res.Targets = d.devices.IDs()
	}

	var targetErr error
	for _, id := range res.Targets {
		if err := d.send(ctx, id, res.Temperature); err != nil {
			d.logger.Warn("set_temperature failed",
				"device_id", id,
				"temperature", res.Temperature,
				"command_id", res.CommandID,
				"error", err,
			)
			res.Failures = append(res.Failures, Failure{DeviceID: id, Error: err.Error()})
			targetErr = err
		}
	}

	d.logger.Info("set_temperature dispatched",
		"command_id", res.CommandID,
		"temperature", res.Temperature,
		"requested", res.Requested,
		"targets", len(res.Targets),
		"failures", len(res.Failures),
	)

	if len(res.Targets) > 0 && d.refresher != nil {
		if _, err := d.refresher.Refresh(coordinator.WithTrigger(ctx, coordinator.TriggerCommand)); err != nil {
			d.logger.Warn("refresh after set_temperature failed", "command_id", res.CommandID, "error", err)
		}
	}

	if cmd.DeviceID != "" && targetErr != nil {
		return res, fmt.Errorf("set_temperature on %s: %w", cmd.DeviceID, targetErr)
	}
	return res, nil
}

func (d *Dispatcher) notify(ctx context.Context, res Result, err error) {
	d.listenersMu.RLock()
	listeners := slices.Clone(d.listeners)
	d.listenersMu.RUnlock()

	for _, l := range listeners {
		l(ctx, res, err)
	}
}

func (d *Dispatcher) send(ctx context.Context, id string, celsius int) error {
	client, err := d.devices.Client(id)
	if err != nil {
		return err
	}

	reqCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return client.SetTemperature(reqCtx, celsius)
}
