package setup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/clage-homeserver/internal/coordinator"
	"github.com/nerrad567/clage-homeserver/internal/device"
	"github.com/nerrad567/clage-homeserver/internal/homeserver"
	"github.com/nerrad567/clage-homeserver/internal/infrastructure/config"
)

// Input field names, as used in FlowError.Field.
const (
	FieldName         = "name"
	FieldIPAddress    = "ip_address"
	FieldHomeserverID = "homeserver_id"
	FieldHeaterID     = "heater_id"
)

// Logger defines the logging interface used by the Flow.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Refresher runs an out-of-band refresh. *coordinator.Coordinator satisfies it.
type Refresher interface {
	Refresh(ctx context.Context) (coordinator.Summary, error)
}

// EntryInput is what a user supplies to add a homeserver.
type EntryInput struct {
	Name         string `json:"name"`
	IPAddress    string `json:"ip_address"`
	HomeserverID string `json:"homeserver_id"`
	HeaterID     string `json:"heater_id"`
}

func (in EntryInput) normalised() EntryInput {
	return EntryInput{
		Name:         strings.TrimSpace(in.Name),
		IPAddress:    strings.TrimSpace(in.IPAddress),
		HomeserverID: strings.TrimSpace(in.HomeserverID),
		HeaterID:     strings.TrimSpace(in.HeaterID),
	}
}

// Device returns the device the input describes.
func (in EntryInput) Device(source device.Source) device.Device {
	in = in.normalised()
	return device.Device{
		ID:           device.Slugify(in.Name),
		Name:         in.Name,
		Address:      in.IPAddress,
		HomeserverID: in.HomeserverID,
		HeaterID:     in.HeaterID,
		Source:       source,
	}
}

// Flow adds and removes homeservers at runtime and loads the configured and
// persisted ones at startup.
type Flow struct {
	registry  *device.Registry
	repo      device.Repository
	newClient device.ClientFactory
	refresher Refresher
	timeout   time.Duration
	logger    Logger
}

// NewFlow creates a flow.
//
// Parameters:
//   - registry: Registry devices are added to and removed from
//   - repo: Persistence for runtime entries
//   - newClient: Builds the client used for probing and for the registered device
//   - refresher: Refreshed after an entry is added; may be nil
func NewFlow(registry *device.Registry, repo device.Repository, newClient device.ClientFactory, refresher Refresher) *Flow {
	return &Flow{
		registry:  registry,
		repo:      repo,
		newClient: newClient,
		refresher: refresher,
		timeout:   homeserver.DefaultTimeout,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the flow.
func (f *Flow) SetLogger(logger Logger) {
	f.logger = logger
}

// SetProbeTimeout bounds the status request made by Check.
func (f *Flow) SetProbeTimeout(timeout time.Duration) {
	if timeout > 0 {
		f.timeout = timeout
	}
}

// Check validates input and probes the homeserver it names.
//
// Returns the device that would be registered, or a *FlowError:
//   - invalid_input: a required field is missing or the name has no usable slug
//   - invalid_ip: the address is not an IP, or the reply lacked the heater data
//   - already_configured: the address or the derived ID is taken
//   - could_not_connect: the homeserver did not answer
//   - homeserver_not_active: the homeserver answered with success=false
func (f *Flow) Check(ctx context.Context, input EntryInput) (device.Device, error) {
	d := input.Device(device.SourceEntry)

	if err := f.validate(d); err != nil {
		return d, err
	}
	if err := f.checkUnique(ctx, d); err != nil {
		return d, err
	}

	client, err := f.newClient(d)
	if err != nil {
		return d, flowError(FieldIPAddress, CodeInvalidIP, err)
	}

	probeCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	snap, err := client.RequestStatus(probeCtx)
	switch {
	case err == nil && snap.Success:
		return d, nil
	case errors.Is(err, homeserver.ErrMalformedResponse):
		return d, flowError(FieldIPAddress, CodeInvalidIP, err)
	case errors.Is(err, homeserver.ErrDeviceReportedFailure), err == nil:
		return d, flowError(FieldIPAddress, CodeHomeserverNotActive, err)
	default:
		return d, flowError(FieldIPAddress, CodeCouldNotConnect, err)
	}
}

func (f *Flow) validate(d device.Device) error {
	if d.Name == "" {
		return flowError(FieldName, CodeInvalidInput, nil)
	}
	if err := device.ValidateSlug(d.ID); err != nil {
		return flowError(FieldName, CodeInvalidInput, err)
	}
	if err := device.ValidateAddress(d.Address); err != nil {
		return flowError(FieldIPAddress, CodeInvalidIP, err)
	}
	if d.HomeserverID == "" {
		return flowError(FieldHomeserverID, CodeInvalidInput, nil)
	}
	if d.HeaterID == "" {
		return flowError(FieldHeaterID, CodeInvalidInput, nil)
	}
	if err := device.ValidateDevice(d); err != nil {
		return flowError(FieldName, CodeInvalidInput, err)
	}
	return nil
}

func (f *Flow) checkUnique(ctx context.Context, d device.Device) error {
	for _, existing := range f.registry.List() {
		if existing.Address == d.Address {
			return flowError(FieldIPAddress, CodeAlreadyConfigured, device.ErrAddressExists)
		}
	}
	if f.registry.Has(d.ID) {
		return flowError(FieldName, CodeAlreadyConfigured, device.ErrDeviceExists)
	}

	if _, err := f.repo.GetByAddress(ctx, d.Address); err == nil {
		return flowError(FieldIPAddress, CodeAlreadyConfigured, device.ErrAddressExists)
	} else if !errors.Is(err, device.ErrDeviceNotFound) {
		return fmt.Errorf("checking address: %w", err)
	}
	return nil
}

// AddEntry checks input, persists it and registers the device.
// A refresh follows so the new device has state as soon as possible.
func (f *Flow) AddEntry(ctx context.Context, input EntryInput) (device.Device, error) {
	d, err := f.Check(ctx, input)
	if err != nil {
		return d, err
	}

	client, err := f.newClient(d)
	if err != nil {
		return d, flowError(FieldIPAddress, CodeInvalidIP, err)
	}

	d.CreatedAt = time.Now().UTC()
	if err := f.repo.Create(ctx, d); err != nil {
		if errors.Is(err, device.ErrAddressExists) || errors.Is(err, device.ErrDeviceExists) {
			return d, flowError(FieldIPAddress, CodeAlreadyConfigured, err)
		}
		return d, fmt.Errorf("persisting entry: %w", err)
	}

	if err := f.registry.Add(d, client); err != nil {
		if delErr := f.repo.Delete(ctx, d.ID); delErr != nil {
			f.logger.Error("rolling back entry failed", "device_id", d.ID, "error", delErr)
		}
		return d, fmt.Errorf("registering entry: %w", err)
	}

	f.logger.Info("homeserver added", "device_id", d.ID, "ip_address", d.Address)
	f.refresh(ctx)
	return d, nil
}

// RemoveEntry unregisters a runtime entry and deletes it from storage.
//
// Returns device.ErrDeviceNotFound for an unknown id and ErrConfigManaged
// for a device declared in the config file.
func (f *Flow) RemoveEntry(ctx context.Context, id string) error {
	d, err := f.registry.Get(id)
	if err != nil {
		return err
	}
	if d.Source == device.SourceConfig {
		return fmt.Errorf("%w: %s", ErrConfigManaged, id)
	}

	if err := f.repo.Delete(ctx, id); err != nil && !errors.Is(err, device.ErrDeviceNotFound) {
		return fmt.Errorf("deleting entry: %w", err)
	}
	if err := f.registry.Remove(id); err != nil {
		return err
	}

	f.logger.Info("homeserver removed", "device_id", id)
	return nil
}

// LoadConfigured registers every device declared in the config file.
// A device that fails to register is logged and skipped.
func (f *Flow) LoadConfigured(devices []config.DeviceConfig) int {
	loaded := 0
	for _, dc := range devices {
		d := EntryInput{
			Name:         dc.Name,
			IPAddress:    dc.IPAddress,
			HomeserverID: dc.HomeserverID,
			HeaterID:     dc.HeaterID,
		}.Device(device.SourceConfig)

		if err := f.register(d); err != nil {
			f.logger.Error("skipping configured homeserver", "name", dc.Name, "error", err)
			continue
		}
		loaded++
	}
	return loaded
}

// RestoreEntries registers every persisted runtime entry. Entries that clash
// with a configured device are logged and skipped.
func (f *Flow) RestoreEntries(ctx context.Context) (int, error) {
	entries, err := f.repo.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing entries: %w", err)
	}

	restored := 0
	for _, d := range entries {
		if err := f.register(d); err != nil {
			f.logger.Warn("skipping stored homeserver", "device_id", d.ID, "error", err)
			continue
		}
		restored++
	}
	return restored, nil
}

func (f *Flow) register(d device.Device) error {
	client, err := f.newClient(d)
	if err != nil {
		return err
	}
	return f.registry.Add(d, client)
}

func (f *Flow) refresh(ctx context.Context) {
	if f.refresher == nil {
		return
	}
	if _, err := f.refresher.Refresh(coordinator.WithTrigger(ctx, coordinator.TriggerManual)); err != nil {
		f.logger.Warn("refresh after adding homeserver failed", "error", err)
	}
}
