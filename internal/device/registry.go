package device

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/nerrad567/clage-homeserver/internal/homeserver"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ClientFactory builds the device client for a registered device.
type ClientFactory func(Device) (homeserver.Client, error)

// Registry is the set of devices the service polls and commands, each
// paired with its client.
//
// All public methods are thread-safe. Clients returned by Client never run
// two requests against the same device at once.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	logger  Logger
}

type entry struct {
	device Device
	client *serialClient
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.mu.Lock()
	r.logger = logger
	r.mu.Unlock()
}

// Add registers a device with its client.
//
// Parameters:
//   - d: Device to register; validated with ValidateDevice
//   - client: Client used for every request to the device
//
// Returns:
//   - error: ErrDeviceExists if the ID is taken, a validation error otherwise
func (r *Registry) Add(d Device, client homeserver.Client) error {
	if err := ValidateDevice(d); err != nil {
		return err
	}
	if client == nil {
		return fmt.Errorf("%w: client is required", ErrInvalidDevice)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[d.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDeviceExists, d.ID)
	}
	r.entries[d.ID] = &entry{device: d, client: newSerialClient(client)}
	r.logger.Info("device registered", "device_id", d.ID, "address", d.Address, "source", d.Source)
	return nil
}

// Remove unregisters a device. An unknown id returns ErrDeviceNotFound and
// changes nothing.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	delete(r.entries, id)
	r.logger.Info("device removed", "device_id", id)
	return nil
}

// Get returns the device registered under id.
func (r *Registry) Get(id string) (Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return e.device, nil
}

// Client returns the serialised client of device id.
func (r *Registry) Client(id string) (homeserver.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return e.client, nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[id]
	return ok
}

// List returns all devices ordered by ID.
func (r *Registry) List() []Device {
	r.mu.RLock()
	devices := make([]Device, 0, len(r.entries))
	for _, e := range r.entries {
		devices = append(devices, e.device)
	}
	r.mu.RUnlock()

	slices.SortFunc(devices, func(a, b Device) int { return cmp.Compare(a.ID, b.ID) })
	return devices
}

// IDs returns all device IDs in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// serialClient admits one request at a time to the wrapped client.
// Waiting for the slot honours ctx.
type serialClient struct {
	sem  chan struct{}
	next homeserver.Client
}

func newSerialClient(c homeserver.Client) *serialClient {
	return &serialClient{sem: make(chan struct{}, 1), next: c}
}

func (s *serialClient) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: waiting for device: %w", homeserver.ErrConnection, ctx.Err())
	}
}

func (s *serialClient) release() { <-s.sem }

func (s *serialClient) RequestStatus(ctx context.Context) (homeserver.Snapshot, error) {
	if err := s.acquire(ctx); err != nil {
		return homeserver.Snapshot{}, err
	}
	defer s.release()
	return s.next.RequestStatus(ctx)
}

func (s *serialClient) SetTemperature(ctx context.Context, celsius int) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	return s.next.SetTemperature(ctx, celsius)
}
