package publish

import (
	"context"

	"github.com/nerrad567/clage-homeserver/internal/coordinator"
	"github.com/nerrad567/clage-homeserver/internal/device"
	"github.com/nerrad567/clage-homeserver/internal/infrastructure/mqtt"
)

// Logger defines the logging interface used by the sinks in this package.
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

// Publisher is the interface for publishing MQTT messages.
// This is typically implemented by *mqtt.Client.
type Publisher interface {
	// Publish sends a message to a topic with the specified QoS and retention.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// IsConnected returns true if the publisher is connected.
	IsConnected() bool
}

// Subscriber registers MQTT message handlers. *mqtt.Client satisfies it.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// DeviceLister lists registered devices. *device.Registry satisfies it.
type DeviceLister interface {
	List() []device.Device
}

// HealthSource reports per-device polling health.
// *coordinator.Coordinator satisfies it.
type HealthSource interface {
	Health(deviceID string) (coordinator.Health, bool)
}

// UpdateSink consumes stored snapshots; the sinks in this package implement it
// and are registered with coordinator.AddListener(sink.HandleUpdate).
type UpdateSink interface {
	HandleUpdate(ctx context.Context, u coordinator.Update)
}

var (
	_ UpdateSink = (*Bridge)(nil)
	_ UpdateSink = (*TelemetrySink)(nil)
	_ UpdateSink = (*HistorySink)(nil)
)
