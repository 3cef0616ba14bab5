package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/clage-homeserver/internal/command"
	"github.com/nerrad567/clage-homeserver/internal/coordinator"
	"github.com/nerrad567/clage-homeserver/internal/homeserver"
	"github.com/nerrad567/clage-homeserver/internal/infrastructure/mqtt"
)

// defaultCommandTimeout bounds a command received over MQTT, including the
// refresh that follows it.
const defaultCommandTimeout = 30 * time.Second

// CommandFunc applies a set_temperature command.
// (*command.Dispatcher).SetTemperature satisfies it.
type CommandFunc func(ctx context.Context, cmd command.Command) (command.Result, error)

// BridgeConfig holds configuration for the MQTT bridge.
type BridgeConfig struct {
	// Publisher is the MQTT client for publishing messages.
	Publisher Publisher

	// Devices lists the devices to announce and report availability for.
	Devices DeviceLister

	// Health reports per-device polling health.
	Health HealthSource

	// Topics builds topic names; the zero value uses the defaults.
	Topics mqtt.Topics

	// QoS for every publish. Default: 1.
	QoS byte

	// Discovery enables Home Assistant discovery configs.
	Discovery bool
}

// Bridge presents the coordinator's state on MQTT and accepts commands.
//
// State is published retained on every stored update, availability after
// every refresh, and discovery configs whenever the registered set of
// devices changes.
type Bridge struct {
	pub       Publisher
	devices   DeviceLister
	health    HealthSource
	topics    mqtt.Topics
	qos       byte
	discovery bool

	announcedMu sync.Mutex
	announced   map[string]bool

	logger   Logger
	loggerMu sync.RWMutex
}

// NewBridge creates an MQTT bridge.
func NewBridge(cfg BridgeConfig) *Bridge {
	qos := cfg.QoS
	if qos == 0 {
		qos = 1
	}
	return &Bridge{
		pub:       cfg.Publisher,
		devices:   cfg.Devices,
		health:    cfg.Health,
		topics:    cfg.Topics,
		qos:       qos,
		discovery: cfg.Discovery,
		announced: make(map[string]bool),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

func (b *Bridge) log() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

// HandleConnect republishes discovery and availability. Register it with
// the MQTT client's SetOnConnect so a broker restart loses nothing.
func (b *Bridge) HandleConnect() {
	b.announcedMu.Lock()
	clear(b.announced)
	b.announcedMu.Unlock()

	if err := b.SyncDiscovery(); err != nil {
		b.log().Warn("publishing discovery failed", "error", err)
	}
	b.publishAvailability()
}

// HandleUpdate publishes the snapshot of u as the device's retained state.
func (b *Bridge) HandleUpdate(_ context.Context, u coordinator.Update) {
	if !b.connected() {
		return
	}
	payload, err := json.Marshal(u.Snapshot.Fields)
	if err != nil {
		b.log().Error("encoding state failed", "device_id", u.DeviceID, "error", err)
		return
	}
	if err := b.pub.Publish(b.topics.State(u.DeviceID), payload, b.qos, true); err != nil {
		b.log().Warn("publishing state failed", "device_id", u.DeviceID, "error", err)
	}
}

// HandleRefresh brings discovery in line with the registry and publishes
// the availability of every device.
func (b *Bridge) HandleRefresh(_ context.Context, _ coordinator.Summary) {
	if !b.connected() {
		return
	}
	if err := b.SyncDiscovery(); err != nil {
		b.log().Warn("publishing discovery failed", "error", err)
	}
	b.publishAvailability()
}

// SyncDiscovery announces devices not yet announced and clears the configs
// of devices no longer registered. A no-op when discovery is disabled.
func (b *Bridge) SyncDiscovery() error {
	if !b.discovery || !b.connected() {
		return nil
	}

	b.announcedMu.Lock()
	defer b.announcedMu.Unlock()

	current := make(map[string]bool)
	var errs []error
	for _, d := range b.devices.List() {
		current[d.ID] = true
		if b.announced[d.ID] {
			continue
		}
		msgs, err := buildDiscovery(b.topics, d)
		if err != nil {
			errs = append(errs, fmt.Errorf("building discovery for %s: %w", d.ID, err))
			continue
		}
		if err := b.publishAll(msgs); err != nil {
			errs = append(errs, fmt.Errorf("announcing %s: %w", d.ID, err))
			continue
		}
		b.announced[d.ID] = true
		b.log().Info("announced homeserver", "device_id", d.ID, "sensors", len(msgs))
	}

	for id := range b.announced {
		if current[id] {
			continue
		}
		if err := b.withdraw(id); err != nil {
			errs = append(errs, fmt.Errorf("withdrawing %s: %w", id, err))
			continue
		}
		delete(b.announced, id)
		b.log().Info("withdrew homeserver", "device_id", id)
	}
	return errors.Join(errs...)
}

func (b *Bridge) publishAll(msgs []discoveryMessage) error {
	for _, m := range msgs {
		if err := b.pub.Publish(m.topic, m.payload, b.qos, true); err != nil {
			return err
		}
	}
	return nil
}

// withdraw clears every retained topic of a removed device. An empty
// retained payload deletes the retained message on the broker.
func (b *Bridge) withdraw(id string) error {
	if err := b.pub.Publish(b.topics.Availability(id), []byte(mqtt.PayloadOffline), b.qos, true); err != nil {
		return err
	}
	if err := b.pub.Publish(b.topics.State(id), nil, b.qos, true); err != nil {
		return err
	}
	for _, s := range homeserver.Sensors() {
		if err := b.pub.Publish(b.topics.Discovery(discoveryComponent, id, s.Key), nil, b.qos, true); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bridge) publishAvailability() {
	if !b.connected() {
		return
	}
	for _, d := range b.devices.List() {
		payload := mqtt.PayloadOffline
		if h, ok := b.health.Health(d.ID); ok && h.Available() {
			payload = mqtt.PayloadOnline
		}
		if err := b.pub.Publish(b.topics.Availability(d.ID), []byte(payload), b.qos, true); err != nil {
			b.log().Warn("publishing availability failed", "device_id", d.ID, "error", err)
		}
	}
}

// commandResult is the payload published for every command outcome.
type commandResult struct {
	command.Result
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// HandleResult publishes the outcome of a command on its result topic.
// Register it with command.Dispatcher.AddListener.
func (b *Bridge) HandleResult(_ context.Context, res command.Result, err error) {
	if !b.connected() {
		return
	}
	msg := commandResult{Result: res, OK: err == nil && res.OK()}
	if err != nil {
		msg.Error = err.Error()
	}
	payload, mErr := json.Marshal(msg)
	if mErr != nil {
		b.log().Error("encoding command result failed", "command_id", res.CommandID, "error", mErr)
		return
	}
	if pErr := b.pub.Publish(b.topics.CommandResult(res.CommandID), payload, b.qos, false); pErr != nil {
		b.log().Warn("publishing command result failed", "command_id", res.CommandID, "error", pErr)
	}
}

// SubscribeCommands routes set_temperature messages to apply.
func (b *Bridge) SubscribeCommands(sub Subscriber, apply CommandFunc) error {
	return sub.Subscribe(b.topics.SetTemperatureCommand(), b.qos, b.commandHandler(apply))
}

func (b *Bridge) commandHandler(apply CommandFunc) mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		var cmd command.Command
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return fmt.Errorf("decoding %s: %w", topic, err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), defaultCommandTimeout)
		defer cancel()
		ctx = command.WithOrigin(ctx, command.Origin{Source: command.SourceMQTT})

		// The outcome reaches MQTT through HandleResult.
		if _, err := apply(ctx, cmd); err != nil {
			b.log().Debug("mqtt set_temperature rejected", "error", err)
		}
		return nil
	}
}

func (b *Bridge) connected() bool {
	return b.pub != nil && b.pub.IsConnected()
}
