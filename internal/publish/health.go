package publish

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/clage-homeserver/internal/infrastructure/mqtt"
)

// Service health states.
const (
	HealthStarting = "starting"
	HealthHealthy  = "healthy"
	HealthDegraded = "degraded"
	HealthStopping = "stopping"
)

// HealthMessage is the payload published on the system health topic.
type HealthMessage struct {
	Status           string    `json:"status"`
	Reason           string    `json:"reason,omitempty"`
	Version          string    `json:"version"`
	UptimeSeconds    int64     `json:"uptime_seconds"`
	Devices          int       `json:"devices"`
	DevicesAvailable int       `json:"devices_available"`
	Timestamp        time.Time `json:"timestamp"`
}

// HealthReporter manages periodic health status reporting.
// It publishes a HealthMessage to MQTT at regular intervals.
type HealthReporter struct {
	version   string
	startTime time.Time
	interval  time.Duration
	publisher Publisher
	devices   DeviceLister
	health    HealthSource
	topics    mqtt.Topics

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	// Version is the service software version.
	Version string

	// Interval is how often to publish health status.
	// Default: 30 seconds.
	Interval time.Duration

	// Publisher is the MQTT client for publishing messages.
	Publisher Publisher

	// Devices and Health provide the device counts.
	Devices DeviceLister
	Health  HealthSource

	Topics mqtt.Topics
}

// NewHealthReporter creates a new health reporter.
//
// Parameters:
//   - cfg: Configuration for the health reporter
//
// Returns:
//   - *HealthReporter: Ready to start (call Start to begin reporting)
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval == 0 {
		interval = 30 * time.Second
	}

	return &HealthReporter{
		version:   cfg.Version,
		startTime: time.Now(),
		interval:  interval,
		publisher: cfg.Publisher,
		devices:   cfg.Devices,
		health:    cfg.Health,
		topics:    cfg.Topics,
		done:      make(chan struct{}),
		logger:    noopLogger{},
	}
}

// Start begins periodic health reporting. Call Stop to shut down.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // Best-effort during shutdown, nothing we can do if it fails
		h.publishStatus(HealthStopping, "")
	})
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "service starting")
}

// PublishNow publishes the current health status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish initial health", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

func (h *HealthReporter) counts() (total, available int) {
	if h.devices == nil {
		return 0, 0
	}
	for _, d := range h.devices.List() {
		total++
		if h.health == nil {
			continue
		}
		if hl, ok := h.health.Health(d.ID); ok && hl.Available() {
			available++
		}
	}
	return total, available
}

// determineStatus is degraded while any registered device is unavailable.
func (h *HealthReporter) determineStatus() (string, string) {
	total, available := h.counts()
	if available < total {
		return HealthDegraded, "homeserver unavailable"
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) publishStatus(status, reason string) error {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return nil
	}

	total, available := h.counts()
	msg := HealthMessage{
		Status:           status,
		Reason:           reason,
		Version:          h.version,
		UptimeSeconds:    int64(time.Since(h.startTime).Seconds()),
		Devices:          total,
		DevicesAvailable: available,
		Timestamp:        time.Now().UTC(),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	// QoS 1, retained
	return h.publisher.Publish(h.topics.SystemHealth(), payload, 1, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	logger.Error(msg, "error", err)
}
