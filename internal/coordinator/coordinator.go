package coordinator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/clage-homeserver/internal/homeserver"
	"github.com/nerrad567/clage-homeserver/internal/infrastructure/config"
)

// Logger defines the logging interface used by the Coordinator.
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

// Devices is the view of the registry the coordinator polls.
// *device.Registry satisfies it.
type Devices interface {
	IDs() []string
	Client(id string) (homeserver.Client, error)
}

// Config tunes the coordinator. Zero values select defaults.
type Config struct {
	// Interval between scheduled refreshes, see EffectiveInterval.
	Interval time.Duration

	// RequestTimeout bounds each status request.
	RequestTimeout time.Duration

	// MaxParallel bounds concurrent status requests in one refresh.
	MaxParallel int
}

const (
	defaultRequestTimeout = homeserver.DefaultTimeout
	defaultMaxParallel    = 4
)

// EffectiveInterval maps a configured scan interval to the one used:
// zero selects 20s and anything under 10s is raised to 10s.
func EffectiveInterval(d time.Duration) time.Duration {
	return config.ClampScanInterval(d)
}

// Health is the polling record of one device.
type Health struct {
	LastAttempt         time.Time `json:"last_attempt"`
	LastSuccess         time.Time `json:"last_success,omitzero"`
	LastError           string    `json:"last_error,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}

// Available reports whether the most recent poll succeeded.
func (h Health) Available() bool {
	return !h.LastSuccess.IsZero() && h.ConsecutiveFailures == 0
}

// Update is delivered to listeners for every snapshot stored.
type Update struct {
	DeviceID string
	Snapshot homeserver.Snapshot
	Trigger  Trigger
	At       time.Time
}

// Listener receives updates after they are stored. Listeners run on the
// refresh goroutine and must not block.
type Listener func(ctx context.Context, u Update)

// RefreshListener is called once at the end of every refresh, after the
// update listeners.
type RefreshListener func(ctx context.Context, s Summary)

// Summary counts the outcome of one refresh.
type Summary struct {
	Polled    int       `json:"polled"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	At        time.Time `json:"at"`
}

// Coordinator polls every registered device on a fixed interval and keeps
// the Store current.
//
// A device failure only affects that device: it is logged, counted in its
// Health, and its previous snapshot stays in the Store.
type Coordinator struct {
	devices  Devices
	store    *Store
	interval time.Duration
	timeout  time.Duration
	parallel int

	// refreshSem admits one refresh at a time; callers queue on it.
	refreshSem chan struct{}
	refreshed  atomic.Bool

	healthMu sync.RWMutex
	health   map[string]Health

	listenersMu      sync.RWMutex
	listeners        []Listener
	refreshListeners []RefreshListener

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a coordinator over devices. Call Start to begin polling.
func New(devices Devices, cfg Config) *Coordinator {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	parallel := cfg.MaxParallel
	if parallel <= 0 {
		parallel = defaultMaxParallel
	}

	return &Coordinator{
		devices:    devices,
		store:      newStore(),
		interval:   EffectiveInterval(cfg.Interval),
		timeout:    timeout,
		parallel:   parallel,
		refreshSem: make(chan struct{}, 1),
		health:     make(map[string]Health),
		done:       make(chan struct{}),
		logger:     noopLogger{},
	}
}

// Store returns the read side of the coordinator's state.
func (c *Coordinator) Store() *Store {
	return c.store
}

// Ready reports whether at least one refresh has completed.
func (c *Coordinator) Ready() bool {
	return c.refreshed.Load()
}

// Interval returns the effective refresh interval.
func (c *Coordinator) Interval() time.Duration {
	return c.interval
}

// SetLogger sets the logger for the coordinator.
func (c *Coordinator) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Coordinator) log() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// AddListener registers l for every subsequent stored update.
func (c *Coordinator) AddListener(l Listener) {
	c.listenersMu.Lock()
	c.listeners = append(c.listeners, l)
	c.listenersMu.Unlock()
}

// AddRefreshListener registers l for the end of every subsequent refresh.
func (c *Coordinator) AddRefreshListener(l RefreshListener) {
	c.listenersMu.Lock()
	c.refreshListeners = append(c.refreshListeners, l)
	c.listenersMu.Unlock()
}

// Health returns the polling record of deviceID.
func (c *Coordinator) Health(deviceID string) (Health, bool) {
	c.healthMu.RLock()
	defer c.healthMu.RUnlock()
	h, ok := c.health[deviceID]
	return h, ok
}

// Start performs the first refresh, then refreshes every Interval until
// ctx is cancelled or Stop is called. When Start returns the Store holds
// the result of the first refresh. Calls after the first are no-ops.
func (c *Coordinator) Start(ctx context.Context) error {
	var err error
	c.startOnce.Do(func() {
		if _, err = c.Refresh(WithTrigger(ctx, TriggerPoll)); err != nil {
			return
		}
		c.log().Info("poll coordinator ready",
			"devices", c.store.Len(),
			"interval", c.interval,
		)

		c.wg.Add(1)
		go c.loop(ctx)
	})
	return err
}

// Stop ends scheduled refreshes and waits for the loop to exit.
// Safe to call multiple times.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		c.wg.Wait()
	})
}

func (c *Coordinator) loop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			if _, err := c.Refresh(WithTrigger(ctx, TriggerPoll)); err != nil {
				c.log().Debug("scheduled refresh skipped", "error", err)
			}
		}
	}
}

// Refresh polls every registered device once and stores the successes.
//
// Only one refresh runs at a time; a caller arriving during a refresh waits
// for it and then runs its own. Device failures never surface here.
//
// Returns:
//   - Summary: Counts of polled, succeeded and failed devices. Devices
//     removed before the refresh finished are not counted.
//   - error: Only ctx.Err() when ctx ends before the refresh could start
func (c *Coordinator) Refresh(ctx context.Context) (Summary, error) {
	select {
	case c.refreshSem <- struct{}{}:
	case <-ctx.Done():
		return Summary{}, fmt.Errorf("waiting for refresh: %w", ctx.Err())
	}
	defer func() { <-c.refreshSem }()

	ids := c.devices.IDs()
	c.pruneRemoved(ids)

	results := make([]*Update, len(ids))
	var g errgroup.Group
	g.SetLimit(c.parallel)
	for i, id := range ids {
		g.Go(func() error {
			results[i] = c.pollOne(ctx, id)
			return nil
		})
	}
	g.Wait() //nolint:errcheck // pollOne never returns an error

	// A device removed while its request was in flight must not linger,
	// and its update is not delivered.
	current := c.devices.IDs()
	c.pruneRemoved(current)

	summary := Summary{At: time.Now().UTC()}
	trigger := TriggerFrom(ctx)
	for i, u := range results {
		if !slices.Contains(current, ids[i]) {
			continue
		}
		summary.Polled++
		if u == nil {
			summary.Failed++
			continue
		}
		summary.Succeeded++
		u.Trigger = trigger
		c.notify(ctx, *u)
	}

	c.refreshed.Store(true)

	c.log().Debug("refresh complete",
		"polled", summary.Polled,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"trigger", trigger,
	)

	c.listenersMu.RLock()
	done := slices.Clone(c.refreshListeners)
	c.listenersMu.RUnlock()
	for _, l := range done {
		l(ctx, summary)
	}
	return summary, nil
}

// pollOne fetches one device and returns the stored update, or nil on failure.
func (c *Coordinator) pollOne(ctx context.Context, id string) *Update {
	client, err := c.devices.Client(id)
	if err != nil {
		return nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now().UTC()
	snap, err := client.RequestStatus(reqCtx)
	if err == nil && !snap.Success {
		err = fmt.Errorf("%w: success flag is false", homeserver.ErrDeviceReportedFailure)
	}
	if err != nil {
		failures := c.recordFailure(id, started, err)
		c.log().Warn("unable to fetch state",
			"device_id", id,
			"error", err,
			"connection_error", errors.Is(err, homeserver.ErrConnection),
			"consecutive_failures", failures,
		)
		return nil
	}

	c.store.put(id, snap)
	c.recordSuccess(id, started)
	return &Update{DeviceID: id, Snapshot: snap.Clone(), At: started}
}

func (c *Coordinator) recordSuccess(id string, at time.Time) {
	c.healthMu.Lock()
	c.health[id] = Health{LastAttempt: at, LastSuccess: at}
	c.healthMu.Unlock()
}

func (c *Coordinator) recordFailure(id string, at time.Time, err error) int {
	c.healthMu.Lock()
	defer c.healthMu.Unlock()

	h := c.health[id]
	h.LastAttempt = at
	h.LastError = err.Error()
	h.ConsecutiveFailures++
	c.health[id] = h
	return h.ConsecutiveFailures
}

func (c *Coordinator) pruneRemoved(ids []string) {
	for _, id := range c.store.prune(ids) {
		c.log().Info("dropped state of removed device", "device_id", id)
	}

	c.healthMu.Lock()
	for id := range c.health {
		if !slices.Contains(ids, id) {
			delete(c.health, id)
		}
	}
	c.healthMu.Unlock()
}

func (c *Coordinator) notify(ctx context.Context, u Update) {
	c.listenersMu.RLock()
	listeners := slices.Clone(c.listeners)
	c.listenersMu.RUnlock()

	for _, l := range listeners {
		l(ctx, u)
	}
}
