package publish

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/clage-homeserver/internal/coordinator"
	"github.com/nerrad567/clage-homeserver/internal/device"
)

// defaultPruneInterval is how often expired history is deleted.
const defaultPruneInterval = time.Hour

// HistorySink stores every snapshot in the state history and prunes
// entries older than the retention.
type HistorySink struct {
	repo      device.StateHistoryRepository
	retention time.Duration
	interval  time.Duration

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger Logger
}

// NewHistorySink creates a history sink. A zero retention keeps history forever.
func NewHistorySink(repo device.StateHistoryRepository, retention time.Duration) *HistorySink {
	return &HistorySink{
		repo:      repo,
		retention: retention,
		interval:  defaultPruneInterval,
		done:      make(chan struct{}),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the sink.
func (h *HistorySink) SetLogger(logger Logger) {
	h.logger = logger
}

// HandleUpdate records u with the trigger that produced it as its source.
func (h *HistorySink) HandleUpdate(ctx context.Context, u coordinator.Update) {
	if err := h.repo.RecordSnapshot(ctx, u.DeviceID, u.Snapshot.Fields, historySource(u.Trigger)); err != nil {
		h.logger.Warn("recording state history failed", "device_id", u.DeviceID, "error", err)
	}
}

func historySource(t coordinator.Trigger) string {
	switch t {
	case coordinator.TriggerManual:
		return device.StateHistorySourceManual
	case coordinator.TriggerCommand:
		return device.StateHistorySourceCommand
	default:
		return device.StateHistorySourcePoll
	}
}

// Start prunes once, then on every interval until ctx ends or Stop is called.
// A no-op when retention is zero.
func (h *HistorySink) Start(ctx context.Context) {
	if h.retention <= 0 {
		return
	}
	h.prune(ctx)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-h.done:
				return
			case <-ticker.C:
				h.prune(ctx)
			}
		}
	}()
}

// Stop ends pruning. Safe to call multiple times.
func (h *HistorySink) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()
	})
}

func (h *HistorySink) prune(ctx context.Context) {
	n, err := h.repo.PruneHistory(ctx, h.retention)
	if err != nil {
		h.logger.Warn("pruning state history failed", "error", err)
		return
	}
	if n > 0 {
		h.logger.Debug("pruned state history", "removed", n)
	}
}
