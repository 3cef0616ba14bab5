package audit

import (
	"context"

	"github.com/nerrad567/clage-homeserver/internal/command"
)

// Logger defines the logging interface used by the recorder.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Recorder writes audit entries. A failed write is logged, never returned,
// so auditing cannot block a command.
type Recorder struct {
	repo   Repository
	logger Logger
}

// NewRecorder creates a recorder over repo.
func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo, logger: noopLogger{}}
}

// SetLogger sets the logger for the recorder.
func (r *Recorder) SetLogger(logger Logger) {
	r.logger = logger
}

// HandleResult records one command outcome. Register it with
// (*command.Dispatcher).AddListener.
func (r *Recorder) HandleResult(ctx context.Context, res command.Result, err error) {
	details := map[string]any{
		"command_id":  res.CommandID,
		"requested":   res.Requested,
		"temperature": res.Temperature,
		"targets":     res.Targets,
		"ok":          err == nil && res.OK(),
	}
	if len(res.Failures) > 0 {
		details["failures"] = res.Failures
	}
	if err != nil {
		details["error"] = err.Error()
	}

	source := res.Source
	if source == "" {
		source = "internal"
	}
	r.write(ctx, &Entry{
		Action:   ActionCommand,
		DeviceID: res.DeviceID,
		Caller:   res.Caller,
		Source:   source,
		Details:  details,
	})
}

// RecordEntry records a homeserver being added (ActionCreate) or removed
// (ActionDelete). Source and caller come from the Origin on ctx.
func (r *Recorder) RecordEntry(ctx context.Context, action, deviceID string, details map[string]any) {
	origin := command.OriginFrom(ctx)
	source := origin.Source
	if source == "" {
		source = "internal"
	}
	r.write(ctx, &Entry{
		Action:   action,
		DeviceID: deviceID,
		Caller:   origin.Caller,
		Source:   source,
		Details:  details,
	})
}

// List returns one page of entries.
func (r *Recorder) List(ctx context.Context, filter Filter) (*ListResult, error) {
	return r.repo.List(ctx, filter)
}

func (r *Recorder) write(ctx context.Context, e *Entry) {
	// Record even when the request that caused it was cancelled.
	if err := r.repo.Create(context.WithoutCancel(ctx), e); err != nil {
		r.logger.Warn("writing audit entry failed", "action", e.Action, "device_id", e.DeviceID, "error", err)
	}
}
