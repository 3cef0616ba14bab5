package coordinator

import "context"

// Trigger says why a refresh ran.
type Trigger string

const (
	TriggerPoll    Trigger = "poll"
	TriggerManual  Trigger = "manual"
	TriggerCommand Trigger = "command"
)

type triggerKey struct{}

// WithTrigger tags ctx so updates from the refresh it starts carry t.
func WithTrigger(ctx context.Context, t Trigger) context.Context {
	return context.WithValue(ctx, triggerKey{}, t)
}

// TriggerFrom returns the trigger carried by ctx, TriggerManual if none.
func TriggerFrom(ctx context.Context) Trigger {
	if t, ok := ctx.Value(triggerKey{}).(Trigger); ok {
		return t
	}
	return TriggerManual
}
