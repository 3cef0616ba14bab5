package command

import "context"

// Command sources.
const (
	SourceAPI  = "api"
	SourceMQTT = "mqtt"
)

// Origin says who issued a command and through which surface.
type Origin struct {
	Source string

	// Caller is the API token subject, empty when unauthenticated.
	Caller string
}

type originKey struct{}

// WithOrigin tags ctx so the Result of a command issued with it carries o.
func WithOrigin(ctx context.Context, o Origin) context.Context {
	return context.WithValue(ctx, originKey{}, o)
}

// OriginFrom returns the origin carried by ctx, the zero Origin if none.
func OriginFrom(ctx context.Context) Origin {
	o, _ := ctx.Value(originKey{}).(Origin)
	return o
}
