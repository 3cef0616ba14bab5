// CLAGE Homeserver service.
//
// clagehs polls one or more CLAGE homeservers for the status of their
// instantaneous water heaters, publishes the readings over REST, WebSocket
// and MQTT, and relays setpoint changes back to the heaters.
//
// Run "clagehs serve" for the long-running service, or one of the one-shot
// commands ("status", "set-temperature", "check") against a single device.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/clage-homeserver/cmd/clagehs/commands"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	info := commands.BuildInfo{Version: version, Commit: commit, Date: date}
	if err := commands.Execute(ctx, info); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
