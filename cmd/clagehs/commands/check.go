package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/clage-homeserver/internal/device"
	"github.com/nerrad567/clage-homeserver/internal/infrastructure/config"
)

func checkCmd(configPath *string) *cobra.Command {
	var probe bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the config file and optionally probe every configured heater",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := resolveConfigPath(*configPath)
			cfg, err := loadConfig(path, false)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			out := cmd.OutOrStdout()
			printSummary(out, path, cfg)
			if !probe {
				return nil
			}

			failed := probeDevices(cmd.Context(), out, cfg)
			if failed > 0 {
				return fmt.Errorf("%d of %d devices failed", failed, len(cfg.Homeserver.Devices))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&probe, "probe", false, "request the status of every configured device")
	return cmd
}

func printSummary(w io.Writer, path string, cfg *config.Config) {
	fmt.Fprintf(w, "config:         %s\n", path)
	fmt.Fprintf(w, "database:       %s\n", cfg.Database.Path)
	fmt.Fprintf(w, "scan interval:  %s\n", cfg.EffectiveScanInterval())
	fmt.Fprintf(w, "api:            %s\n", enabled(cfg.API.Enabled, fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)))
	fmt.Fprintf(w, "mqtt:           %s\n", enabled(cfg.MQTT.Enabled, fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port)))
	fmt.Fprintf(w, "influxdb:       %s\n", enabled(cfg.InfluxDB.Enabled, cfg.InfluxDB.URL))
	fmt.Fprintf(w, "devices:        %d\n", len(cfg.Homeserver.Devices))
	for _, d := range cfg.Homeserver.Devices {
		fmt.Fprintf(w, "  - %s (%s) %s heater %s\n", device.Slugify(d.Name), d.Name, d.IPAddress, d.HeaterID)
	}
}

func enabled(on bool, detail string) string {
	if !on {
		return "disabled"
	}
	return detail
}

// probeDevices requests every configured device's status, at most
// MaxParallel at a time, and returns how many failed.
func probeDevices(ctx context.Context, w io.Writer, cfg *config.Config) int {
	devices := cfg.Homeserver.Devices
	results := make([]error, len(devices))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Homeserver.MaxParallel)
	for i, d := range devices {
		g.Go(func() error {
			client, err := newHTTPClient(cfg.Homeserver, d.IPAddress, d.HeaterID)
			if err != nil {
				results[i] = err
				return nil
			}
			reqCtx, cancel := withTimeout(gctx, cfg)
			defer cancel()
			_, results[i] = client.RequestStatus(reqCtx)
			return nil
		})
	}
	g.Wait() //nolint:errcheck // Probes never return an error, results carry them

	failed := 0
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DEVICE\tADDRESS\tRESULT")
	for i, d := range devices {
		result := "ok"
		if results[i] != nil {
			result = results[i].Error()
			failed++
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", device.Slugify(d.Name), d.IPAddress, result)
	}
	tw.Flush() //nolint:errcheck // Best effort console output
	return failed
}
