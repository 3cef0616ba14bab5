package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/clage-homeserver/internal/homeserver"
)

func statusCmd(configPath *string) *cobra.Command {
	var (
		t      target
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "status [device]",
		Short: "Read the current status of one heater",
		Long: "Read the current status of one heater, either a device from the config\n" +
			"file by name or an unconfigured one given with --ip and --heater.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(resolveConfigPath(*configPath), true)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			client, name, err := t.client(cfg, args)
			if err != nil {
				return err
			}

			ctx, cancel := withTimeout(cmd.Context(), cfg)
			defer cancel()

			snap, err := client.RequestStatus(ctx)
			if err != nil {
				return fmt.Errorf("reading status of %s: %w", name, err)
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(snap.Fields)
			}
			return printSnapshot(cmd.OutOrStdout(), snap)
		},
	}

	t.bind(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw fields as JSON")
	return cmd
}

// printSnapshot writes one line per known sensor, in table order. Sensors
// the heater did not report are skipped.
func printSnapshot(w io.Writer, snap homeserver.Snapshot) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SENSOR\tVALUE\tUNIT")
	for _, s := range homeserver.Sensors() {
		v, ok := snap.Field(s.Key)
		if !ok {
			continue
		}
		fmt.Fprintf(tw, "%s\t%v\t%s\n", s.Name, formatValue(v), s.Unit)
	}
	return tw.Flush()
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "-"
	case float64:
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprint(val)
	}
}
