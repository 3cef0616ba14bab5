package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/clage-homeserver/internal/homeserver"
)

func sensorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sensors",
		Short: "List the sensors published for every heater",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tNAME\tUNIT\tCLASS\tCATEGORY")
			for _, s := range homeserver.Sensors() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					s.Key, s.Name, dash(s.Unit), dash(s.DeviceClass), dash(s.EntityCategory))
			}
			return tw.Flush()
		},
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
