package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/clage-homeserver/internal/command"
)

func setTemperatureCmd(configPath *string) *cobra.Command {
	var t target

	cmd := &cobra.Command{
		Use:   "set-temperature [device] <celsius>",
		Short: "Change the setpoint of one heater",
		Long: fmt.Sprintf("Change the setpoint of one heater. The value is rounded to whole degrees\n"+
			"and clamped to %d..%d °C. Entity references need the running service;\n"+
			"use the API or MQTT for those.", command.MinTemperature, command.MaxTemperature),
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(resolveConfigPath(*configPath), true)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			celsius, requested, err := parseSetpoint(args[len(args)-1])
			if err != nil {
				return err
			}

			client, name, err := t.client(cfg, args[:len(args)-1])
			if err != nil {
				return err
			}

			ctx, cancel := withTimeout(cmd.Context(), cfg)
			defer cancel()

			if err := client.SetTemperature(ctx, celsius); err != nil {
				return fmt.Errorf("setting temperature of %s: %w", name, err)
			}

			out := cmd.OutOrStdout()
			if celsius != requested {
				fmt.Fprintf(out, "%s: %d °C requested, clamped to %d °C\n", name, requested, celsius)
				return nil
			}
			fmt.Fprintf(out, "%s: setpoint %d °C\n", name, celsius)
			return nil
		},
	}

	t.bind(cmd)
	return cmd
}

// parseSetpoint resolves a command-line value to whole °C.
//
// Returns:
//   - int: Clamped setpoint to send
//   - int: Rounded value before clamping
//   - error: command.ErrInvalidCommandValue for anything but a number
func parseSetpoint(arg string) (int, int, error) {
	in, err := command.ParseTemperatureInput(arg)
	if err != nil {
		return 0, 0, err
	}
	requested, err := in.Resolve(nil)
	if err != nil {
		return 0, 0, err
	}
	return command.Clamp(requested), requested, nil
}
