package commands

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/clage-homeserver/internal/infrastructure/config"
)

// ConfigEnv names the environment variable holding the config file path.
const ConfigEnv = "CLAGEHS_CONFIG"

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// BuildInfo is the version stamp injected by main.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// Execute runs the command line.
//
// Parameters:
//   - ctx: Cancelled on SIGINT/SIGTERM; serve shuts down when it is done
//   - info: Build version information
//
// Returns:
//   - error: The failing command's error, already printed by cobra
func Execute(ctx context.Context, info BuildInfo) error {
	return NewRootCmd(info).ExecuteContext(ctx)
}

// NewRootCmd builds the command tree. Running the root command without a
// subcommand starts the service.
func NewRootCmd(info BuildInfo) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "clagehs",
		Short:         "CLAGE Homeserver polling and command service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), resolveConfigPath(configPath), info)
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (default $"+ConfigEnv+" or "+defaultConfigPath+")")

	root.AddCommand(
		serveCmd(&configPath, info),
		checkCmd(&configPath),
		statusCmd(&configPath),
		setTemperatureCmd(&configPath),
		sensorsCmd(),
		tokenCmd(&configPath),
		versionCmd(info),
	)
	return root
}

// resolveConfigPath returns the configuration file path.
// The flag wins over CLAGEHS_CONFIG, which wins over the default.
func resolveConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if path := os.Getenv(ConfigEnv); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadConfig reads the config file, falling back to the built-in defaults
// when optional is set and the file does not exist.
func loadConfig(path string, optional bool) (*config.Config, error) {
	if optional {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return config.Default(), nil
		}
	}
	return config.Load(path)
}
