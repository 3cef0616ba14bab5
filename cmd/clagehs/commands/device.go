package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nerrad567/clage-homeserver/internal/device"
	"github.com/nerrad567/clage-homeserver/internal/homeserver"
	"github.com/nerrad567/clage-homeserver/internal/infrastructure/config"
)

// target selects one device for a one-shot command: either a configured
// device by name or ID, or an explicit address and heater ID.
type target struct {
	address  string
	heaterID string
}

func (t *target) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&t.address, "ip", "", "homeserver IP address (instead of a configured device)")
	cmd.Flags().StringVar(&t.heaterID, "heater", "", "heater ID, required with --ip")
}

// client resolves the target against cfg and builds an HTTP client for it.
func (t *target) client(cfg *config.Config, args []string) (*homeserver.HTTPClient, string, error) {
	switch {
	case len(args) > 0 && t.address != "":
		return nil, "", errors.New("give either a device name or --ip, not both")
	case len(args) > 0:
		d, err := findConfigured(cfg.Homeserver.Devices, args[0])
		if err != nil {
			return nil, "", err
		}
		c, err := newHTTPClient(cfg.Homeserver, d.IPAddress, d.HeaterID)
		return c, device.Slugify(d.Name), err
	case t.address != "":
		if err := device.ValidateAddress(t.address); err != nil {
			return nil, "", err
		}
		if t.heaterID == "" {
			return nil, "", errors.New("--heater is required with --ip")
		}
		c, err := newHTTPClient(cfg.Homeserver, t.address, t.heaterID)
		return c, t.address, err
	default:
		return nil, "", errors.New("a device name or --ip is required")
	}
}

// findConfigured matches name against configured device names and their
// slugs, case-insensitively.
func findConfigured(devices []config.DeviceConfig, name string) (config.DeviceConfig, error) {
	for _, d := range devices {
		if strings.EqualFold(d.Name, name) || device.Slugify(d.Name) == device.Slugify(name) {
			return d, nil
		}
	}
	return config.DeviceConfig{}, fmt.Errorf("%w: %q is not in the config file", device.ErrDeviceNotFound, name)
}

// withTimeout bounds a one-shot command; a status read makes two requests.
func withTimeout(ctx context.Context, cfg *config.Config) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 2*cfg.Homeserver.RequestTimeout)
}
