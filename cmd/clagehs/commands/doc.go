// Package commands defines the clagehs CLI.
//
// Commands
//
//   - serve            Poll every device and serve the API and MQTT bridge (default)
//   - check            Validate the config file, --probe to contact each device
//   - status           Read one heater's status
//   - set-temperature  Change one heater's setpoint
//   - sensors          List the published sensors
//   - token            Mint an API bearer token
//   - version          Print build information
//
// # Configuration
//
// Every command reads the YAML file named by --config, then $CLAGEHS_CONFIG,
// then configs/config.yaml. The one-shot device commands fall back to the
// built-in defaults when the file does not exist, so they work with --ip and
// --heater alone.
package commands
