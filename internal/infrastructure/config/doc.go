// Package config handles loading and validating the service configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with CLAGEHS_* environment variables
//   - Validation of required fields and device descriptors
//   - Default value handling, including the scan-interval floor
//
// Security Considerations:
//   - Homeserver and broker credentials should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/clagehs.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	interval := cfg.EffectiveScanInterval()
//
// A minimal file:
//
//	homeserver:
//	  scan_interval: 30s
//	  devices:
//	    - name: bad_oben
//	      ip_address: 192.168.1.50
//	      homeserver_id: F8F005DB0CDE
//	      heater_id: 2049DB0CD7
package config
