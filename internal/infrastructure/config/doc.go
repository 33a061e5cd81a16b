// Package config handles loading and validating Fritz!Presence configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Loading credentials from an optional .env file
//   - Overriding with environment variables
//   - Validation of required fields
//
// Security Considerations:
//   - Router and Domoticz passwords should be set via environment variables
//     or the .env file, not committed in config.yaml
//   - The JWT secret must be at least 32 characters when the API is enabled
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	interval, _ := cfg.PollInterval()
package config
