// Package config handles loading and validating the LED controller service
// configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - MQTT passwords and InfluxDB tokens should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Controller.PollInterval)
//
// Example entries section:
//
//	entries:
//	  - domain: ha-ledcontroller
//	    title: Kitchen wall
//	    data: {host: 10.0.0.5, port: 4010, id: 3, type: Multivision}
//	  - domain: multivision_ha
//	    data: {host: 10.0.0.6, count: 4}
package config
