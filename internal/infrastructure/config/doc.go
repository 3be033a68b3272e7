// Package config handles loading and validating upswatch configuration.
//
// One YAML file describes the whole installation: the state socket
// directory, the UPS devices and their drivers, API users, and the
// optional MQTT, InfluxDB and SQLite outputs. upsd, upsdrvctl and the
// drivers all read the same file.
//
// Security Considerations:
//   - Sensitive values (passwords, tokens) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - User passwords are stored as argon2id hashes, never in clear text
//
// Usage:
//
//	cfg, err := config.Load("/etc/upswatch/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, dev := range cfg.Devices {
//	    fmt.Println(dev.Name, dev.Driver, dev.Port)
//	}
package config
