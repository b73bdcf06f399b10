// Package config provides the snapbridge host configuration.
//
//   - spec.go: HostConfig struct definition
//   - default.go: Default configuration values
//   - verify.go: Validation
//   - sanitize.go: Masking child environment secrets for display
//
// Configuration is loaded via internal/infra/confloader from a YAML file,
// SNAPBRIDGE_* environment variables and command-line flags.
package config
