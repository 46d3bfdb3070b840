// Package config defines the beamcal configuration tree.
//
//   - spec.go: CalibrationConfig struct definition
//   - default.go: Default configuration values
//   - verify.go: Validation of impossible values
//   - convert.go: Conversion into engine, storage and instrument configs
//
// Configuration is loaded via internal/infra/confloader from a YAML file,
// BEAMCAL_ environment variables and command-line flags.
package config
