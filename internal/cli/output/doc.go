// Package output renders command results for the beamcal CLI.
//
//   - formatter.go: Formatter interface and factory
//   - table.go: key/value and column tables flattened from nested structs
//   - json.go, yaml.go: machine-readable output
//   - spinner.go: activity indicator for long calibration steps
//
// Field names come from json tags so that every format labels a value the
// same way.
package output
