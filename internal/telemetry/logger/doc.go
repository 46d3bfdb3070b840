// Package logger provides structured logging for beamcal.
//
// It wraps log/slog:
//
//   - logger.go: Logger interface, JSON/text handlers, dynamic level
//   - context.go: context propagation of the logger and the calibration run ID
//
// Every command of a run logs with the same run_id so that a restore, the
// focus search and the alignment that follow it can be correlated.
package logger
