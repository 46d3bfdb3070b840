// Package metric provides Prometheus metrics for beamcal.
//
// Metrics cover the calibration engines:
//
//   - Restore: stage moves issued and non-converged restores
//   - Focus: sharpness samples and the chosen working distance
//   - Alignment: correctional moves per channel and aborted passes
//   - Imaging: captures per channel and whether they were persisted
//   - Durations of whole operations
//
// A run exposes them at /metrics when a metrics address is configured.
package metric
