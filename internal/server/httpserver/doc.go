// Package httpserver serves run telemetry over HTTP while a calibration runs.
//
// Endpoints:
//
//   - /metrics: Prometheus exposition of the run's registry
//   - /health: liveness
//   - /status: run ID, backend and the step in progress
//
// The middleware chain is Recover, RequestID and AccessLog.
package httpserver
