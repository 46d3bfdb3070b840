// Package domain defines the core domain models for beamcal.
//
// Domain models are pure value objects without any IO dependencies or
// instrument coupling. This package contains:
//
//   - Channel, BeamChannelSettings, DetectorSystemSettings: per-beam configuration
//   - StagePosition, InstrumentState: the snapshot/restore record
//   - CaptureSettings, Region, Image: transient acquisition parameters and results
//   - FeatureType, Feature: detection queries and results
//   - FocusMode: closed set of focus strategies
//   - Errors: domain-specific error definitions
package domain
