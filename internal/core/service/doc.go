// Package service provides the calibration engines for beamcal.
//
// Engines contain the control-loop logic layered on top of the instrument.
// They define narrow interfaces for the instrument facades they drive
// (BeamControl, StageControl, Imager, Detector, ...), allowing any backend,
// simulated or vendor, to be injected.
//
// This package contains:
//
//   - StateService: snapshot and bounded-retry restore of the instrument state
//   - FocusService: device auto-focus and the sharpness grid search
//   - AlignService: coarse-to-fine needle alignment and needle calibration
//   - NeutraliseService: the charge neutralisation imaging loop
//   - HomingService: home, restore and link orchestration
//   - BeamSystemService: source and detector settings per channel
//
// Engines are synchronous and assume exclusive ownership of the instrument
// for the duration of a call. They are not safe for concurrent use.
package service
