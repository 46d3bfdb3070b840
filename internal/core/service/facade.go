package service

import (
	"context"

	"github.com/yndnr/beamcal/internal/core/domain"
)

// The engines talk to the instrument through the narrow interfaces below.
// Every call is a blocking round trip; failures are device-communication errors
// and are returned unmodified apart from added context.

// BeamControl reads and writes per-channel beam parameters.
type BeamControl interface {
	WorkingDistance(ctx context.Context, ch domain.Channel) (float64, error)
	SetWorkingDistance(ctx context.Context, ch domain.Channel, meters float64) error

	BeamCurrent(ctx context.Context, ch domain.Channel) (float64, error)
	SetBeamCurrent(ctx context.Context, ch domain.Channel, amps float64) error

	FieldWidth(ctx context.Context, ch domain.Channel) (float64, error)
	SetFieldWidth(ctx context.Context, ch domain.Channel, meters float64) error

	Resolution(ctx context.Context, ch domain.Channel) (string, error)
	SetResolution(ctx context.Context, ch domain.Channel, resolution string) error

	DwellTime(ctx context.Context, ch domain.Channel) (float64, error)
	SetDwellTime(ctx context.Context, ch domain.Channel, seconds float64) error
}

// SourceControl covers the slower-changing source and detector parameters.
type SourceControl interface {
	// SetActiveChannel selects the channel for the active view and device.
	SetActiveChannel(ctx context.Context, ch domain.Channel) error

	HighVoltage(ctx context.Context, ch domain.Channel) (float64, error)
	SetHighVoltage(ctx context.Context, ch domain.Channel, volts float64) error

	// Detector type and mode apply to the active channel.
	DetectorType(ctx context.Context) (string, error)
	SetDetectorType(ctx context.Context, detectorType string) error
	DetectorMode(ctx context.Context) (string, error)
	SetDetectorMode(ctx context.Context, mode string) error

	// PlasmaGas is only available on the ion channel.
	PlasmaGas(ctx context.Context) (string, error)
	SetPlasmaGas(ctx context.Context, gas string) error
}

// StageControl moves and references the specimen stage.
type StageControl interface {
	// StagePosition returns the position in the current default coordinate system.
	StagePosition(ctx context.Context) (domain.StagePosition, error)
	SetCoordinateSystem(ctx context.Context, cs domain.CoordinateSystem) error
	// SafeAbsoluteMove moves to pos, retracting tilt first where required.
	SafeAbsoluteMove(ctx context.Context, pos domain.StagePosition) error
	Home(ctx context.Context) error
	Link(ctx context.Context) error
}

// ManipulatorControl drives the needle.
type ManipulatorControl interface {
	SetManipulatorCoordinateSystem(ctx context.Context, cs domain.ManipulatorCoordinateSystem) error
	// MoveManipulatorCorrected moves the needle by (dx, dy) meters expressed in the
	// image plane of the given channel; the device maps them onto needle axes.
	MoveManipulatorCorrected(ctx context.Context, dx, dy float64, ch domain.Channel) error
}

// AutoFunctions wraps vendor automation routines.
type AutoFunctions interface {
	RunAutoFocus(ctx context.Context) error
}

// Device is the full instrument facade.
type Device interface {
	BeamControl
	SourceControl
	StageControl
	ManipulatorControl
	AutoFunctions
}

// Imager acquires images.
type Imager interface {
	Capture(ctx context.Context, settings domain.CaptureSettings) (*domain.Image, error)
	AutoContrast(ctx context.Context, ch domain.Channel) error
}

// Detector locates named features in an image. With interactive set, the
// implementation may ask an operator to confirm or correct each location.
type Detector interface {
	Detect(ctx context.Context, img *domain.Image, features []domain.FeatureType, interactive bool) (domain.Detection, error)
}
