package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// CoordinateSystem selects the frame stage positions are expressed in.
type CoordinateSystem int

const (
	// CoordinateSpecimen is relative to the linked specimen surface. It is the default frame.
	CoordinateSpecimen CoordinateSystem = iota
	// CoordinateRaw is the machine frame, independent of linking.
	CoordinateRaw
)

func (c CoordinateSystem) String() string {
	if c == CoordinateRaw {
		return "raw"
	}
	return "specimen"
}

// MarshalText implements encoding.TextMarshaler.
func (c CoordinateSystem) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *CoordinateSystem) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "raw":
		*c = CoordinateRaw
	case "specimen", "":
		*c = CoordinateSpecimen
	default:
		return ErrInvalidArgument.WithDetails(fmt.Sprintf("unknown coordinate system %q", b))
	}
	return nil
}

// ManipulatorCoordinateSystem selects the frame used for needle moves.
type ManipulatorCoordinateSystem int

const (
	ManipulatorRaw ManipulatorCoordinateSystem = iota
	ManipulatorStage
)

func (c ManipulatorCoordinateSystem) String() string {
	if c == ManipulatorStage {
		return "stage"
	}
	return "raw"
}

// StagePosition is a stage coordinate tuple. Lengths in meters, angles in radians.
type StagePosition struct {
	X                float64          `json:"x"`
	Y                float64          `json:"y"`
	Z                float64          `json:"z"`
	Tilt             float64          `json:"t"`
	Rotation         float64          `json:"r"`
	CoordinateSystem CoordinateSystem `json:"coordinate_system"`
}

// Equal compares positions axis by axis. A zero tolerance means exact equality.
func (p StagePosition) Equal(o StagePosition, tolerance float64) bool {
	if tolerance <= 0 {
		return p.X == o.X && p.Y == o.Y && p.Z == o.Z &&
			p.Tilt == o.Tilt && p.Rotation == o.Rotation
	}
	return math.Abs(p.X-o.X) <= tolerance &&
		math.Abs(p.Y-o.Y) <= tolerance &&
		math.Abs(p.Z-o.Z) <= tolerance &&
		math.Abs(p.Tilt-o.Tilt) <= tolerance &&
		math.Abs(p.Rotation-o.Rotation) <= tolerance
}

func (p StagePosition) String() string {
	return fmt.Sprintf("x=%.4e y=%.4e z=%.4e t=%.4f r=%.4f (%s)",
		p.X, p.Y, p.Z, p.Tilt, p.Rotation, p.CoordinateSystem)
}

// InstrumentState is a complete snapshot of the instrument: raw stage position and
// both channel settings. It has no partial form.
type InstrumentState struct {
	Timestamp        time.Time           `json:"timestamp"`
	AbsolutePosition StagePosition       `json:"absolute_position"`
	Electron         BeamChannelSettings `json:"eb_settings"`
	Ion              BeamChannelSettings `json:"ib_settings"`
}

// Beam returns the settings for the given channel.
func (s *InstrumentState) Beam(ch Channel) BeamChannelSettings {
	if ch == ChannelIon {
		return s.Ion
	}
	return s.Electron
}

// Validate rejects partial states.
func (s *InstrumentState) Validate() error {
	if s == nil {
		return ErrIncompleteState.WithDetails("nil state")
	}
	if s.Timestamp.IsZero() {
		return ErrIncompleteState.WithDetails("timestamp")
	}
	if s.AbsolutePosition.CoordinateSystem != CoordinateRaw {
		return ErrIncompleteState.WithDetails("absolute_position must be in the raw frame")
	}
	if s.Electron.Channel != ChannelElectron {
		return ErrIncompleteState.WithDetails("eb_settings: channel must be electron")
	}
	if s.Ion.Channel != ChannelIon {
		return ErrIncompleteState.WithDetails("ib_settings: channel must be ion")
	}
	if err := s.Electron.Validate(); err != nil {
		return err
	}
	return s.Ion.Validate()
}
