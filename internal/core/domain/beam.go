package domain

import (
	"fmt"
	"strings"
)

// Channel identifies one of the two beam subsystems.
type Channel int

const (
	ChannelElectron Channel = iota + 1
	ChannelIon
)

// Channels lists both channels in restore order.
var Channels = []Channel{ChannelElectron, ChannelIon}

func (c Channel) String() string {
	switch c {
	case ChannelElectron:
		return "electron"
	case ChannelIon:
		return "ion"
	default:
		return "unknown"
	}
}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	return c == ChannelElectron || c == ChannelIon
}

// ParseChannel parses a channel tag. Vendor tags ("ELECTRON", "ION") are accepted.
func ParseChannel(s string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "electron", "eb", "sem":
		return ChannelElectron, nil
	case "ion", "ib", "fib":
		return ChannelIon, nil
	default:
		return 0, ErrInvalidArgument.WithDetails(fmt.Sprintf("unknown channel %q", s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Channel) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, ErrInvalidArgument.WithDetails(fmt.Sprintf("channel %d", int(c)))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Channel) UnmarshalText(b []byte) error {
	parsed, err := ParseChannel(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Eucentric heights per channel, in meters.
const (
	ElectronEucentricHeight = 4.0e-3
	IonEucentricHeight      = 16.5e-3
)

// EucentricHeight returns the fixed eucentric working distance of the channel.
func (c Channel) EucentricHeight() float64 {
	if c == ChannelIon {
		return IonEucentricHeight
	}
	return ElectronEucentricHeight
}

// BeamChannelSettings is an immutable snapshot of one channel's imaging parameters.
// Units are SI: meters, amps, seconds.
type BeamChannelSettings struct {
	Channel         Channel `json:"channel"`
	WorkingDistance float64 `json:"working_distance"`
	BeamCurrent     float64 `json:"beam_current"`
	FieldWidth      float64 `json:"hfw"`
	Resolution      string  `json:"resolution"`
	DwellTime       float64 `json:"dwell_time"`
}

// Validate checks that every field is populated.
func (b BeamChannelSettings) Validate() error {
	switch {
	case !b.Channel.Valid():
		return ErrIncompleteState.WithDetails("beam settings: channel")
	case b.WorkingDistance <= 0:
		return ErrIncompleteState.WithDetails(b.Channel.String() + ": working_distance")
	case b.BeamCurrent <= 0:
		return ErrIncompleteState.WithDetails(b.Channel.String() + ": beam_current")
	case b.FieldWidth <= 0:
		return ErrIncompleteState.WithDetails(b.Channel.String() + ": hfw")
	case b.Resolution == "":
		return ErrIncompleteState.WithDetails(b.Channel.String() + ": resolution")
	case b.DwellTime <= 0:
		return ErrIncompleteState.WithDetails(b.Channel.String() + ": dwell_time")
	}
	return nil
}

// DetectorSystemSettings describes a channel's source and detector configuration.
type DetectorSystemSettings struct {
	Channel         Channel `json:"channel"`
	Voltage         float64 `json:"voltage"`
	Current         float64 `json:"current"`
	DetectorType    string  `json:"detector_type"`
	DetectorMode    string  `json:"detector_mode"`
	EucentricHeight float64 `json:"eucentric_height"`
	// PlasmaGas is only meaningful for the ion channel.
	PlasmaGas string `json:"plasma_gas,omitempty"`
}
