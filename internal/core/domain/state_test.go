package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func validState() *InstrumentState {
	return &InstrumentState{
		Timestamp: time.Unix(1700000000, 0),
		AbsolutePosition: StagePosition{
			X: 1e-3, Y: -2e-3, Z: 3.9e-3, Tilt: 0.61, Rotation: 0.85,
			CoordinateSystem: CoordinateRaw,
		},
		Electron: BeamChannelSettings{
			Channel: ChannelElectron, WorkingDistance: 4e-3, BeamCurrent: 50e-12,
			FieldWidth: 150e-6, Resolution: "1536x1024", DwellTime: 1e-6,
		},
		Ion: BeamChannelSettings{
			Channel: ChannelIon, WorkingDistance: 16.5e-3, BeamCurrent: 20e-12,
			FieldWidth: 150e-6, Resolution: "1536x1024", DwellTime: 1e-6,
		},
	}
}

func TestStagePosition_Equal(t *testing.T) {
	a := StagePosition{X: 1e-3, Y: 2e-3, Z: 3e-3, Tilt: 0.1, Rotation: 0.2}
	b := a
	b.X += 1e-9

	tests := []struct {
		name      string
		a, b      StagePosition
		tolerance float64
		want      bool
	}{
		{"identical exact", a, a, 0, true},
		{"tiny drift exact", a, b, 0, false},
		{"tiny drift within tolerance", a, b, 1e-8, true},
		{"tiny drift outside tolerance", a, b, 1e-10, false},
		{"negative tolerance is exact", a, b, -1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b, tt.tolerance); got != tt.want {
				t.Errorf("Equal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInstrumentState_Validate(t *testing.T) {
	if err := validState().Validate(); err != nil {
		t.Fatalf("Validate() on complete state: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(s *InstrumentState)
	}{
		{"zero timestamp", func(s *InstrumentState) { s.Timestamp = time.Time{} }},
		{"specimen frame", func(s *InstrumentState) { s.AbsolutePosition.CoordinateSystem = CoordinateSpecimen }},
		{"swapped channels", func(s *InstrumentState) { s.Electron, s.Ion = s.Ion, s.Electron }},
		{"missing resolution", func(s *InstrumentState) { s.Ion.Resolution = "" }},
		{"missing current", func(s *InstrumentState) { s.Electron.BeamCurrent = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validState()
			tt.mutate(s)
			if err := s.Validate(); !errors.Is(err, ErrIncompleteState) {
				t.Errorf("Validate() = %v, want ErrIncompleteState", err)
			}
		})
	}

	var nilState *InstrumentState
	if err := nilState.Validate(); !errors.Is(err, ErrIncompleteState) {
		t.Errorf("nil Validate() = %v, want ErrIncompleteState", err)
	}
}

func TestInstrumentState_JSONChannelTags(t *testing.T) {
	data, err := json.Marshal(validState())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got InstrumentState
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Ion.Channel != ChannelIon || got.AbsolutePosition.CoordinateSystem != CoordinateRaw {
		t.Errorf("enum fields lost: %+v", got)
	}
}

func TestParseChannel(t *testing.T) {
	for _, in := range []string{"electron", "ELECTRON", " eb "} {
		if ch, err := ParseChannel(in); err != nil || ch != ChannelElectron {
			t.Errorf("ParseChannel(%q) = %v, %v", in, ch, err)
		}
	}
	if ch, err := ParseChannel("ION"); err != nil || ch != ChannelIon {
		t.Errorf("ParseChannel(ION) = %v, %v", ch, err)
	}
	if _, err := ParseChannel("photon"); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("ParseChannel(photon) error = %v", err)
	}
	if ChannelIon.EucentricHeight() != 16.5e-3 || ChannelElectron.EucentricHeight() != 4.0e-3 {
		t.Error("unexpected eucentric heights")
	}
}
