package statefile

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/beamcal/internal/core/domain"
)

func sampleState() *domain.InstrumentState {
	return &domain.InstrumentState{
		Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 123456000, time.UTC),
		AbsolutePosition: domain.StagePosition{
			X: 1.0031e-3, Y: -2.5e-4, Z: 3.9876e-3, Tilt: 0.9250245, Rotation: 3.14159, CoordinateSystem: domain.CoordinateRaw,
		},
		Electron: domain.BeamChannelSettings{
			Channel: domain.ChannelElectron, WorkingDistance: 3.9994e-3, BeamCurrent: 50e-12,
			FieldWidth: 150e-6, Resolution: "1536x1024", DwellTime: 1e-6,
		},
		Ion: domain.BeamChannelSettings{
			Channel: domain.ChannelIon, WorkingDistance: 16.5e-3, BeamCurrent: 20e-12,
			FieldWidth: 900e-6, Resolution: "1536x1024", DwellTime: 1e-6,
		},
	}
}

func TestEncodeDecode(t *testing.T) {
	want := sampleState()

	var buf bytes.Buffer
	if err := Encode(&buf, want); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	for _, key := range []string{"timestamp:", "absolute_position:", "coordinate_system: RAW", "eb_settings:", "beam_type: ELECTRON", "ib_settings:", "hfw:"} {
		if !strings.Contains(buf.String(), key) {
			t.Errorf("document missing %q:\n%s", key, buf.String())
		}
	}

	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.AbsolutePosition != want.AbsolutePosition {
		t.Errorf("position = %+v, want %+v", got.AbsolutePosition, want.AbsolutePosition)
	}
	if got.Electron != want.Electron || got.Ion != want.Ion {
		t.Errorf("beam settings differ:\n got %+v %+v\nwant %+v %+v", got.Electron, got.Ion, want.Electron, want.Ion)
	}
	if d := got.Timestamp.Sub(want.Timestamp); d > time.Microsecond || d < -time.Microsecond {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, want.Timestamp)
	}
}

func TestDecode_MissingKeys(t *testing.T) {
	full := `timestamp: 1709294400.5
absolute_position: {x: 0.001, y: 0.002, z: 0.003, r: 0.0, t: 0.5, coordinate_system: RAW}
eb_settings: {beam_type: ELECTRON, working_distance: 0.004, beam_current: 5.0e-11, hfw: 0.00015, resolution: 1536x1024, dwell_time: 1.0e-06}
ib_settings: {beam_type: ION, working_distance: 0.0165, beam_current: 2.0e-11, hfw: 0.0009, resolution: 1536x1024, dwell_time: 1.0e-06}
`
	if _, err := Decode(strings.NewReader(full)); err != nil {
		t.Fatalf("Decode(full) error = %v", err)
	}

	tests := []struct {
		name     string
		from, to string
	}{
		{"timestamp", "timestamp: 1709294400.5\n", ""},
		{"position axis", "z: 0.003, ", ""},
		{"coordinate system", ", coordinate_system: RAW", ""},
		{"beam block", "ib_settings: {beam_type: ION, working_distance: 0.0165, beam_current: 2.0e-11, hfw: 0.0009, resolution: 1536x1024, dwell_time: 1.0e-06}\n", ""},
		{"beam field", "hfw: 0.00015, ", ""},
		{"resolution", "resolution: 1536x1024, ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := strings.Replace(full, tt.from, tt.to, 1)
			if doc == full {
				t.Fatalf("test setup: %q not found", tt.from)
			}
			_, err := Decode(strings.NewReader(doc))
			if !errors.Is(err, domain.ErrIncompleteState) {
				t.Errorf("Decode() error = %v, want ErrIncompleteState", err)
			}
		})
	}
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want *domain.DomainError
	}{
		{"empty", "", domain.ErrIncompleteState},
		{"malformed", "timestamp: [", domain.ErrInvalidArgument},
		{"swapped channels", `timestamp: 1
absolute_position: {x: 0, y: 0, z: 0, r: 0, t: 0, coordinate_system: RAW}
eb_settings: {beam_type: ION, working_distance: 0.004, beam_current: 1.0e-11, hfw: 0.0001, resolution: 768x512, dwell_time: 1.0e-06}
ib_settings: {beam_type: ION, working_distance: 0.004, beam_current: 1.0e-11, hfw: 0.0001, resolution: 768x512, dwell_time: 1.0e-06}
`, domain.ErrIncompleteState},
		{"specimen frame", `timestamp: 1
absolute_position: {x: 0, y: 0, z: 0, r: 0, t: 0, coordinate_system: SPECIMEN}
eb_settings: {beam_type: ELECTRON, working_distance: 0.004, beam_current: 1.0e-11, hfw: 0.0001, resolution: 768x512, dwell_time: 1.0e-06}
ib_settings: {beam_type: ION, working_distance: 0.004, beam_current: 1.0e-11, hfw: 0.0001, resolution: 768x512, dwell_time: 1.0e-06}
`, domain.ErrIncompleteState},
		{"unknown beam type", `timestamp: 1
absolute_position: {x: 0, y: 0, z: 0, r: 0, t: 0, coordinate_system: RAW}
eb_settings: {beam_type: PROTON, working_distance: 0.004, beam_current: 1.0e-11, hfw: 0.0001, resolution: 768x512, dwell_time: 1.0e-06}
`, domain.ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.doc))
			if !errors.Is(err, tt.want) {
				t.Errorf("Decode() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", DefaultFileName)
	want := sampleState()

	if err := Save(path, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := Loader{Path: path}.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Electron != want.Electron {
		t.Errorf("electron = %+v, want %+v", got.Electron, want.Electron)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("directory should only hold the state file, got %d entries", len(entries))
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, domain.ErrStateNotFound) {
		t.Errorf("Load() error = %v, want ErrStateNotFound", err)
	}
}

func TestSave_RejectsPartialState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	if err := Save(path, &domain.InstrumentState{}); !errors.Is(err, domain.ErrIncompleteState) {
		t.Errorf("Save() error = %v, want ErrIncompleteState", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Error("partial state should not be written")
	}
}
