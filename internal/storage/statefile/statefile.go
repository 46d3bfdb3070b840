// Package statefile persists instrument states as YAML documents.
//
// The document is a flat mapping with nested beam blocks:
//
//	timestamp: 1709294400.123456
//	absolute_position: {x: .., y: .., z: .., r: .., t: .., coordinate_system: RAW}
//	eb_settings: {beam_type: ELECTRON, working_distance: .., beam_current: .., hfw: .., resolution: 1536x1024, dwell_time: ..}
//	ib_settings: {beam_type: ION, ...}
//
// Every key is mandatory; a document with a missing key is rejected rather
// than restored partially.
package statefile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yndnr/beamcal/internal/core/domain"
)

// DefaultFileName is the calibrated state file name inside the config directory.
const DefaultFileName = "calibrated_state.yaml"

type stateDoc struct {
	Timestamp        *float64     `yaml:"timestamp"`
	AbsolutePosition *positionDoc `yaml:"absolute_position"`
	EBSettings       *beamDoc     `yaml:"eb_settings"`
	IBSettings       *beamDoc     `yaml:"ib_settings"`
}

type positionDoc struct {
	X                *float64 `yaml:"x"`
	Y                *float64 `yaml:"y"`
	Z                *float64 `yaml:"z"`
	R                *float64 `yaml:"r"`
	T                *float64 `yaml:"t"`
	CoordinateSystem string   `yaml:"coordinate_system"`
}

type beamDoc struct {
	BeamType        string   `yaml:"beam_type"`
	WorkingDistance *float64 `yaml:"working_distance"`
	BeamCurrent     *float64 `yaml:"beam_current"`
	HFW             *float64 `yaml:"hfw"`
	Resolution      string   `yaml:"resolution"`
	DwellTime       *float64 `yaml:"dwell_time"`
}

func ptr(v float64) *float64 { return &v }

// Encode writes state as YAML.
func Encode(w io.Writer, state *domain.InstrumentState) error {
	if err := state.Validate(); err != nil {
		return err
	}
	p := state.AbsolutePosition
	doc := stateDoc{
		Timestamp: ptr(float64(state.Timestamp.UnixNano()) / 1e9),
		AbsolutePosition: &positionDoc{
			X:                ptr(p.X),
			Y:                ptr(p.Y),
			Z:                ptr(p.Z),
			R:                ptr(p.Rotation),
			T:                ptr(p.Tilt),
			CoordinateSystem: strings.ToUpper(p.CoordinateSystem.String()),
		},
		EBSettings: encodeBeam(state.Electron),
		IBSettings: encodeBeam(state.Ion),
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("statefile: encode: %w", err)
	}
	return enc.Close()
}

func encodeBeam(b domain.BeamChannelSettings) *beamDoc {
	return &beamDoc{
		BeamType:        strings.ToUpper(b.Channel.String()),
		WorkingDistance: ptr(b.WorkingDistance),
		BeamCurrent:     ptr(b.BeamCurrent),
		HFW:             ptr(b.FieldWidth),
		Resolution:      b.Resolution,
		DwellTime:       ptr(b.DwellTime),
	}
}

// Decode reads a YAML state document. Missing keys yield domain.ErrIncompleteState.
func Decode(r io.Reader) (*domain.InstrumentState, error) {
	var doc stateDoc
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, domain.ErrIncompleteState.WithDetails("empty document")
		}
		return nil, domain.ErrInvalidArgument.WithDetails("statefile: malformed yaml").WithCause(err)
	}

	if doc.Timestamp == nil {
		return nil, missing("timestamp")
	}
	pos, err := decodePosition(doc.AbsolutePosition)
	if err != nil {
		return nil, err
	}
	eb, err := decodeBeam("eb_settings", doc.EBSettings)
	if err != nil {
		return nil, err
	}
	ib, err := decodeBeam("ib_settings", doc.IBSettings)
	if err != nil {
		return nil, err
	}

	state := &domain.InstrumentState{
		Timestamp:        fromEpochSeconds(*doc.Timestamp),
		AbsolutePosition: pos,
		Electron:         eb,
		Ion:              ib,
	}
	if err := state.Validate(); err != nil {
		return nil, err
	}
	return state, nil
}

func missing(key string) error {
	return domain.ErrIncompleteState.WithDetails("missing " + key)
}

func decodePosition(p *positionDoc) (domain.StagePosition, error) {
	var pos domain.StagePosition
	if p == nil {
		return pos, missing("absolute_position")
	}
	for _, f := range []struct {
		key string
		v   *float64
		dst *float64
	}{
		{"x", p.X, &pos.X},
		{"y", p.Y, &pos.Y},
		{"z", p.Z, &pos.Z},
		{"r", p.R, &pos.Rotation},
		{"t", p.T, &pos.Tilt},
	} {
		if f.v == nil {
			return pos, missing("absolute_position." + f.key)
		}
		*f.dst = *f.v
	}
	if p.CoordinateSystem == "" {
		return pos, missing("absolute_position.coordinate_system")
	}
	if err := pos.CoordinateSystem.UnmarshalText([]byte(p.CoordinateSystem)); err != nil {
		return pos, err
	}
	return pos, nil
}

func decodeBeam(key string, b *beamDoc) (domain.BeamChannelSettings, error) {
	var out domain.BeamChannelSettings
	if b == nil {
		return out, missing(key)
	}
	if b.BeamType == "" {
		return out, missing(key + ".beam_type")
	}
	ch, err := domain.ParseChannel(b.BeamType)
	if err != nil {
		return out, err
	}
	out.Channel = ch

	for _, f := range []struct {
		key string
		v   *float64
		dst *float64
	}{
		{"working_distance", b.WorkingDistance, &out.WorkingDistance},
		{"beam_current", b.BeamCurrent, &out.BeamCurrent},
		{"hfw", b.HFW, &out.FieldWidth},
		{"dwell_time", b.DwellTime, &out.DwellTime},
	} {
		if f.v == nil {
			return out, missing(key + "." + f.key)
		}
		*f.dst = *f.v
	}
	if b.Resolution == "" {
		return out, missing(key + ".resolution")
	}
	out.Resolution = b.Resolution
	return out, nil
}

func fromEpochSeconds(s float64) time.Time {
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
}

// ============================================================================
// Files
// ============================================================================

// Load reads a state file. A missing file yields domain.ErrStateNotFound.
func Load(path string) (*domain.InstrumentState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrStateNotFound.WithDetails(path).WithCause(err)
		}
		return nil, fmt.Errorf("statefile: read %s: %w", path, err)
	}
	state, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("statefile: %s: %w", path, err)
	}
	return state, nil
}

// Save writes state to path atomically, creating parent directories.
func Save(path string, state *domain.InstrumentState) error {
	var buf bytes.Buffer
	if err := Encode(&buf, state); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("statefile: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".state-*.yaml")
	if err != nil {
		return fmt.Errorf("statefile: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("statefile: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("statefile: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("statefile: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("statefile: rename: %w", err)
	}
	return nil
}

// Loader loads the state stored at Path. It satisfies the homing engine's StateLoader.
type Loader struct {
	Path string
}

// Load reads the state file.
func (l Loader) Load(ctx context.Context) (*domain.InstrumentState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Load(l.Path)
}
