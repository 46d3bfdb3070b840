// Package sim provides an in-process simulated dual-beam microscope.
//
// The simulator implements the beam, source, stage, manipulator, imaging and
// detection facades with simple but physically ordered behaviour: images blur
// as the electron working distance leaves best focus, the needle tip appears
// at its physical offset from the eucentric point, and stage moves can be made
// to miss their target. It backs the CLI's "sim" backend and the engine
// integration tests.
package sim

import (
	"context"
	"log/slog"
	"sync"

	"github.com/yndnr/beamcal/internal/core/domain"
)

// Config configures the simulated instrument.
type Config struct {
	// FocusWorkingDistance is the electron working distance of best focus.
	FocusWorkingDistance float64
	// FocusDepth is the defocus that adds one blur pass to electron images.
	FocusDepth float64
	// StageError is added to x on every absolute move; non-zero means moves never converge.
	StageError float64
	// NeedleOffset is the initial needle tip position relative to the eucentric point (x, y, z meters).
	NeedleOffset [3]float64
	// NeedleGain scales commanded needle moves; 1 is a perfect manipulator.
	NeedleGain float64
	// SaveDir receives TIFF files for captures with Save set and no SavePath.
	SaveDir string
	// CellSize is the checkerboard cell size of the specimen pattern in pixels.
	CellSize int
}

// DefaultConfig returns a well-behaved instrument with the needle 300µm off centre.
func DefaultConfig() Config {
	return Config{
		FocusWorkingDistance: 4.0e-3,
		FocusDepth:           0.02e-3,
		NeedleOffset:         [3]float64{-300e-6, 120e-6, 80e-6},
		NeedleGain:           1,
		CellSize:             4,
	}
}

type beam struct {
	settings domain.BeamChannelSettings
	voltage  float64
	detector [2]string // type, mode
}

// Microscope is a simulated instrument. It is safe for concurrent use.
type Microscope struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	beams   map[domain.Channel]*beam
	active  domain.Channel
	plasma  string
	raw     domain.StagePosition
	coord   domain.CoordinateSystem
	linkZ   float64
	manipCS domain.ManipulatorCoordinateSystem
	needle  [3]float64

	counters Counters
}

// Counters records how often primitive actions ran.
type Counters struct {
	Moves       int
	Homes       int
	Links       int
	AutoFocus   int
	Captures    int
	Saved       int
	NeedleMoves int
}

// New creates a simulated microscope in a typical post-startup state.
func New(cfg Config, logger *slog.Logger) *Microscope {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FocusDepth <= 0 {
		cfg.FocusDepth = DefaultConfig().FocusDepth
	}
	if cfg.NeedleGain == 0 {
		cfg.NeedleGain = 1
	}
	if cfg.CellSize <= 0 {
		cfg.CellSize = DefaultConfig().CellSize
	}

	m := &Microscope{
		cfg:    cfg,
		logger: logger,
		beams: map[domain.Channel]*beam{
			domain.ChannelElectron: {
				settings: domain.BeamChannelSettings{
					Channel:         domain.ChannelElectron,
					WorkingDistance: cfg.FocusWorkingDistance,
					BeamCurrent:     50e-12,
					FieldWidth:      150e-6,
					Resolution:      "1536x1024",
					DwellTime:       1e-6,
				},
				voltage:  2000,
				detector: [2]string{"ETD", "SecondaryElectrons"},
			},
			domain.ChannelIon: {
				settings: domain.BeamChannelSettings{
					Channel:         domain.ChannelIon,
					WorkingDistance: domain.IonEucentricHeight,
					BeamCurrent:     20e-12,
					FieldWidth:      900e-6,
					Resolution:      "1536x1024",
					DwellTime:       1e-6,
				},
				voltage:  30000,
				detector: [2]string{"ICE", "SecondaryIons"},
			},
		},
		active: domain.ChannelElectron,
		plasma: "Argon",
		raw:    domain.StagePosition{X: 1.2e-3, Y: -0.8e-3, Z: 4.1e-3, Tilt: 0.9250245, Rotation: 0.8569},
		linkZ:  0.1e-3,
		needle: cfg.NeedleOffset,
	}
	return m
}

// Counters returns a copy of the action counters.
func (m *Microscope) Counters() Counters {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters
}

// CoordinateSystem returns the current default stage coordinate system.
func (m *Microscope) CoordinateSystem() domain.CoordinateSystem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.coord
}

// Needle returns the needle tip offset from the eucentric point.
func (m *Microscope) Needle() [3]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.needle
}

// SetStageError changes the per-move stage error.
func (m *Microscope) SetStageError(e float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.StageError = e
}

func (m *Microscope) beam(ch domain.Channel) (*beam, error) {
	b, ok := m.beams[ch]
	if !ok {
		return nil, domain.ErrInvalidArgument.WithDetails("channel " + ch.String())
	}
	return b, nil
}

// get runs a read against one channel's beam.
func (m *Microscope) get(ctx context.Context, ch domain.Channel, fn func(b *beam)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.beam(ch)
	if err != nil {
		return err
	}
	fn(b)
	return nil
}

// ============================================================================
// BeamControl
// ============================================================================

func (m *Microscope) WorkingDistance(ctx context.Context, ch domain.Channel) (v float64, err error) {
	err = m.get(ctx, ch, func(b *beam) { v = b.settings.WorkingDistance })
	return v, err
}

func (m *Microscope) SetWorkingDistance(ctx context.Context, ch domain.Channel, v float64) error {
	return m.get(ctx, ch, func(b *beam) { b.settings.WorkingDistance = v })
}

func (m *Microscope) BeamCurrent(ctx context.Context, ch domain.Channel) (v float64, err error) {
	err = m.get(ctx, ch, func(b *beam) { v = b.settings.BeamCurrent })
	return v, err
}

func (m *Microscope) SetBeamCurrent(ctx context.Context, ch domain.Channel, v float64) error {
	return m.get(ctx, ch, func(b *beam) { b.settings.BeamCurrent = v })
}

func (m *Microscope) FieldWidth(ctx context.Context, ch domain.Channel) (v float64, err error) {
	err = m.get(ctx, ch, func(b *beam) { v = b.settings.FieldWidth })
	return v, err
}

func (m *Microscope) SetFieldWidth(ctx context.Context, ch domain.Channel, v float64) error {
	if v <= 0 {
		return domain.ErrInvalidArgument.WithDetails("field width must be positive")
	}
	return m.get(ctx, ch, func(b *beam) { b.settings.FieldWidth = v })
}

func (m *Microscope) Resolution(ctx context.Context, ch domain.Channel) (v string, err error) {
	err = m.get(ctx, ch, func(b *beam) { v = b.settings.Resolution })
	return v, err
}

func (m *Microscope) SetResolution(ctx context.Context, ch domain.Channel, v string) error {
	if _, _, err := domain.ParseResolution(v); err != nil {
		return err
	}
	return m.get(ctx, ch, func(b *beam) { b.settings.Resolution = v })
}

func (m *Microscope) DwellTime(ctx context.Context, ch domain.Channel) (v float64, err error) {
	err = m.get(ctx, ch, func(b *beam) { v = b.settings.DwellTime })
	return v, err
}

func (m *Microscope) SetDwellTime(ctx context.Context, ch domain.Channel, v float64) error {
	return m.get(ctx, ch, func(b *beam) { b.settings.DwellTime = v })
}

// ============================================================================
// SourceControl
// ============================================================================

func (m *Microscope) SetActiveChannel(ctx context.Context, ch domain.Channel) error {
	return m.get(ctx, ch, func(*beam) { m.active = ch })
}

func (m *Microscope) HighVoltage(ctx context.Context, ch domain.Channel) (v float64, err error) {
	err = m.get(ctx, ch, func(b *beam) { v = b.voltage })
	return v, err
}

func (m *Microscope) SetHighVoltage(ctx context.Context, ch domain.Channel, v float64) error {
	return m.get(ctx, ch, func(b *beam) { b.voltage = v })
}

func (m *Microscope) DetectorType(ctx context.Context) (v string, err error) {
	err = m.activeBeam(ctx, func(b *beam) { v = b.detector[0] })
	return v, err
}

func (m *Microscope) SetDetectorType(ctx context.Context, v string) error {
	return m.activeBeam(ctx, func(b *beam) { b.detector[0] = v })
}

func (m *Microscope) DetectorMode(ctx context.Context) (v string, err error) {
	err = m.activeBeam(ctx, func(b *beam) { v = b.detector[1] })
	return v, err
}

func (m *Microscope) SetDetectorMode(ctx context.Context, v string) error {
	return m.activeBeam(ctx, func(b *beam) { b.detector[1] = v })
}

func (m *Microscope) PlasmaGas(ctx context.Context) (v string, err error) {
	err = m.get(ctx, domain.ChannelIon, func(*beam) { v = m.plasma })
	return v, err
}

func (m *Microscope) SetPlasmaGas(ctx context.Context, v string) error {
	return m.get(ctx, domain.ChannelIon, func(*beam) { m.plasma = v })
}

func (m *Microscope) activeBeam(ctx context.Context, fn func(b *beam)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.beams[m.active])
	return nil
}

// ============================================================================
// AutoFunctions
// ============================================================================

// RunAutoFocus brings the electron beam to best focus.
func (m *Microscope) RunAutoFocus(ctx context.Context) error {
	return m.get(ctx, domain.ChannelElectron, func(b *beam) {
		b.settings.WorkingDistance = m.cfg.FocusWorkingDistance
		m.counters.AutoFocus++
	})
}
