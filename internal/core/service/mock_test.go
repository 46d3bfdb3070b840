package service

import (
	"context"
	"image"
	"io"
	"log/slog"

	"github.com/yndnr/beamcal/internal/core/domain"
	"github.com/yndnr/beamcal/internal/telemetry/metric"
)

// mockDevice is an in-memory instrument used by the engine tests.
// It records every mutating call in order.
type mockDevice struct {
	beams  map[domain.Channel]*domain.BeamChannelSettings
	hv     map[domain.Channel]float64
	active domain.Channel

	detectorType string
	detectorMode string
	plasmaGas    string

	pos   domain.StagePosition
	coord domain.CoordinateSystem
	stuck bool // moves never reach their target

	manipCS     domain.ManipulatorCoordinateSystem
	needleMoves []needleMove

	moves      int
	homes      int
	links      int
	autoFocus  int
	contrasts  []domain.Channel
	coordCalls []domain.CoordinateSystem
	calls      []string

	errSetRaw      error
	errStagePos    error
	errCapture     error
	captureFailAt  int // fail the n-th capture (1-based); 0 disables
	captures       []domain.CaptureSettings
	captureHook    func(settings domain.CaptureSettings)
	detectionQueue []domain.Detection
	detections     int
	detectInteract []bool
}

type needleMove struct {
	dx, dy float64
	ch     domain.Channel
}

func newMockDevice() *mockDevice {
	return &mockDevice{
		beams: map[domain.Channel]*domain.BeamChannelSettings{
			domain.ChannelElectron: {
				Channel:         domain.ChannelElectron,
				WorkingDistance: 4.0e-3,
				BeamCurrent:     50e-12,
				FieldWidth:      150e-6,
				Resolution:      "1536x1024",
				DwellTime:       1e-6,
			},
			domain.ChannelIon: {
				Channel:         domain.ChannelIon,
				WorkingDistance: 16.5e-3,
				BeamCurrent:     20e-12,
				FieldWidth:      900e-6,
				Resolution:      "1536x1024",
				DwellTime:       1e-6,
			},
		},
		hv:           map[domain.Channel]float64{domain.ChannelElectron: 2000, domain.ChannelIon: 30000},
		active:       domain.ChannelElectron,
		detectorType: "ETD",
		detectorMode: "SecondaryElectrons",
		plasmaGas:    "Argon",
		pos:          domain.StagePosition{X: 1e-3, Y: 2e-3, Z: 3e-3, Tilt: 0.1, Rotation: 0.2},
	}
}

func (m *mockDevice) record(call string) { m.calls = append(m.calls, call) }

// ============================================================================
// BeamControl
// ============================================================================

func (m *mockDevice) WorkingDistance(ctx context.Context, ch domain.Channel) (float64, error) {
	return m.beams[ch].WorkingDistance, nil
}

func (m *mockDevice) SetWorkingDistance(ctx context.Context, ch domain.Channel, v float64) error {
	m.record("set_wd:" + ch.String())
	m.beams[ch].WorkingDistance = v
	return nil
}

func (m *mockDevice) BeamCurrent(ctx context.Context, ch domain.Channel) (float64, error) {
	return m.beams[ch].BeamCurrent, nil
}

func (m *mockDevice) SetBeamCurrent(ctx context.Context, ch domain.Channel, v float64) error {
	m.record("set_current:" + ch.String())
	m.beams[ch].BeamCurrent = v
	return nil
}

func (m *mockDevice) FieldWidth(ctx context.Context, ch domain.Channel) (float64, error) {
	return m.beams[ch].FieldWidth, nil
}

func (m *mockDevice) SetFieldWidth(ctx context.Context, ch domain.Channel, v float64) error {
	m.record("set_hfw:" + ch.String())
	m.beams[ch].FieldWidth = v
	return nil
}

func (m *mockDevice) Resolution(ctx context.Context, ch domain.Channel) (string, error) {
	return m.beams[ch].Resolution, nil
}

func (m *mockDevice) SetResolution(ctx context.Context, ch domain.Channel, v string) error {
	m.record("set_resolution:" + ch.String())
	m.beams[ch].Resolution = v
	return nil
}

func (m *mockDevice) DwellTime(ctx context.Context, ch domain.Channel) (float64, error) {
	return m.beams[ch].DwellTime, nil
}

func (m *mockDevice) SetDwellTime(ctx context.Context, ch domain.Channel, v float64) error {
	m.record("set_dwell:" + ch.String())
	m.beams[ch].DwellTime = v
	return nil
}

// ============================================================================
// SourceControl
// ============================================================================

func (m *mockDevice) SetActiveChannel(ctx context.Context, ch domain.Channel) error {
	m.record("activate:" + ch.String())
	m.active = ch
	return nil
}

func (m *mockDevice) HighVoltage(ctx context.Context, ch domain.Channel) (float64, error) {
	return m.hv[ch], nil
}

func (m *mockDevice) SetHighVoltage(ctx context.Context, ch domain.Channel, v float64) error {
	m.record("set_hv:" + ch.String())
	m.hv[ch] = v
	return nil
}

func (m *mockDevice) DetectorType(ctx context.Context) (string, error) { return m.detectorType, nil }

func (m *mockDevice) SetDetectorType(ctx context.Context, v string) error {
	m.record("set_detector_type")
	m.detectorType = v
	return nil
}

func (m *mockDevice) DetectorMode(ctx context.Context) (string, error) { return m.detectorMode, nil }

func (m *mockDevice) SetDetectorMode(ctx context.Context, v string) error {
	m.record("set_detector_mode")
	m.detectorMode = v
	return nil
}

func (m *mockDevice) PlasmaGas(ctx context.Context) (string, error) { return m.plasmaGas, nil }

func (m *mockDevice) SetPlasmaGas(ctx context.Context, v string) error {
	m.record("set_plasma_gas")
	m.plasmaGas = v
	return nil
}

// ============================================================================
// StageControl
// ============================================================================

func (m *mockDevice) StagePosition(ctx context.Context) (domain.StagePosition, error) {
	if m.errStagePos != nil {
		return domain.StagePosition{}, m.errStagePos
	}
	p := m.pos
	p.CoordinateSystem = m.coord
	return p, nil
}

func (m *mockDevice) SetCoordinateSystem(ctx context.Context, cs domain.CoordinateSystem) error {
	m.coordCalls = append(m.coordCalls, cs)
	if cs == domain.CoordinateRaw && m.errSetRaw != nil {
		return m.errSetRaw
	}
	m.coord = cs
	return nil
}

func (m *mockDevice) SafeAbsoluteMove(ctx context.Context, pos domain.StagePosition) error {
	m.record("move")
	m.moves++
	if m.stuck {
		m.pos.X += 1e-6
		return nil
	}
	m.pos = pos
	return nil
}

func (m *mockDevice) Home(ctx context.Context) error {
	m.record("home")
	m.homes++
	m.pos = domain.StagePosition{}
	return nil
}

func (m *mockDevice) Link(ctx context.Context) error {
	m.record("link")
	m.links++
	return nil
}

// ============================================================================
// ManipulatorControl / AutoFunctions
// ============================================================================

func (m *mockDevice) SetManipulatorCoordinateSystem(ctx context.Context, cs domain.ManipulatorCoordinateSystem) error {
	m.record("manipulator_cs")
	m.manipCS = cs
	return nil
}

func (m *mockDevice) MoveManipulatorCorrected(ctx context.Context, dx, dy float64, ch domain.Channel) error {
	m.record("needle_move:" + ch.String())
	m.needleMoves = append(m.needleMoves, needleMove{dx: dx, dy: dy, ch: ch})
	return nil
}

func (m *mockDevice) RunAutoFocus(ctx context.Context) error {
	m.record("autofocus")
	m.autoFocus++
	return nil
}

// ============================================================================
// Imager / Detector
// ============================================================================

func (m *mockDevice) Capture(ctx context.Context, settings domain.CaptureSettings) (*domain.Image, error) {
	m.captures = append(m.captures, settings)
	if m.errCapture != nil && m.captureFailAt == len(m.captures) {
		return nil, m.errCapture
	}
	if m.captureHook != nil {
		m.captureHook(settings)
	}
	w, h, err := domain.ParseResolution(settings.Resolution)
	if err != nil {
		return nil, err
	}
	return &domain.Image{Pixels: image.NewGray(image.Rect(0, 0, w, h)), Settings: settings}, nil
}

func (m *mockDevice) AutoContrast(ctx context.Context, ch domain.Channel) error {
	m.record("autocontrast:" + ch.String())
	m.contrasts = append(m.contrasts, ch)
	return nil
}

// Detect pops the next queued detection. An empty queue detects nothing.
func (m *mockDevice) Detect(ctx context.Context, img *domain.Image, features []domain.FeatureType, interactive bool) (domain.Detection, error) {
	m.detections++
	m.detectInteract = append(m.detectInteract, interactive)
	if len(m.detectionQueue) == 0 {
		det := make(domain.Detection, len(features))
		for i, f := range features {
			det[i] = domain.Feature{Type: f}
		}
		return det, nil
	}
	det := m.detectionQueue[0]
	m.detectionQueue = m.detectionQueue[1:]
	return det, nil
}

// ============================================================================
// Helpers
// ============================================================================

func tipAndCentre(tipX, tipY, cx, cy float64) domain.Detection {
	return domain.Detection{
		{Type: domain.FeatureNeedleTip, Location: &domain.PixelPoint{X: tipX, Y: tipY}},
		{Type: domain.FeatureImageCentre, Location: &domain.PixelPoint{X: cx, Y: cy}},
	}
}

func tipMissing(cx, cy float64) domain.Detection {
	return domain.Detection{
		{Type: domain.FeatureNeedleTip},
		{Type: domain.FeatureImageCentre, Location: &domain.PixelPoint{X: cx, Y: cy}},
	}
}

func testOptions(reg *metric.Registry) []Option {
	return []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(reg),
	}
}

func countCalls(calls []string, name string) int {
	n := 0
	for _, c := range calls {
		if c == name {
			n++
		}
	}
	return n
}

func indexOf(calls []string, name string) int {
	for i, c := range calls {
		if c == name {
			return i
		}
	}
	return -1
}
