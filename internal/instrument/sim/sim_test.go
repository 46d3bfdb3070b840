package sim

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/tiff"

	"github.com/yndnr/beamcal/internal/core/domain"
	"github.com/yndnr/beamcal/internal/core/service"
	"github.com/yndnr/beamcal/internal/telemetry/metric"
	"github.com/yndnr/beamcal/pkg/acutance"
)

var (
	_ service.Device   = (*Microscope)(nil)
	_ service.Imager   = (*Microscope)(nil)
	_ service.Detector = (*Microscope)(nil)
)

func newTest(t *testing.T, mutate func(*Config)) *Microscope {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func engineOptions() []service.Option {
	return []service.Option{
		service.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		service.WithMetrics(metric.NewRegistry()),
	}
}

func TestStage_Frames(t *testing.T) {
	m := newTest(t, nil)
	ctx := context.Background()

	if err := m.SetCoordinateSystem(ctx, domain.CoordinateRaw); err != nil {
		t.Fatal(err)
	}
	raw, err := m.StagePosition(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.SetCoordinateSystem(ctx, domain.CoordinateSpecimen); err != nil {
		t.Fatal(err)
	}
	spec, _ := m.StagePosition(ctx)
	if spec.CoordinateSystem != domain.CoordinateSpecimen {
		t.Errorf("frame = %v, want specimen", spec.CoordinateSystem)
	}
	if spec.X != raw.X || spec.Z == raw.Z {
		t.Errorf("specimen %+v should differ from raw %+v in z only", spec, raw)
	}

	// A specimen-frame move lands at the same raw position the specimen value maps to.
	if err := m.SafeAbsoluteMove(ctx, spec); err != nil {
		t.Fatal(err)
	}
	m.SetCoordinateSystem(ctx, domain.CoordinateRaw)
	again, _ := m.StagePosition(ctx)
	if !again.Equal(raw, 1e-12) {
		t.Errorf("raw after specimen move = %+v, want %+v", again, raw)
	}
}

func TestStage_HomeAndLink(t *testing.T) {
	m := newTest(t, nil)
	ctx := context.Background()

	if err := m.Home(ctx); err != nil {
		t.Fatal(err)
	}
	if err := m.Link(ctx); err != nil {
		t.Fatal(err)
	}
	c := m.Counters()
	if c.Homes != 1 || c.Links != 1 {
		t.Errorf("counters = %+v", c)
	}
	pos, _ := m.StagePosition(ctx)
	if pos.X != 0 || pos.Y != 0 {
		t.Errorf("after home = %+v, want origin", pos)
	}
}

func TestCancelledContext(t *testing.T) {
	m := newTest(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := m.StagePosition(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("StagePosition() error = %v, want context.Canceled", err)
	}
	if err := m.SetWorkingDistance(ctx, domain.ChannelElectron, 1); !errors.Is(err, context.Canceled) {
		t.Errorf("SetWorkingDistance() error = %v, want context.Canceled", err)
	}
}

func TestCapture_BlurFollowsDefocus(t *testing.T) {
	m := newTest(t, nil)
	ctx := context.Background()
	sharpness := acutance.New()
	settings := domain.CaptureSettings{
		Resolution: "128x96", DwellTime: 1e-7, FieldWidth: 50e-6, Channel: domain.ChannelElectron,
	}

	last := math.Inf(1)
	for _, offset := range []float64{0, 0.06e-3, 0.12e-3} {
		if err := m.SetWorkingDistance(ctx, domain.ChannelElectron, 4.0e-3+offset); err != nil {
			t.Fatal(err)
		}
		img, err := m.Capture(ctx, settings)
		if err != nil {
			t.Fatalf("Capture() error = %v", err)
		}
		score := sharpness.Score(img.Pixels)
		if score >= last {
			t.Errorf("offset %v: score %v not below %v", offset, score, last)
		}
		last = score
	}

	fw, _ := m.FieldWidth(ctx, domain.ChannelElectron)
	if fw != settings.FieldWidth {
		t.Errorf("capture should apply hfw, got %v", fw)
	}
}

func TestCapture_ReducedArea(t *testing.T) {
	m := newTest(t, nil)
	region := domain.Region{Left: 0.25, Top: 0.25, Width: 0.5, Height: 0.5}
	img, err := m.Capture(context.Background(), domain.CaptureSettings{
		Resolution: "200x100", DwellTime: 1e-7, FieldWidth: 100e-6, Channel: domain.ChannelIon, ReducedArea: &region,
	})
	if err != nil {
		t.Fatal(err)
	}
	if img.Width() != 100 || img.Height() != 50 {
		t.Errorf("size = %dx%d, want 100x50", img.Width(), img.Height())
	}
	if ps := img.PixelSize(); math.Abs(ps-0.5e-6) > 1e-15 {
		t.Errorf("pixel size = %v, want 0.5e-6", ps)
	}
}

func TestCapture_SavesTIFF(t *testing.T) {
	dir := t.TempDir()
	m := newTest(t, func(c *Config) { c.SaveDir = dir })

	_, err := m.Capture(context.Background(), domain.CaptureSettings{
		Resolution: "64x48", DwellTime: 1e-7, FieldWidth: 10e-6, Channel: domain.ChannelIon,
		Save: true, Label: "ref_001",
	})
	if err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(filepath.Join(dir, "ref_001_ib.tif"))
	if err != nil {
		t.Fatalf("saved image missing: %v", err)
	}
	defer f.Close()
	img, err := tiff.Decode(f)
	if err != nil {
		t.Fatalf("tiff.Decode() error = %v", err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 48 {
		t.Errorf("bounds = %v", b)
	}
	if m.Counters().Saved != 1 {
		t.Errorf("saved = %d, want 1", m.Counters().Saved)
	}
}

func TestDetect(t *testing.T) {
	m := newTest(t, func(c *Config) { c.NeedleOffset = [3]float64{10e-6, 5e-6, -20e-6} })
	ctx := context.Background()
	features := []domain.FeatureType{domain.FeatureNeedleTip, domain.FeatureImageCentre}

	img, _ := m.Capture(ctx, domain.CaptureSettings{
		Resolution: "100x100", DwellTime: 1e-7, FieldWidth: 100e-6, Channel: domain.ChannelElectron,
	})
	det, err := m.Detect(ctx, img, features, false)
	if err != nil {
		t.Fatal(err)
	}
	dx, dy, err := det.Offset(domain.FeatureNeedleTip, domain.FeatureImageCentre)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(dx+10) > 1e-9 || math.Abs(dy-5) > 1e-9 {
		t.Errorf("electron offset = (%v, %v), want (-10, 5)", dx, dy)
	}

	ion, _ := m.Capture(ctx, domain.CaptureSettings{
		Resolution: "100x100", DwellTime: 1e-7, FieldWidth: 100e-6, Channel: domain.ChannelIon,
	})
	det, _ = m.Detect(ctx, ion, features, true)
	_, dy, _ = det.Offset(domain.FeatureNeedleTip, domain.FeatureImageCentre)
	if math.Abs(dy+20) > 1e-9 {
		t.Errorf("ion dy = %v, want -20", dy)
	}

	t.Run("outside field", func(t *testing.T) {
		small, _ := m.Capture(ctx, domain.CaptureSettings{
			Resolution: "100x100", DwellTime: 1e-7, FieldWidth: 10e-6, Channel: domain.ChannelElectron,
		})
		det, _ := m.Detect(ctx, small, features, false)
		if _, err := det.Lookup(domain.FeatureNeedleTip); !errors.Is(err, domain.ErrFeatureNotFound) {
			t.Errorf("Lookup() error = %v, want ErrFeatureNotFound", err)
		}
	})
}

// ============================================================================
// Engines against the simulator
// ============================================================================

func TestFocusService_FindsBestFocus(t *testing.T) {
	m := newTest(t, func(c *Config) { c.FocusWorkingDistance = 4.075e-3 })
	ctx := context.Background()
	if err := m.SetWorkingDistance(ctx, domain.ChannelElectron, 4.0e-3); err != nil {
		t.Fatal(err)
	}

	svc := service.NewFocusService(m, m, nil, service.DefaultFocusConfig(), engineOptions()...)
	report, err := svc.Focus(ctx, service.FocusRequest{Mode: domain.FocusSharpness})
	if err != nil {
		t.Fatalf("Focus() error = %v", err)
	}
	if report.BestIndex != 4 {
		t.Errorf("best index = %d, want 4 (samples %+v)", report.BestIndex, report.Samples)
	}
	wd, _ := m.WorkingDistance(ctx, domain.ChannelElectron)
	if math.Abs(wd-4.075e-3) > 1e-9 {
		t.Errorf("final wd = %v, want 4.075e-3", wd)
	}
}

func TestFocusService_DeviceMode(t *testing.T) {
	m := newTest(t, nil)
	ctx := context.Background()
	m.SetWorkingDistance(ctx, domain.ChannelElectron, 7e-3)

	svc := service.NewFocusService(m, m, nil, service.DefaultFocusConfig(), engineOptions()...)
	report, err := svc.Focus(ctx, service.FocusRequest{Mode: domain.FocusDevice})
	if err != nil {
		t.Fatal(err)
	}
	if report.WorkingDistance != 4.0e-3 || m.Counters().AutoFocus != 1 {
		t.Errorf("report = %+v, counters = %+v", report, m.Counters())
	}
}

func alignConfig() service.AlignConfig {
	cfg := service.DefaultAlignConfig()
	cfg.Image.Resolution = "384x256"
	return cfg
}

func TestAlignService_ConvergesAcrossScales(t *testing.T) {
	m := newTest(t, func(c *Config) { c.NeedleGain = 0.8 })
	ctx := context.Background()

	svc := service.NewAlignService(m, m, m, alignConfig(), engineOptions()...)
	report, err := svc.CalibrateNeedle(ctx, false)
	if err != nil {
		t.Fatalf("CalibrateNeedle() error = %v", err)
	}
	if !report.Completed || len(report.Scales) != 4 {
		t.Errorf("report = %+v", report)
	}
	for axis, v := range m.Needle() {
		if math.Abs(v) > 1e-6 {
			t.Errorf("needle axis %d = %v, want within 1µm of centre", axis, v)
		}
	}
	wd, _ := m.WorkingDistance(ctx, domain.ChannelElectron)
	if wd != 4.0e-3 {
		t.Errorf("wd after calibration = %v, want restored 4.0e-3", wd)
	}
}

func TestAlignService_AbortsWhenNeedleOutOfView(t *testing.T) {
	m := newTest(t, func(c *Config) { c.NeedleOffset = [3]float64{5e-3, 0, 0} })

	svc := service.NewAlignService(m, m, m, alignConfig(), engineOptions()...)
	report, err := svc.AlignMultiScale(context.Background(), nil, false)
	if !errors.Is(err, domain.ErrAlignmentIncomplete) {
		t.Fatalf("AlignMultiScale() error = %v, want ErrAlignmentIncomplete", err)
	}
	if report == nil || report.Completed {
		t.Errorf("report = %+v", report)
	}
	if m.Counters().NeedleMoves != 0 {
		t.Errorf("needle moved %d times", m.Counters().NeedleMoves)
	}
}

func TestStateService_StuckStage(t *testing.T) {
	m := newTest(t, nil)
	ctx := context.Background()
	svc := service.NewStateService(m, service.DefaultStateConfig(), engineOptions()...)

	state, err := svc.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if m.CoordinateSystem() != domain.CoordinateSpecimen {
		t.Errorf("frame after snapshot = %v, want specimen", m.CoordinateSystem())
	}

	m.SetStageError(2e-6)
	report, err := svc.Restore(ctx, state)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if report.Converged || report.Moves != service.DefaultMaxRestoreAttempts {
		t.Errorf("report = %+v, want 4 moves without convergence", report)
	}

	m.SetStageError(0)
	report, err = svc.Restore(ctx, state)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Converged || report.Moves != 1 {
		t.Errorf("report = %+v, want converged after one move", report)
	}
}
