package config

import (
	"errors"
	"strings"
	"testing"

	"github.com/yndnr/beamcal/internal/core/domain"
	"github.com/yndnr/beamcal/internal/core/service"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if err := Verify(cfg); err != nil {
		t.Fatalf("Verify(Default()) error = %v", err)
	}
	if cfg.State.MaxRestoreAttempts != 4 {
		t.Errorf("MaxRestoreAttempts = %d, want 4", cfg.State.MaxRestoreAttempts)
	}
	if cfg.State.PositionTolerance != 0 {
		t.Errorf("PositionTolerance = %v, want exact match", cfg.State.PositionTolerance)
	}
	if len(cfg.Align.FieldWidths) != 4 || cfg.Align.FieldWidths[0] != 2700e-6 {
		t.Errorf("FieldWidths = %v", cfg.Align.FieldWidths)
	}
	if !cfg.Neutralise.SaveImages {
		t.Error("SaveImages should default to true")
	}

	// The default slice must not alias the package variable.
	cfg.Align.FieldWidths[0] = 1
	if DefaultFieldWidths[0] != 2700e-6 {
		t.Error("Default() leaked DefaultFieldWidths")
	}
}

func TestDefault_MatchesEngineDefaults(t *testing.T) {
	cfg := Default()

	if got, want := cfg.StateConfig(), service.DefaultStateConfig(); got != want {
		t.Errorf("StateConfig() = %+v, want %+v", got, want)
	}
	if got, want := cfg.NeutraliseConfig(), service.DefaultNeutraliseConfig(); got != want {
		t.Errorf("NeutraliseConfig() = %+v, want %+v", got, want)
	}

	focus, want := cfg.FocusConfig(), service.DefaultFocusConfig()
	if focus.Delta != want.Delta || focus.Steps != want.Steps || focus.Region != want.Region {
		t.Errorf("FocusConfig() = %+v, want %+v", focus, want)
	}
	if focus.Image.Resolution != want.Image.Resolution || focus.Image.FieldWidth != want.Image.FieldWidth {
		t.Errorf("focus image = %+v, want %+v", focus.Image, want.Image)
	}

	align, wantAlign := cfg.AlignConfig(), service.DefaultAlignConfig()
	if align.IonFieldWidth != wantAlign.IonFieldWidth || align.NeedleWorkingDistance != wantAlign.NeedleWorkingDistance {
		t.Errorf("AlignConfig() = %+v, want %+v", align, wantAlign)
	}
	for i := range wantAlign.FieldWidths {
		if align.FieldWidths[i] != wantAlign.FieldWidths[i] {
			t.Errorf("FieldWidths[%d] = %v, want %v", i, align.FieldWidths[i], wantAlign.FieldWidths[i])
		}
	}
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*CalibrationConfig)
		wantKey string
	}{
		{"attempts", func(c *CalibrationConfig) { c.State.MaxRestoreAttempts = 0 }, "state.max_restore_attempts"},
		{"tolerance", func(c *CalibrationConfig) { c.State.PositionTolerance = -1 }, "state.position_tolerance"},
		{"focus mode", func(c *CalibrationConfig) { c.Focus.Mode = "laser" }, "focus.mode"},
		{"focus steps", func(c *CalibrationConfig) { c.Focus.Steps = 0 }, "focus.steps"},
		{"region", func(c *CalibrationConfig) { c.Focus.Region.Left = 0.8 }, "focus.region"},
		{"empty widths", func(c *CalibrationConfig) { c.Align.FieldWidths = nil }, "align.field_widths"},
		{"ascending widths", func(c *CalibrationConfig) { c.Align.FieldWidths = []float64{150e-6, 900e-6} }, "must descend"},
		{"cadence", func(c *CalibrationConfig) { c.Neutralise.Cadence = 0 }, "neutralise.cadence"},
		{"resolution", func(c *CalibrationConfig) { c.Neutralise.Image.Resolution = "big" }, "neutralise.image.resolution"},
		{"journal dir", func(c *CalibrationConfig) { c.Journal.Dir = "" }, "journal.dir"},
		{"backend", func(c *CalibrationConfig) { c.Instrument.Backend = "autoscript" }, "instrument.backend"},
		{"log format", func(c *CalibrationConfig) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Verify(cfg)
			if err == nil {
				t.Fatal("Verify() should fail")
			}
			if !strings.Contains(err.Error(), tt.wantKey) {
				t.Errorf("Verify() error = %v, want mention of %q", err, tt.wantKey)
			}
		})
	}
}

func TestVerify_ReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.State.MaxRestoreAttempts = 0
	cfg.Neutralise.Cadence = 0

	err := Verify(cfg)
	for _, key := range []string{"state.max_restore_attempts", "neutralise.cadence"} {
		if err == nil || !strings.Contains(err.Error(), key) {
			t.Errorf("Verify() error = %v, want mention of %q", err, key)
		}
	}
}

func TestVerify_JournalDisabled(t *testing.T) {
	cfg := Default()
	cfg.Journal.Enabled = false
	cfg.Journal.Dir = ""
	if err := Verify(cfg); err != nil {
		t.Errorf("Verify() error = %v, want nil with journal disabled", err)
	}
}

func TestVerify_RegionError(t *testing.T) {
	cfg := Default()
	cfg.Focus.Region.Width = 0
	if err := Verify(cfg); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("Verify() error = %v, want ErrInvalidArgument in chain", err)
	}
}

func TestNeutraliseImage(t *testing.T) {
	cfg := Default()
	cfg.Neutralise.SavePath = "/data/images"

	img := cfg.NeutraliseImage()
	if img.Channel != domain.ChannelElectron || !img.Save || img.SavePath != "/data/images" {
		t.Errorf("NeutraliseImage() = %+v", img)
	}
	if err := img.Validate(); err != nil {
		t.Errorf("NeutraliseImage() invalid: %v", err)
	}
}

func TestSimConfig(t *testing.T) {
	cfg := Default()
	cfg.Instrument.Sim.StageError = 1e-6
	cfg.Instrument.Sim.NeedleGain = 0

	s := cfg.SimConfig()
	if s.StageError != 1e-6 {
		t.Errorf("StageError = %v", s.StageError)
	}
	if s.NeedleGain != 1 {
		t.Errorf("NeedleGain = %v, want default 1", s.NeedleGain)
	}
}
