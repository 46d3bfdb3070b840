package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yndnr/beamcal/internal/core/domain"
)

// Verify validates the configuration. All problems are reported together.
func Verify(cfg *CalibrationConfig) error {
	var errs []error
	errs = append(errs, verifyState(&cfg.State)...)
	errs = append(errs, verifyFocus(&cfg.Focus)...)
	errs = append(errs, verifyAlign(&cfg.Align)...)
	errs = append(errs, verifyNeutralise(&cfg.Neutralise)...)
	errs = append(errs, verifyRest(cfg)...)
	return errors.Join(errs...)
}

func verifyState(cfg *StateSection) []error {
	var errs []error
	if cfg.MaxRestoreAttempts < 1 {
		errs = append(errs, errors.New("state.max_restore_attempts must be at least 1"))
	}
	if cfg.PositionTolerance < 0 {
		errs = append(errs, errors.New("state.position_tolerance must not be negative"))
	}
	return errs
}

func verifyImage(key string, img ImageConfig, needWidth bool) []error {
	var errs []error
	if _, _, err := domain.ParseResolution(img.Resolution); err != nil {
		errs = append(errs, fmt.Errorf("%s.resolution: %w", key, err))
	}
	if img.DwellTime <= 0 {
		errs = append(errs, fmt.Errorf("%s.dwell_time must be positive", key))
	}
	if needWidth && img.FieldWidth <= 0 {
		errs = append(errs, fmt.Errorf("%s.hfw must be positive", key))
	}
	return errs
}

func verifyFocus(cfg *FocusSection) []error {
	var errs []error
	if _, err := domain.ParseFocusMode(cfg.Mode); err != nil {
		errs = append(errs, fmt.Errorf("focus.mode: %w", err))
	}
	if cfg.Delta <= 0 {
		errs = append(errs, errors.New("focus.delta must be positive"))
	}
	if cfg.Steps < 1 {
		errs = append(errs, errors.New("focus.steps must be at least 1"))
	}
	if err := cfg.Region.region().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("focus.region: %w", err))
	}
	return append(errs, verifyImage("focus.image", cfg.Image, true)...)
}

func verifyAlign(cfg *AlignSection) []error {
	var errs []error
	if len(cfg.FieldWidths) == 0 {
		errs = append(errs, errors.New("align.field_widths must not be empty"))
	}
	for i, w := range cfg.FieldWidths {
		if w <= 0 {
			errs = append(errs, fmt.Errorf("align.field_widths[%d] must be positive", i))
		}
		if i > 0 && w >= cfg.FieldWidths[i-1] {
			errs = append(errs, fmt.Errorf("align.field_widths must descend, got %g after %g", w, cfg.FieldWidths[i-1]))
		}
	}
	if cfg.IonFieldWidth <= 0 {
		errs = append(errs, errors.New("align.ion_field_width must be positive"))
	}
	if cfg.NeedleWorkingDistance <= 0 {
		errs = append(errs, errors.New("align.needle_working_distance must be positive"))
	}
	return append(errs, verifyImage("align.image", cfg.Image, false)...)
}

func verifyNeutralise(cfg *NeutraliseSection) []error {
	var errs []error
	if cfg.Iterations < 0 {
		errs = append(errs, errors.New("neutralise.iterations must not be negative"))
	}
	if cfg.Cadence < 1 {
		errs = append(errs, errors.New("neutralise.cadence must be at least 1"))
	}
	errs = append(errs, verifyImage("neutralise.discharge", ImageConfig{
		Resolution: cfg.DischargeResolution,
		DwellTime:  cfg.DischargeDwellTime,
	}, false)...)
	return append(errs, verifyImage("neutralise.image", cfg.Image, true)...)
}

func verifyRest(cfg *CalibrationConfig) []error {
	var errs []error
	if cfg.Stage.LinkFieldWidth < 0 {
		errs = append(errs, errors.New("stage.link_field_width must not be negative"))
	}
	if cfg.Journal.Enabled {
		if cfg.Journal.Dir == "" {
			errs = append(errs, errors.New("journal.dir is required when the journal is enabled"))
		}
		if cfg.Journal.Retention < 0 {
			errs = append(errs, errors.New("journal.retention must not be negative"))
		}
	}
	if b := strings.ToLower(cfg.Instrument.Backend); b != "sim" {
		errs = append(errs, fmt.Errorf("instrument.backend %q is not available", cfg.Instrument.Backend))
	}
	if cfg.Instrument.CommandsPerSecond < 0 {
		errs = append(errs, errors.New("instrument.commands_per_second must not be negative"))
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be json or text", cfg.Log.Format))
	}
	return errs
}
