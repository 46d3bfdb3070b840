package config

import (
	"github.com/yndnr/beamcal/internal/core/domain"
	"github.com/yndnr/beamcal/internal/core/service"
	"github.com/yndnr/beamcal/internal/instrument/pacing"
	"github.com/yndnr/beamcal/internal/instrument/sim"
	"github.com/yndnr/beamcal/internal/storage/journal"
)

func (r RegionConfig) region() domain.Region {
	return domain.Region{Left: r.Left, Top: r.Top, Width: r.Width, Height: r.Height}
}

func (i ImageConfig) capture(ch domain.Channel) domain.CaptureSettings {
	return domain.CaptureSettings{
		Resolution:   i.Resolution,
		DwellTime:    i.DwellTime,
		FieldWidth:   i.FieldWidth,
		Channel:      ch,
		AutoContrast: true,
	}
}

// StateConfig returns the snapshot and restore policy.
func (c *CalibrationConfig) StateConfig() service.StateConfig {
	return service.StateConfig{
		MaxRestoreAttempts: c.State.MaxRestoreAttempts,
		PositionTolerance:  c.State.PositionTolerance,
	}
}

// FocusConfig returns the sharpness search configuration.
func (c *CalibrationConfig) FocusConfig() service.FocusConfig {
	return service.FocusConfig{
		Delta:  c.Focus.Delta,
		Steps:  c.Focus.Steps,
		Region: c.Focus.Region.region(),
		Image:  c.Focus.Image.capture(domain.ChannelElectron),
	}
}

// AlignConfig returns the needle alignment configuration.
func (c *CalibrationConfig) AlignConfig() service.AlignConfig {
	return service.AlignConfig{
		FieldWidths:           append([]float64(nil), c.Align.FieldWidths...),
		IonFieldWidth:         c.Align.IonFieldWidth,
		NeedleWorkingDistance: c.Align.NeedleWorkingDistance,
		Image:                 c.Align.Image.capture(domain.ChannelElectron),
	}
}

// NeutraliseConfig returns the charge neutralisation configuration.
func (c *CalibrationConfig) NeutraliseConfig() service.NeutraliseConfig {
	return service.NeutraliseConfig{
		Iterations:          c.Neutralise.Iterations,
		Cadence:             c.Neutralise.Cadence,
		SaveImages:          c.Neutralise.SaveImages,
		DischargeResolution: c.Neutralise.DischargeResolution,
		DischargeDwellTime:  c.Neutralise.DischargeDwellTime,
	}
}

// NeutraliseImage returns the primary image settings of a neutralisation run.
func (c *CalibrationConfig) NeutraliseImage() domain.CaptureSettings {
	s := c.Neutralise.Image.capture(domain.ChannelElectron)
	s.Save = c.Neutralise.SaveImages
	s.SavePath = c.Neutralise.SavePath
	return s
}

// JournalConfig returns the state journal configuration.
func (c *CalibrationConfig) JournalConfig() journal.Config {
	cfg := journal.DefaultConfig(c.Journal.Dir)
	cfg.Retention = c.Journal.Retention
	cfg.SyncWrites = c.Journal.SyncWrites
	return cfg
}

// PacingConfig returns the instrument command budget.
func (c *CalibrationConfig) PacingConfig() pacing.Config {
	return pacing.Config{
		CommandsPerSecond: c.Instrument.CommandsPerSecond,
		Burst:             c.Instrument.CommandBurst,
	}
}

// SimConfig returns the simulated instrument configuration.
func (c *CalibrationConfig) SimConfig() sim.Config {
	cfg := sim.DefaultConfig()
	s := c.Instrument.Sim
	if s.FocusWorkingDistance > 0 {
		cfg.FocusWorkingDistance = s.FocusWorkingDistance
	}
	if s.NeedleGain > 0 {
		cfg.NeedleGain = s.NeedleGain
	}
	cfg.StageError = s.StageError
	cfg.SaveDir = s.SaveDir
	return cfg
}
