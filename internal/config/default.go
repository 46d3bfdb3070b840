package config

import (
	"os"
	"path/filepath"
)

// Default configuration values.
const (
	DefaultStateFile          = "calibrated_state.yaml"
	DefaultMaxRestoreAttempts = 4

	DefaultFocusMode  = "sharpness"
	DefaultFocusDelta = 0.05e-3
	DefaultFocusSteps = 5

	DefaultIonFieldWidth         = 900e-6
	DefaultNeedleWorkingDistance = 4.0e-3

	DefaultNeutraliseIterations = 10
	DefaultNeutraliseCadence    = 5

	DefaultLinkFieldWidth = 150e-6

	DefaultJournalRetention = 200

	DefaultBackend = "sim"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// DefaultFieldWidths is the coarse-to-fine alignment sequence.
var DefaultFieldWidths = []float64{2700e-6, 900e-6, 400e-6, 150e-6}

// DefaultDataDir returns the per-user data directory, falling back to the working directory.
func DefaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "beamcal")
	}
	return ".beamcal"
}

// Default returns the default configuration.
func Default() *CalibrationConfig {
	dataDir := DefaultDataDir()
	return &CalibrationConfig{
		State: StateSection{
			File:               filepath.Join(dataDir, DefaultStateFile),
			MaxRestoreAttempts: DefaultMaxRestoreAttempts,
		},
		Focus: FocusSection{
			Mode:   DefaultFocusMode,
			Delta:  DefaultFocusDelta,
			Steps:  DefaultFocusSteps,
			Region: RegionConfig{Left: 0.3, Top: 0.3, Width: 0.4, Height: 0.4},
			Image:  ImageConfig{Resolution: "768x512", DwellTime: 200e-9, FieldWidth: 50e-6},
		},
		Align: AlignSection{
			FieldWidths:           append([]float64(nil), DefaultFieldWidths...),
			IonFieldWidth:         DefaultIonFieldWidth,
			NeedleWorkingDistance: DefaultNeedleWorkingDistance,
			Image:                 ImageConfig{Resolution: "1536x1024", DwellTime: 1e-6},
		},
		Neutralise: NeutraliseSection{
			Iterations:          DefaultNeutraliseIterations,
			Cadence:             DefaultNeutraliseCadence,
			SaveImages:          true,
			DischargeResolution: "768x512",
			DischargeDwellTime:  200e-9,
			Image:               ImageConfig{Resolution: "1536x1024", DwellTime: 1e-6, FieldWidth: 150e-6},
		},
		Stage: StageSection{
			LinkFieldWidth: DefaultLinkFieldWidth,
		},
		Journal: JournalSection{
			Enabled:    true,
			Dir:        filepath.Join(dataDir, "journal"),
			Retention:  DefaultJournalRetention,
			SyncWrites: true,
		},
		Instrument: InstrumentSection{
			Backend: DefaultBackend,
			Sim: SimSection{
				FocusWorkingDistance: 4.0e-3,
				NeedleGain:           1,
			},
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
