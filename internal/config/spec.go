package config

// CalibrationConfig is the root configuration for beamcal.
type CalibrationConfig struct {
	State      StateSection      `koanf:"state"`
	Focus      FocusSection      `koanf:"focus"`
	Align      AlignSection      `koanf:"align"`
	Neutralise NeutraliseSection `koanf:"neutralise"`
	Stage      StageSection      `koanf:"stage"`
	Journal    JournalSection    `koanf:"journal"`
	Instrument InstrumentSection `koanf:"instrument"`
	Metrics    MetricsSection    `koanf:"metrics"`
	Log        LogSection        `koanf:"log"`
}

// StateSection configures snapshot and restore.
type StateSection struct {
	// File is the calibrated state file used when no path is given on the command line.
	File               string  `koanf:"file"`
	MaxRestoreAttempts int     `koanf:"max_restore_attempts"`
	PositionTolerance  float64 `koanf:"position_tolerance"`
}

// RegionConfig is a normalized sub-rectangle of the scan field.
type RegionConfig struct {
	Left   float64 `koanf:"left"`
	Top    float64 `koanf:"top"`
	Width  float64 `koanf:"width"`
	Height float64 `koanf:"height"`
}

// ImageConfig holds the acquisition parameters of one image kind.
type ImageConfig struct {
	Resolution string  `koanf:"resolution"`
	DwellTime  float64 `koanf:"dwell_time"`
	FieldWidth float64 `koanf:"hfw"`
}

// FocusSection configures the sharpness search.
type FocusSection struct {
	Mode   string       `koanf:"mode"`
	Delta  float64      `koanf:"delta"`
	Steps  int          `koanf:"steps"`
	Region RegionConfig `koanf:"region"`
	Image  ImageConfig  `koanf:"image"`
}

// AlignSection configures needle alignment.
type AlignSection struct {
	// FieldWidths are the electron field widths of the multi-scale sequence, coarse to fine.
	FieldWidths           []float64   `koanf:"field_widths"`
	IonFieldWidth         float64     `koanf:"ion_field_width"`
	NeedleWorkingDistance float64     `koanf:"needle_working_distance"`
	Image                 ImageConfig `koanf:"image"`
}

// NeutraliseSection configures charge neutralisation.
type NeutraliseSection struct {
	Iterations          int         `koanf:"iterations"`
	Cadence             int         `koanf:"cadence"`
	SaveImages          bool        `koanf:"save_images"`
	SavePath            string      `koanf:"save_path"`
	DischargeResolution string      `koanf:"discharge_resolution"`
	DischargeDwellTime  float64     `koanf:"discharge_dwell_time"`
	Image               ImageConfig `koanf:"image"`
}

// StageSection configures homing and linking.
type StageSection struct {
	LinkFieldWidth float64 `koanf:"link_field_width"`
}

// JournalSection configures the state history.
type JournalSection struct {
	Enabled    bool   `koanf:"enabled"`
	Dir        string `koanf:"dir"`
	Retention  int    `koanf:"retention"`
	SyncWrites bool   `koanf:"sync_writes"`
}

// InstrumentSection selects and tunes the instrument backend.
type InstrumentSection struct {
	Backend           string     `koanf:"backend"`
	CommandsPerSecond float64    `koanf:"commands_per_second"`
	CommandBurst      int        `koanf:"command_burst"`
	Sim               SimSection `koanf:"sim"`
}

// SimSection tunes the simulated instrument.
type SimSection struct {
	FocusWorkingDistance float64 `koanf:"focus_working_distance"`
	StageError           float64 `koanf:"stage_error"`
	NeedleGain           float64 `koanf:"needle_gain"`
	SaveDir              string  `koanf:"save_dir"`
}

// MetricsSection configures the Prometheus endpoint. An empty address disables it.
type MetricsSection struct {
	Addr string `koanf:"addr"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
