package service

import (
	"context"
	"fmt"

	"github.com/yndnr/beamcal/internal/core/domain"
)

// runTimestampLayout formats the run prefix of neutralisation labels (yymmdd.HHMMSS).
const runTimestampLayout = "060102.150405"

// NeutraliseConfig holds the charge neutralisation defaults.
type NeutraliseConfig struct {
	Iterations int
	// Cadence persists every Cadence-th discharge image, starting with the first.
	Cadence int
	// SaveImages enables persistence on cadence iterations.
	SaveImages bool
	// DischargeResolution and DischargeDwellTime define the fast discharge scan.
	DischargeResolution string
	DischargeDwellTime  float64
}

// DefaultNeutraliseConfig returns 10 iterations saving every 5th at 768x512 / 200ns.
func DefaultNeutraliseConfig() NeutraliseConfig {
	return NeutraliseConfig{
		Iterations:          10,
		Cadence:             5,
		SaveImages:          true,
		DischargeResolution: "768x512",
		DischargeDwellTime:  200e-9,
	}
}

// NeutraliseRequest parameterizes one run. Discharge, when set, replaces the
// derived discharge settings; Iterations zero means the configured count.
type NeutraliseRequest struct {
	Image      domain.CaptureSettings
	Discharge  *domain.CaptureSettings
	Iterations int
}

// NeutraliseReport summarizes a run.
type NeutraliseReport struct {
	RunLabel   string   `json:"run_label"`
	Iterations int      `json:"iterations"`
	Saved      []int    `json:"saved_iterations"`
	Labels     []string `json:"labels"`
}

// NeutraliseService dissipates specimen charge by repeated fast scanning.
type NeutraliseService struct {
	imager Imager
	cfg    NeutraliseConfig
	opts   options
}

// NewNeutraliseService creates a new NeutraliseService.
func NewNeutraliseService(imager Imager, cfg NeutraliseConfig, opts ...Option) *NeutraliseService {
	if cfg.Cadence < 1 {
		cfg.Cadence = 1
	}
	return &NeutraliseService{imager: imager, cfg: cfg, opts: buildOptions(opts)}
}

// DischargeSettings derives the fast scan settings from the primary settings:
// field width, channel and save path are inherited, contrast and gamma are off.
func (s *NeutraliseService) DischargeSettings(primary domain.CaptureSettings) domain.CaptureSettings {
	return domain.CaptureSettings{
		Resolution: s.cfg.DischargeResolution,
		DwellTime:  s.cfg.DischargeDwellTime,
		FieldWidth: primary.FieldWidth,
		Channel:    primary.Channel,
		SavePath:   primary.SavePath,
	}
}

// SaveOnIteration reports whether discharge image i is persisted.
func (s *NeutraliseService) SaveOnIteration(i int) bool {
	return s.cfg.SaveImages && i%s.cfg.Cadence == 0
}

// Neutralise captures a "start" image, the discharge sequence and an "end"
// image. Any capture error aborts the run.
func (s *NeutraliseService) Neutralise(ctx context.Context, req NeutraliseRequest) (report *NeutraliseReport, err error) {
	if err := req.Image.Validate(); err != nil {
		return nil, err
	}
	n := req.Iterations
	if n == 0 {
		n = s.cfg.Iterations
	}
	if n < 0 {
		return nil, domain.ErrInvalidArgument.WithDetails("iterations must not be negative")
	}

	start := s.opts.now()
	defer func() { s.opts.observe("neutralise", start, err) }()

	ts := start.Format(runTimestampLayout)
	report = &NeutraliseReport{RunLabel: ts, Iterations: n}

	primary := req.Image
	primary.Label = ts + "_charge_neutralisation_start"
	if err := s.capture(ctx, report, primary); err != nil {
		return report, err
	}

	discharge := s.DischargeSettings(req.Image)
	if req.Discharge != nil {
		discharge = *req.Discharge
	}
	for i := 0; i < n; i++ {
		if i%s.cfg.Cadence == 0 {
			discharge.Label = fmt.Sprintf("%s_charge_neutralisation_%d", ts, i)
		}
		discharge.Save = s.SaveOnIteration(i)
		if discharge.Save {
			report.Saved = append(report.Saved, i)
		}
		if err := s.capture(ctx, report, discharge); err != nil {
			return report, fmt.Errorf("discharge %d: %w", i, err)
		}
	}

	primary.Label = ts + "_charge_neutralisation_end"
	if err := s.capture(ctx, report, primary); err != nil {
		return report, err
	}

	s.opts.logger.Info("charge neutralised", "iterations", n, "saved", len(report.Saved))
	return report, nil
}

func (s *NeutraliseService) capture(ctx context.Context, report *NeutraliseReport, settings domain.CaptureSettings) error {
	if _, err := s.imager.Capture(ctx, settings); err != nil {
		return fmt.Errorf("capture %q: %w", settings.Label, err)
	}
	s.opts.metrics.RecordCapture(settings.Channel.String(), settings.Save)
	if settings.Save {
		report.Labels = append(report.Labels, settings.Label)
	}
	return nil
}
