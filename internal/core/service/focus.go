package service

import (
	"context"
	"fmt"

	"github.com/yndnr/beamcal/internal/core/domain"
	"github.com/yndnr/beamcal/pkg/acutance"
)

// FocusDevice is the subset of the instrument the focus engine needs.
type FocusDevice interface {
	BeamControl
	SourceControl
	AutoFunctions
}

// FocusConfig holds the sharpness search defaults.
type FocusConfig struct {
	Delta  float64                // working distance step, meters
	Steps  int                    // number of steps; Steps+1 samples are taken
	Region domain.Region          // reduced area captured at each sample
	Image  domain.CaptureSettings // acquisition settings for focus images
}

// DefaultFocusConfig returns the default search: 5 steps of 0.05mm over a
// centred 40% region, imaged at 768x512, 200ns, 50µm.
func DefaultFocusConfig() FocusConfig {
	return FocusConfig{
		Delta:  0.05e-3,
		Steps:  5,
		Region: domain.DefaultFocusRegion,
		Image: domain.CaptureSettings{
			Resolution:   "768x512",
			DwellTime:    200e-9,
			FieldWidth:   50e-6,
			Channel:      domain.ChannelElectron,
			AutoContrast: true,
		},
	}
}

// FocusRequest selects a focus strategy. Zero-valued search fields fall back
// to the service configuration.
type FocusRequest struct {
	Mode   domain.FocusMode
	Delta  float64
	Steps  int
	Region *domain.Region
	Image  *domain.CaptureSettings
}

// FocusSample is one evaluated working distance.
type FocusSample struct {
	WorkingDistance float64 `json:"working_distance"`
	Score           float64 `json:"score"`
}

// FocusReport is the outcome of a focus run. Samples is empty for device-native focus.
type FocusReport struct {
	Mode            string        `json:"mode"`
	Samples         []FocusSample `json:"samples,omitempty"`
	BestIndex       int           `json:"best_index"`
	WorkingDistance float64       `json:"working_distance"`
}

// FocusService focuses the electron beam.
type FocusService struct {
	dev    FocusDevice
	imager Imager
	metric acutance.Metric
	cfg    FocusConfig
	opts   options
}

// NewFocusService creates a new FocusService. A nil metric selects the default acutance.
func NewFocusService(dev FocusDevice, imager Imager, metric acutance.Metric, cfg FocusConfig, opts ...Option) *FocusService {
	if metric == nil {
		metric = acutance.New()
	}
	return &FocusService{
		dev:    dev,
		imager: imager,
		metric: metric,
		cfg:    cfg,
		opts:   buildOptions(opts),
	}
}

// Focus runs the requested strategy.
func (s *FocusService) Focus(ctx context.Context, req FocusRequest) (report *FocusReport, err error) {
	start := s.opts.now()
	defer func() { s.opts.observe("focus", start, err) }()

	switch req.Mode {
	case domain.FocusDevice:
		return s.deviceFocus(ctx)
	case domain.FocusSharpness:
		return s.sharpnessSearch(ctx, req)
	case domain.FocusDoG:
		return nil, domain.ErrFocusModeNotSupported.WithDetails(req.Mode.String())
	default:
		return nil, domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("focus mode %d", int(req.Mode)))
	}
}

func (s *FocusService) deviceFocus(ctx context.Context) (*FocusReport, error) {
	s.opts.logger.Info("running device auto-focus")
	if err := s.dev.SetActiveChannel(ctx, domain.ChannelElectron); err != nil {
		return nil, fmt.Errorf("activate electron channel: %w", err)
	}
	if err := s.dev.RunAutoFocus(ctx); err != nil {
		return nil, fmt.Errorf("auto-focus: %w", err)
	}
	wd, err := s.dev.WorkingDistance(ctx, domain.ChannelElectron)
	if err != nil {
		return nil, fmt.Errorf("read working distance: %w", err)
	}
	return &FocusReport{Mode: domain.FocusDevice.String(), WorkingDistance: wd}, nil
}

// SearchGrid returns the steps+1 equally spaced working distances centred on wd0.
func SearchGrid(wd0, delta float64, steps int) []float64 {
	lo := wd0 - float64(steps)*delta/2
	hi := wd0 + float64(steps)*delta/2
	grid := make([]float64, steps+1)
	for i := range grid {
		grid[i] = lo + float64(i)*(hi-lo)/float64(steps)
	}
	grid[steps] = hi
	return grid
}

// ArgMax returns the index of the first maximum of scores, or -1 if empty.
func ArgMax(scores []float64) int {
	best := -1
	for i, v := range scores {
		if best < 0 || v > scores[best] {
			best = i
		}
	}
	return best
}

func (s *FocusService) sharpnessSearch(ctx context.Context, req FocusRequest) (*FocusReport, error) {
	delta, steps := s.cfg.Delta, s.cfg.Steps
	if req.Delta != 0 {
		delta = req.Delta
	}
	if req.Steps != 0 {
		steps = req.Steps
	}
	if delta <= 0 {
		return nil, domain.ErrInvalidArgument.WithDetails("focus step must be positive")
	}
	if steps < 1 {
		return nil, domain.ErrInvalidArgument.WithDetails("focus steps must be at least 1")
	}

	region := s.cfg.Region
	if req.Region != nil {
		region = *req.Region
	}
	if err := region.Validate(); err != nil {
		return nil, err
	}
	settings := s.cfg.Image
	if req.Image != nil {
		settings = *req.Image
	}
	settings.Channel = domain.ChannelElectron
	settings.Save = false
	settings.Label = ""
	settings.ReducedArea = &region
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	log := s.opts.logger
	wd0, err := s.dev.WorkingDistance(ctx, domain.ChannelElectron)
	if err != nil {
		return nil, fmt.Errorf("read working distance: %w", err)
	}
	log.Info("sharpness focus search", "initial_wd", wd0, "delta", delta, "steps", steps)

	grid := SearchGrid(wd0, delta, steps)
	scores := make([]float64, len(grid))
	samples := make([]FocusSample, len(grid))
	for i, wd := range grid {
		if err := s.dev.SetWorkingDistance(ctx, domain.ChannelElectron, wd); err != nil {
			return nil, fmt.Errorf("set working distance: %w", err)
		}
		img, err := s.imager.Capture(ctx, settings)
		if err != nil {
			return nil, fmt.Errorf("capture focus image %d: %w", i, err)
		}
		s.opts.metrics.RecordCapture(settings.Channel.String(), false)

		scores[i] = s.metric.Score(img.Pixels)
		samples[i] = FocusSample{WorkingDistance: wd, Score: scores[i]}
		s.opts.metrics.FocusSamples.Inc()
		log.Debug("focus sample", "index", i, "wd", wd, "score", scores[i])
	}

	best := ArgMax(scores)
	if err := s.dev.SetWorkingDistance(ctx, domain.ChannelElectron, grid[best]); err != nil {
		return nil, fmt.Errorf("set working distance: %w", err)
	}
	s.opts.metrics.FocusScore.Set(scores[best])
	s.opts.metrics.FocusWorkingDistance.Set(grid[best])
	log.Info("focus search complete", "index", best, "wd", grid[best], "score", scores[best])

	return &FocusReport{
		Mode:            domain.FocusSharpness.String(),
		Samples:         samples,
		BestIndex:       best,
		WorkingDistance: grid[best],
	}, nil
}
