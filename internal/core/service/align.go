package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/yndnr/beamcal/internal/core/domain"
)

// AlignDevice is the subset of the instrument the alignment engine needs.
type AlignDevice interface {
	BeamControl
	StageControl
	ManipulatorControl
}

// AlignConfig holds the alignment defaults.
type AlignConfig struct {
	// FieldWidths is the descending field-of-view sequence swept by the electron pass.
	FieldWidths []float64
	// IonFieldWidth is the fixed field width of the ion pass.
	IonFieldWidth float64
	// NeedleWorkingDistance is the electron working distance used while calibrating the needle.
	NeedleWorkingDistance float64
	// Image supplies resolution and dwell time for alignment images.
	Image domain.CaptureSettings
}

// DefaultAlignConfig returns the default coarse-to-fine sequence
// 2700, 900, 400 and 150µm with a 900µm ion pass.
func DefaultAlignConfig() AlignConfig {
	return AlignConfig{
		FieldWidths:           []float64{2700e-6, 900e-6, 400e-6, 150e-6},
		IonFieldWidth:         900e-6,
		NeedleWorkingDistance: 4.0e-3,
		Image: domain.CaptureSettings{
			Resolution:   "1536x1024",
			DwellTime:    1e-6,
			Channel:      domain.ChannelElectron,
			AutoContrast: true,
		},
	}
}

// alignmentFeatures are requested from the detector on every pass.
var alignmentFeatures = []domain.FeatureType{domain.FeatureNeedleTip, domain.FeatureImageCentre}

// AlignmentMove is one correctional needle move.
type AlignmentMove struct {
	Channel    string  `json:"channel"`
	FieldWidth float64 `json:"hfw"`
	PixelDX    float64 `json:"pixel_dx"`
	PixelDY    float64 `json:"pixel_dy"`
	DX         float64 `json:"dx"`
	DY         float64 `json:"dy"`
}

// AlignmentReport lists the moves issued by an alignment run.
type AlignmentReport struct {
	Completed bool            `json:"completed"`
	Scales    []float64       `json:"scales"`
	Moves     []AlignmentMove `json:"moves"`
}

// AlignService aligns the needle tip to the image centre.
type AlignService struct {
	dev      AlignDevice
	imager   Imager
	detector Detector
	cfg      AlignConfig
	opts     options
}

// NewAlignService creates a new AlignService.
func NewAlignService(dev AlignDevice, imager Imager, detector Detector, cfg AlignConfig, opts ...Option) *AlignService {
	return &AlignService{
		dev:      dev,
		imager:   imager,
		detector: detector,
		cfg:      cfg,
		opts:     buildOptions(opts),
	}
}

// ============================================================================
// Single scale
// ============================================================================

// AlignEucentric runs one alignment scale at the given electron field width:
// an electron pass correcting both axes, an ion pass correcting only the
// vertical axis, then a pair of reference images.
func (s *AlignService) AlignEucentric(ctx context.Context, fieldWidth float64, interactive bool) (report *AlignmentReport, err error) {
	start := s.opts.now()
	defer func() { s.opts.observe("align_eucentric", start, err) }()

	report = &AlignmentReport{}
	if err := s.alignScale(ctx, report, fieldWidth, interactive); err != nil {
		return report, s.abort(fieldWidth, err)
	}
	report.Completed = true
	return report, nil
}

func (s *AlignService) alignScale(ctx context.Context, report *AlignmentReport, fieldWidth float64, interactive bool) error {
	if fieldWidth <= 0 {
		return domain.ErrInvalidArgument.WithDetails("field width must be positive")
	}
	s.opts.logger.Info("aligning needle", "hfw", fieldWidth)

	move, err := s.alignChannel(ctx, domain.ChannelElectron, fieldWidth, true, interactive)
	if err != nil {
		return err
	}
	report.Moves = append(report.Moves, move)

	// The ion view cannot resolve the horizontal offset without parallax.
	move, err = s.alignChannel(ctx, domain.ChannelIon, s.cfg.IonFieldWidth, false, interactive)
	if err != nil {
		return err
	}
	report.Moves = append(report.Moves, move)

	ref := s.cfg.Image
	ref.FieldWidth = fieldWidth
	if _, err := s.TakeReferenceImages(ctx, ref); err != nil {
		return err
	}
	report.Scales = append(report.Scales, fieldWidth)
	return nil
}

// alignChannel captures, detects the needle tip and image centre, and moves the
// needle by the physical offset between them. Image y grows downward, the
// needle's y axis grows upward.
func (s *AlignService) alignChannel(ctx context.Context, ch domain.Channel, fieldWidth float64, moveX, interactive bool) (AlignmentMove, error) {
	move := AlignmentMove{Channel: ch.String(), FieldWidth: fieldWidth}

	settings := s.cfg.Image
	settings.Channel = ch
	settings.FieldWidth = fieldWidth
	settings.Save = false
	settings.Label = ""
	img, err := s.imager.Capture(ctx, settings)
	if err != nil {
		return move, fmt.Errorf("capture %s alignment image: %w", ch, err)
	}
	s.opts.metrics.RecordCapture(ch.String(), false)

	det, err := s.detector.Detect(ctx, img, alignmentFeatures, interactive)
	if err != nil {
		return move, fmt.Errorf("detect features: %w", err)
	}
	move.PixelDX, move.PixelDY, err = det.Offset(domain.FeatureNeedleTip, domain.FeatureImageCentre)
	if err != nil {
		return move, err
	}

	ps := img.PixelSize()
	if moveX {
		move.DX = move.PixelDX * ps
	}
	move.DY = -move.PixelDY * ps

	s.opts.logger.Debug("needle correction", "channel", move.Channel, "dx", move.DX, "dy", move.DY)
	if err := s.dev.MoveManipulatorCorrected(ctx, move.DX, move.DY, ch); err != nil {
		return move, fmt.Errorf("move needle: %w", err)
	}
	s.opts.metrics.RecordAlignmentMove(move.Channel)
	return move, nil
}

// abort converts a missing feature into an incomplete alignment. Other errors pass through.
func (s *AlignService) abort(fieldWidth float64, err error) error {
	if !errors.Is(err, domain.ErrFeatureNotFound) {
		return err
	}
	s.opts.metrics.AlignmentAborted.Inc()
	s.opts.logger.Warn("alignment aborted", "hfw", fieldWidth, "error", err)
	return domain.ErrAlignmentIncomplete.
		WithDetails(fmt.Sprintf("feature not found at hfw %.0fµm", fieldWidth*1e6)).
		WithCause(err)
}

// ============================================================================
// Multi-scale
// ============================================================================

// AlignMultiScale runs AlignEucentric at each field width in order. A missing
// feature aborts the sequence: no smaller scale runs after it.
func (s *AlignService) AlignMultiScale(ctx context.Context, fieldWidths []float64, interactive bool) (report *AlignmentReport, err error) {
	if len(fieldWidths) == 0 {
		fieldWidths = s.cfg.FieldWidths
	}
	if len(fieldWidths) == 0 {
		return nil, domain.ErrInvalidArgument.WithDetails("no field widths")
	}

	start := s.opts.now()
	defer func() { s.opts.observe("align_multiscale", start, err) }()

	report = &AlignmentReport{}
	for _, hfw := range fieldWidths {
		if err := s.alignScale(ctx, report, hfw, interactive); err != nil {
			return report, s.abort(hfw, err)
		}
	}
	report.Completed = true
	return report, nil
}

// ============================================================================
// Needle calibration
// ============================================================================

// CalibrateNeedle focuses the electron beam at the needle working distance,
// takes reference images at the coarsest field width and runs the multi-scale
// alignment. The original working distance is restored and the stage re-linked
// whether or not alignment completes.
func (s *AlignService) CalibrateNeedle(ctx context.Context, interactive bool) (report *AlignmentReport, err error) {
	if len(s.cfg.FieldWidths) == 0 {
		return nil, domain.ErrInvalidArgument.WithDetails("no field widths")
	}

	if err := s.dev.SetManipulatorCoordinateSystem(ctx, domain.ManipulatorStage); err != nil {
		return nil, fmt.Errorf("set manipulator coordinate system: %w", err)
	}

	wd, err := s.dev.WorkingDistance(ctx, domain.ChannelElectron)
	if err != nil {
		return nil, fmt.Errorf("read working distance: %w", err)
	}
	if err := s.dev.SetWorkingDistance(ctx, domain.ChannelElectron, s.cfg.NeedleWorkingDistance); err != nil {
		return nil, fmt.Errorf("set needle working distance: %w", err)
	}
	defer func() {
		if rerr := s.refocus(context.WithoutCancel(ctx), wd); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()
	if err := s.dev.Link(ctx); err != nil {
		return nil, fmt.Errorf("link stage: %w", err)
	}

	ref := s.cfg.Image
	ref.FieldWidth = s.cfg.FieldWidths[0]
	if _, err := s.TakeReferenceImages(ctx, ref); err != nil {
		return nil, err
	}

	report, err = s.AlignMultiScale(ctx, s.cfg.FieldWidths, interactive)
	if err != nil {
		return report, err
	}
	s.opts.logger.Info("needle calibration finished", "moves", len(report.Moves))
	return report, nil
}

func (s *AlignService) refocus(ctx context.Context, wd float64) error {
	if err := s.dev.SetWorkingDistance(ctx, domain.ChannelElectron, wd); err != nil {
		return fmt.Errorf("restore working distance: %w", err)
	}
	if err := s.dev.Link(ctx); err != nil {
		return fmt.Errorf("link stage: %w", err)
	}
	return nil
}

// ============================================================================
// Reference images
// ============================================================================

// TakeReferenceImages captures one electron and one ion image with otherwise
// identical settings.
func (s *AlignService) TakeReferenceImages(ctx context.Context, settings domain.CaptureSettings) ([2]*domain.Image, error) {
	return takeReferenceImages(ctx, s.imager, s.opts, settings)
}

func takeReferenceImages(ctx context.Context, imager Imager, o options, settings domain.CaptureSettings) ([2]*domain.Image, error) {
	var images [2]*domain.Image
	for i, ch := range domain.Channels {
		settings.Channel = ch
		img, err := imager.Capture(ctx, settings)
		if err != nil {
			return images, fmt.Errorf("capture %s reference image: %w", ch, err)
		}
		o.metrics.RecordCapture(ch.String(), settings.Save)
		images[i] = img
	}
	return images, nil
}
