package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/yndnr/beamcal/internal/core/domain"
)

// DefaultMaxRestoreAttempts bounds the stage moves issued by Restore.
const DefaultMaxRestoreAttempts = 4

// StateDevice is the subset of the instrument the state engine needs.
type StateDevice interface {
	BeamControl
	StageControl
}

// StateConfig configures snapshot and restore.
type StateConfig struct {
	// MaxRestoreAttempts is the number of absolute moves Restore may issue.
	MaxRestoreAttempts int
	// PositionTolerance is the per-axis convergence tolerance. Zero means exact equality.
	PositionTolerance float64
}

// DefaultStateConfig returns the default restore policy: 4 moves, exact match.
func DefaultStateConfig() StateConfig {
	return StateConfig{MaxRestoreAttempts: DefaultMaxRestoreAttempts}
}

// StateService captures and restores complete instrument states.
type StateService struct {
	dev  StateDevice
	cfg  StateConfig
	opts options
}

// NewStateService creates a new StateService.
func NewStateService(dev StateDevice, cfg StateConfig, opts ...Option) *StateService {
	if cfg.MaxRestoreAttempts < 1 {
		cfg.MaxRestoreAttempts = DefaultMaxRestoreAttempts
	}
	if cfg.PositionTolerance < 0 {
		cfg.PositionTolerance = 0
	}
	return &StateService{dev: dev, cfg: cfg, opts: buildOptions(opts)}
}

// ============================================================================
// Coordinate frame guard
// ============================================================================

// enterRawFrame switches the stage to raw coordinates and returns the function
// that switches it back to specimen coordinates. The release runs on a context
// detached from cancellation so an aborted caller still gets the default frame back.
// If the switch itself fails, the default frame is restored before returning.
func enterRawFrame(ctx context.Context, stage StageControl) (release func() error, err error) {
	release = func() error {
		return stage.SetCoordinateSystem(context.WithoutCancel(ctx), domain.CoordinateSpecimen)
	}
	if err := stage.SetCoordinateSystem(ctx, domain.CoordinateRaw); err != nil {
		if rerr := release(); rerr != nil {
			return nil, errors.Join(err, rerr)
		}
		return nil, err
	}
	return release, nil
}

// RawStagePosition reads the stage position in the raw frame and leaves the
// stage in the specimen frame on every path.
func (s *StateService) RawStagePosition(ctx context.Context) (pos domain.StagePosition, err error) {
	release, err := enterRawFrame(ctx, s.dev)
	if err != nil {
		return pos, fmt.Errorf("switch to raw coordinates: %w", err)
	}
	defer func() {
		if rerr := release(); rerr != nil && err == nil {
			err = fmt.Errorf("restore specimen coordinates: %w", rerr)
		}
	}()

	pos, err = s.dev.StagePosition(ctx)
	if err != nil {
		return pos, fmt.Errorf("read stage position: %w", err)
	}
	pos.CoordinateSystem = domain.CoordinateRaw
	return pos, nil
}

// ============================================================================
// Snapshot
// ============================================================================

// Snapshot captures the raw stage position and both channels' settings.
func (s *StateService) Snapshot(ctx context.Context) (state *domain.InstrumentState, err error) {
	start := s.opts.now()
	defer func() { s.opts.observe("snapshot", start, err) }()

	pos, err := s.RawStagePosition(ctx)
	if err != nil {
		return nil, err
	}

	eb, err := s.readBeam(ctx, domain.ChannelElectron)
	if err != nil {
		return nil, err
	}
	ib, err := s.readBeam(ctx, domain.ChannelIon)
	if err != nil {
		return nil, err
	}

	s.opts.metrics.Snapshots.Inc()
	return &domain.InstrumentState{
		Timestamp:        s.opts.now(),
		AbsolutePosition: pos,
		Electron:         eb,
		Ion:              ib,
	}, nil
}

func (s *StateService) readBeam(ctx context.Context, ch domain.Channel) (domain.BeamChannelSettings, error) {
	b := domain.BeamChannelSettings{Channel: ch}
	var err error

	if b.WorkingDistance, err = s.dev.WorkingDistance(ctx, ch); err != nil {
		return b, fmt.Errorf("read %s working distance: %w", ch, err)
	}
	if b.BeamCurrent, err = s.dev.BeamCurrent(ctx, ch); err != nil {
		return b, fmt.Errorf("read %s beam current: %w", ch, err)
	}
	if b.FieldWidth, err = s.dev.FieldWidth(ctx, ch); err != nil {
		return b, fmt.Errorf("read %s field width: %w", ch, err)
	}
	if b.Resolution, err = s.dev.Resolution(ctx, ch); err != nil {
		return b, fmt.Errorf("read %s resolution: %w", ch, err)
	}
	if b.DwellTime, err = s.dev.DwellTime(ctx, ch); err != nil {
		return b, fmt.Errorf("read %s dwell time: %w", ch, err)
	}
	return b, nil
}

// ============================================================================
// Restore
// ============================================================================

// RestoreReport describes the outcome of a restore.
type RestoreReport struct {
	Converged bool                 `json:"converged"`
	Moves     int                  `json:"moves"`
	Target    domain.StagePosition `json:"target"`
	Final     domain.StagePosition `json:"final"`
}

// Restore drives the instrument to target. The stage is moved first, up to
// MaxRestoreAttempts times, until its raw position matches; a position that never
// matches is logged and reported, not returned as an error. Both channels'
// settings are then written verbatim and the stage is re-linked.
func (s *StateService) Restore(ctx context.Context, target *domain.InstrumentState) (report *RestoreReport, err error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}

	start := s.opts.now()
	defer func() { s.opts.observe("restore", start, err) }()

	log := s.opts.logger
	log.Info("restoring microscope state", "target", target.AbsolutePosition.String())

	report = &RestoreReport{Target: target.AbsolutePosition}
	for {
		pos, err := s.RawStagePosition(ctx)
		if err != nil {
			return report, err
		}
		report.Final = pos

		if pos.Equal(target.AbsolutePosition, s.cfg.PositionTolerance) {
			report.Converged = true
			break
		}
		if report.Moves >= s.cfg.MaxRestoreAttempts {
			break
		}

		log.Info("restoring stage position", "attempt", report.Moves)
		if err := s.dev.SafeAbsoluteMove(ctx, target.AbsolutePosition); err != nil {
			return report, fmt.Errorf("move stage: %w", err)
		}
		report.Moves++
		s.opts.metrics.RestoreMoves.Inc()
	}

	if !report.Converged {
		s.opts.metrics.RestoreNotConverged.Inc()
		log.Warn(domain.ErrNotConverged.Message,
			"code", domain.ErrNotConverged.Code,
			"moves", report.Moves,
			"target", report.Target.String(),
			"actual", report.Final.String())
	}

	for _, ch := range domain.Channels {
		log.Info("restoring beam settings", "channel", ch.String())
		if err := s.writeBeam(ctx, target.Beam(ch)); err != nil {
			return report, err
		}
	}

	if err := s.dev.Link(ctx); err != nil {
		return report, fmt.Errorf("link stage: %w", err)
	}
	log.Info("microscope state restored", "converged", report.Converged, "moves", report.Moves)
	return report, nil
}

func (s *StateService) writeBeam(ctx context.Context, b domain.BeamChannelSettings) error {
	ch := b.Channel
	if err := s.dev.SetWorkingDistance(ctx, ch, b.WorkingDistance); err != nil {
		return fmt.Errorf("set %s working distance: %w", ch, err)
	}
	if err := s.dev.SetBeamCurrent(ctx, ch, b.BeamCurrent); err != nil {
		return fmt.Errorf("set %s beam current: %w", ch, err)
	}
	if err := s.dev.SetFieldWidth(ctx, ch, b.FieldWidth); err != nil {
		return fmt.Errorf("set %s field width: %w", ch, err)
	}
	if err := s.dev.SetResolution(ctx, ch, b.Resolution); err != nil {
		return fmt.Errorf("set %s resolution: %w", ch, err)
	}
	if err := s.dev.SetDwellTime(ctx, ch, b.DwellTime); err != nil {
		return fmt.Errorf("set %s dwell time: %w", ch, err)
	}
	return nil
}
