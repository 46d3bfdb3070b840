package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/yndnr/beamcal/internal/core/domain"
)

// DefaultLinkFieldWidth is the electron field width used by AutoLinkStage.
const DefaultLinkFieldWidth = 150e-6

// HomingDevice is the subset of the instrument the homing engine needs.
type HomingDevice interface {
	StateDevice
	SourceControl
	AutoFunctions
}

// StateLoader loads a persisted instrument state, typically the calibrated default.
type StateLoader interface {
	Load(ctx context.Context) (*domain.InstrumentState, error)
}

// StateLoaderFunc adapts a function to StateLoader.
type StateLoaderFunc func(ctx context.Context) (*domain.InstrumentState, error)

// Load implements StateLoader.
func (f StateLoaderFunc) Load(ctx context.Context) (*domain.InstrumentState, error) { return f(ctx) }

// HomingService composes homing, state restore and linking.
type HomingService struct {
	dev    HomingDevice
	imager Imager
	state  *StateService
	loader StateLoader
	opts   options
}

// NewHomingService creates a new HomingService. loader supplies the default
// state for HomeAndLink and may be nil if callers always pass one.
func NewHomingService(dev HomingDevice, imager Imager, state *StateService, loader StateLoader, opts ...Option) *HomingService {
	return &HomingService{
		dev:    dev,
		imager: imager,
		state:  state,
		loader: loader,
		opts:   buildOptions(opts),
	}
}

// HomeAndLink homes the stage, restores state (or the calibrated default when
// state is nil), then focuses and links the electron beam.
func (s *HomingService) HomeAndLink(ctx context.Context, state *domain.InstrumentState) (report *RestoreReport, err error) {
	start := s.opts.now()
	defer func() { s.opts.observe("home_and_link", start, err) }()

	if state == nil {
		if s.loader == nil {
			return nil, domain.ErrInvalidArgument.WithDetails("no state and no default state loader")
		}
		if state, err = s.loader.Load(ctx); err != nil {
			return nil, fmt.Errorf("load default state: %w", err)
		}
	}
	if err := state.Validate(); err != nil {
		return nil, err
	}

	if err := s.home(ctx); err != nil {
		return nil, err
	}
	if report, err = s.state.Restore(ctx, state); err != nil {
		return report, err
	}

	s.opts.logger.Info("linking stage")
	if err := s.imager.AutoContrast(ctx, domain.ChannelElectron); err != nil {
		return report, fmt.Errorf("auto-contrast: %w", err)
	}
	if err := s.dev.RunAutoFocus(ctx); err != nil {
		return report, fmt.Errorf("auto-focus: %w", err)
	}
	if err := s.dev.Link(ctx); err != nil {
		return report, fmt.Errorf("link stage: %w", err)
	}
	return report, nil
}

// HomeAndRelink homes the stage and returns it to state, or to the state
// captured immediately before homing when state is nil, then links again.
func (s *HomingService) HomeAndRelink(ctx context.Context, state *domain.InstrumentState) (report *RestoreReport, err error) {
	start := s.opts.now()
	defer func() { s.opts.observe("home_and_relink", start, err) }()

	if state == nil {
		if state, err = s.state.Snapshot(ctx); err != nil {
			return nil, err
		}
	}
	if err := state.Validate(); err != nil {
		return nil, err
	}

	if err := s.home(ctx); err != nil {
		return nil, err
	}
	if report, err = s.state.Restore(ctx, state); err != nil {
		return report, err
	}
	// Restore has already linked; linking twice is harmless.
	if err := s.dev.Link(ctx); err != nil {
		return report, fmt.Errorf("link stage: %w", err)
	}
	return report, nil
}

func (s *HomingService) home(ctx context.Context) error {
	s.opts.logger.Info("homing stage")
	if err := s.dev.Home(ctx); err != nil {
		return fmt.Errorf("home stage: %w", err)
	}
	return nil
}

// AutoLinkStage focuses the electron beam at hfw and links the stage z-height.
// The original electron field width is restored on every path.
func (s *HomingService) AutoLinkStage(ctx context.Context, hfw float64) (err error) {
	if hfw == 0 {
		hfw = DefaultLinkFieldWidth
	}
	if hfw < 0 {
		return domain.ErrInvalidArgument.WithDetails("field width must be positive")
	}

	start := s.opts.now()
	defer func() { s.opts.observe("auto_link", start, err) }()

	if err := s.dev.SetActiveChannel(ctx, domain.ChannelElectron); err != nil {
		return fmt.Errorf("activate electron channel: %w", err)
	}
	original, err := s.dev.FieldWidth(ctx, domain.ChannelElectron)
	if err != nil {
		return fmt.Errorf("read field width: %w", err)
	}
	if err := s.dev.SetFieldWidth(ctx, domain.ChannelElectron, hfw); err != nil {
		return fmt.Errorf("set field width: %w", err)
	}
	defer func() {
		if rerr := s.dev.SetFieldWidth(context.WithoutCancel(ctx), domain.ChannelElectron, original); rerr != nil {
			err = errors.Join(err, fmt.Errorf("restore field width: %w", rerr))
		}
	}()

	if err := s.imager.AutoContrast(ctx, domain.ChannelElectron); err != nil {
		return fmt.Errorf("auto-contrast: %w", err)
	}
	if err := s.dev.RunAutoFocus(ctx); err != nil {
		return fmt.Errorf("auto-focus: %w", err)
	}
	if err := s.dev.Link(ctx); err != nil {
		return fmt.Errorf("link stage: %w", err)
	}
	s.opts.logger.Info("stage linked", "hfw", hfw)
	return nil
}
