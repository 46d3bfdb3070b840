package service

import (
	"context"
	"fmt"

	"github.com/yndnr/beamcal/internal/core/domain"
)

// BeamSystemDevice is the subset of the instrument needed for source and detector state.
type BeamSystemDevice interface {
	BeamControl
	SourceControl
}

// BeamSystemService reads and writes per-channel source and detector settings.
type BeamSystemService struct {
	dev  BeamSystemDevice
	opts options
}

// NewBeamSystemService creates a new BeamSystemService.
func NewBeamSystemService(dev BeamSystemDevice, opts ...Option) *BeamSystemService {
	return &BeamSystemService{dev: dev, opts: buildOptions(opts)}
}

// BeamSystemState activates ch and reads its source and detector settings.
// The detector fields describe the detector of the now active channel.
func (s *BeamSystemService) BeamSystemState(ctx context.Context, ch domain.Channel) (*domain.DetectorSystemSettings, error) {
	if !ch.Valid() {
		return nil, domain.ErrInvalidArgument.WithDetails("channel")
	}
	if err := s.dev.SetActiveChannel(ctx, ch); err != nil {
		return nil, fmt.Errorf("activate %s channel: %w", ch, err)
	}

	st := &domain.DetectorSystemSettings{Channel: ch, EucentricHeight: ch.EucentricHeight()}
	var err error
	if st.Voltage, err = s.dev.HighVoltage(ctx, ch); err != nil {
		return nil, fmt.Errorf("read %s high voltage: %w", ch, err)
	}
	if st.Current, err = s.dev.BeamCurrent(ctx, ch); err != nil {
		return nil, fmt.Errorf("read %s beam current: %w", ch, err)
	}
	if st.DetectorType, err = s.dev.DetectorType(ctx); err != nil {
		return nil, fmt.Errorf("read detector type: %w", err)
	}
	if st.DetectorMode, err = s.dev.DetectorMode(ctx); err != nil {
		return nil, fmt.Errorf("read detector mode: %w", err)
	}
	if ch == domain.ChannelIon {
		if st.PlasmaGas, err = s.dev.PlasmaGas(ctx); err != nil {
			return nil, fmt.Errorf("read plasma gas: %w", err)
		}
	}
	return st, nil
}

// SetBeamSystemState activates the settings' channel and writes them back.
// Plasma gas is only written for the ion channel, and only when set.
func (s *BeamSystemService) SetBeamSystemState(ctx context.Context, st *domain.DetectorSystemSettings) error {
	if st == nil || !st.Channel.Valid() {
		return domain.ErrInvalidArgument.WithDetails("beam system settings: channel")
	}
	ch := st.Channel
	if err := s.dev.SetActiveChannel(ctx, ch); err != nil {
		return fmt.Errorf("activate %s channel: %w", ch, err)
	}
	if err := s.dev.SetHighVoltage(ctx, ch, st.Voltage); err != nil {
		return fmt.Errorf("set %s high voltage: %w", ch, err)
	}
	if err := s.dev.SetBeamCurrent(ctx, ch, st.Current); err != nil {
		return fmt.Errorf("set %s beam current: %w", ch, err)
	}
	if err := s.dev.SetDetectorType(ctx, st.DetectorType); err != nil {
		return fmt.Errorf("set detector type: %w", err)
	}
	if err := s.dev.SetDetectorMode(ctx, st.DetectorMode); err != nil {
		return fmt.Errorf("set detector mode: %w", err)
	}
	if ch == domain.ChannelIon && st.PlasmaGas != "" {
		if err := s.dev.SetPlasmaGas(ctx, st.PlasmaGas); err != nil {
			return fmt.Errorf("set plasma gas: %w", err)
		}
	}
	s.opts.logger.Info("beam system state applied", "channel", ch.String())
	return nil
}
