package sim

import (
	"context"

	"github.com/yndnr/beamcal/internal/core/domain"
)

// The specimen frame differs from the raw frame by the z offset recorded at
// the last link.

func (m *Microscope) lock(ctx context.Context) (unlock func(), err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	return m.mu.Unlock, nil
}

// StagePosition returns the stage position in the current default frame.
func (m *Microscope) StagePosition(ctx context.Context) (domain.StagePosition, error) {
	unlock, err := m.lock(ctx)
	if err != nil {
		return domain.StagePosition{}, err
	}
	defer unlock()

	p := m.raw
	p.CoordinateSystem = m.coord
	if m.coord == domain.CoordinateSpecimen {
		p.Z -= m.linkZ
	}
	return p, nil
}

func (m *Microscope) SetCoordinateSystem(ctx context.Context, cs domain.CoordinateSystem) error {
	unlock, err := m.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	m.coord = cs
	return nil
}

// SafeAbsoluteMove moves to pos, interpreted in pos.CoordinateSystem. The
// configured stage error is added to x.
func (m *Microscope) SafeAbsoluteMove(ctx context.Context, pos domain.StagePosition) error {
	unlock, err := m.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	target := pos
	if pos.CoordinateSystem == domain.CoordinateSpecimen {
		target.Z += m.linkZ
	}
	target.X += m.cfg.StageError
	target.CoordinateSystem = domain.CoordinateRaw
	m.raw = target
	m.counters.Moves++
	m.logger.Debug("sim stage moved", "position", target.String())
	return nil
}

// Home drives every axis to its reference switch.
func (m *Microscope) Home(ctx context.Context) error {
	unlock, err := m.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	m.raw = domain.StagePosition{CoordinateSystem: domain.CoordinateRaw}
	m.counters.Homes++
	return nil
}

// Link ties the specimen frame to the current electron focal plane.
func (m *Microscope) Link(ctx context.Context) error {
	unlock, err := m.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	m.linkZ = m.raw.Z - m.beams[domain.ChannelElectron].settings.WorkingDistance
	m.counters.Links++
	return nil
}

// ============================================================================
// ManipulatorControl
// ============================================================================

func (m *Microscope) SetManipulatorCoordinateSystem(ctx context.Context, cs domain.ManipulatorCoordinateSystem) error {
	unlock, err := m.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	m.manipCS = cs
	return nil
}

// MoveManipulatorCorrected moves the needle in the image plane of ch. The
// electron image plane spans needle x and y; the ion image plane spans x and z.
func (m *Microscope) MoveManipulatorCorrected(ctx context.Context, dx, dy float64, ch domain.Channel) error {
	unlock, err := m.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	g := m.cfg.NeedleGain
	m.needle[0] += dx * g
	switch ch {
	case domain.ChannelElectron:
		m.needle[1] += dy * g
	case domain.ChannelIon:
		m.needle[2] += dy * g
	default:
		return domain.ErrInvalidArgument.WithDetails("channel " + ch.String())
	}
	m.counters.NeedleMoves++
	return nil
}
