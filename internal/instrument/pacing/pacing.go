// Package pacing throttles actuating instrument commands.
//
// Stage moves, needle moves, homing, linking, auto-focus and acquisitions go
// through a shared token bucket so a fast calibration loop cannot flood the
// instrument controller. Parameter reads and writes pass straight through.
package pacing

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/yndnr/beamcal/internal/core/domain"
	"github.com/yndnr/beamcal/internal/core/service"
)

// Config sets the command budget. A non-positive rate disables pacing.
type Config struct {
	CommandsPerSecond float64 `koanf:"commands_per_second"`
	Burst             int     `koanf:"burst"`
}

// NewLimiter builds the token bucket described by cfg.
func NewLimiter(cfg Config) *rate.Limiter {
	if cfg.CommandsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.CommandsPerSecond), burst)
}

func wait(ctx context.Context, l *rate.Limiter, op string) error {
	if err := l.Wait(ctx); err != nil {
		return fmt.Errorf("pacing %s: %w", op, err)
	}
	return nil
}

// Device paces the actuating methods of a service.Device.
type Device struct {
	service.Device
	limiter *rate.Limiter
}

// NewDevice wraps dev. The limiter may be shared with an Imager.
func NewDevice(dev service.Device, limiter *rate.Limiter) *Device {
	return &Device{Device: dev, limiter: limiter}
}

func (d *Device) SafeAbsoluteMove(ctx context.Context, pos domain.StagePosition) error {
	if err := wait(ctx, d.limiter, "stage move"); err != nil {
		return err
	}
	return d.Device.SafeAbsoluteMove(ctx, pos)
}

func (d *Device) Home(ctx context.Context) error {
	if err := wait(ctx, d.limiter, "home"); err != nil {
		return err
	}
	return d.Device.Home(ctx)
}

func (d *Device) Link(ctx context.Context) error {
	if err := wait(ctx, d.limiter, "link"); err != nil {
		return err
	}
	return d.Device.Link(ctx)
}

func (d *Device) MoveManipulatorCorrected(ctx context.Context, dx, dy float64, ch domain.Channel) error {
	if err := wait(ctx, d.limiter, "needle move"); err != nil {
		return err
	}
	return d.Device.MoveManipulatorCorrected(ctx, dx, dy, ch)
}

func (d *Device) RunAutoFocus(ctx context.Context) error {
	if err := wait(ctx, d.limiter, "auto-focus"); err != nil {
		return err
	}
	return d.Device.RunAutoFocus(ctx)
}

// Imager paces acquisitions.
type Imager struct {
	service.Imager
	limiter *rate.Limiter
}

// NewImager wraps im.
func NewImager(im service.Imager, limiter *rate.Limiter) *Imager {
	return &Imager{Imager: im, limiter: limiter}
}

func (i *Imager) Capture(ctx context.Context, settings domain.CaptureSettings) (*domain.Image, error) {
	if err := wait(ctx, i.limiter, "capture"); err != nil {
		return nil, err
	}
	return i.Imager.Capture(ctx, settings)
}
