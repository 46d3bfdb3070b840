package service

import (
	"context"
	"errors"
	"testing"

	"github.com/yndnr/beamcal/internal/core/domain"
	"github.com/yndnr/beamcal/internal/telemetry/metric"
)

func TestBeamSystemService_BeamSystemState(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		ch         domain.Channel
		wantHeight float64
		wantGas    string
	}{
		{domain.ChannelElectron, 4.0e-3, ""},
		{domain.ChannelIon, 16.5e-3, "Argon"},
	}

	for _, tt := range tests {
		t.Run(tt.ch.String(), func(t *testing.T) {
			dev := newMockDevice()
			svc := NewBeamSystemService(dev, testOptions(metric.NewRegistry())...)

			st, err := svc.BeamSystemState(ctx, tt.ch)
			if err != nil {
				t.Fatalf("BeamSystemState() error = %v", err)
			}
			if dev.active != tt.ch {
				t.Errorf("active channel = %v, want %v", dev.active, tt.ch)
			}
			if st.EucentricHeight != tt.wantHeight {
				t.Errorf("eucentric height = %v, want %v", st.EucentricHeight, tt.wantHeight)
			}
			if st.PlasmaGas != tt.wantGas {
				t.Errorf("plasma gas = %q, want %q", st.PlasmaGas, tt.wantGas)
			}
			if st.Voltage != dev.hv[tt.ch] || st.Current != dev.beams[tt.ch].BeamCurrent {
				t.Errorf("state = %+v", st)
			}
			if st.DetectorType != "ETD" || st.DetectorMode != "SecondaryElectrons" {
				t.Errorf("detector = %s/%s", st.DetectorType, st.DetectorMode)
			}
		})
	}
}

func TestBeamSystemService_SetBeamSystemState(t *testing.T) {
	ctx := context.Background()

	t.Run("electron skips plasma gas", func(t *testing.T) {
		dev := newMockDevice()
		svc := NewBeamSystemService(dev, testOptions(metric.NewRegistry())...)

		err := svc.SetBeamSystemState(ctx, &domain.DetectorSystemSettings{
			Channel:      domain.ChannelElectron,
			Voltage:      5000,
			Current:      0.1e-9,
			DetectorType: "TLD",
			DetectorMode: "BackscatterElectrons",
			PlasmaGas:    "Xenon",
		})
		if err != nil {
			t.Fatalf("SetBeamSystemState() error = %v", err)
		}
		if dev.hv[domain.ChannelElectron] != 5000 || dev.beams[domain.ChannelElectron].BeamCurrent != 0.1e-9 {
			t.Error("voltage or current not applied")
		}
		if dev.detectorType != "TLD" || dev.detectorMode != "BackscatterElectrons" {
			t.Error("detector not applied")
		}
		if countCalls(dev.calls, "set_plasma_gas") != 0 {
			t.Error("plasma gas must not be written for the electron channel")
		}
	})

	t.Run("ion writes plasma gas", func(t *testing.T) {
		dev := newMockDevice()
		svc := NewBeamSystemService(dev, testOptions(metric.NewRegistry())...)

		st, err := svc.BeamSystemState(ctx, domain.ChannelIon)
		if err != nil {
			t.Fatalf("BeamSystemState() error = %v", err)
		}
		st.PlasmaGas = "Xenon"
		if err := svc.SetBeamSystemState(ctx, st); err != nil {
			t.Fatalf("SetBeamSystemState() error = %v", err)
		}
		if dev.plasmaGas != "Xenon" {
			t.Errorf("plasma gas = %q, want Xenon", dev.plasmaGas)
		}
		if indexOf(dev.calls, "activate:ion") != 0 {
			t.Errorf("channel should be activated first: %v", dev.calls)
		}
	})

	t.Run("rejects invalid channel", func(t *testing.T) {
		svc := NewBeamSystemService(newMockDevice(), testOptions(metric.NewRegistry())...)
		if err := svc.SetBeamSystemState(ctx, &domain.DetectorSystemSettings{}); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("SetBeamSystemState() error = %v, want ErrInvalidArgument", err)
		}
		if _, err := svc.BeamSystemState(ctx, 0); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("BeamSystemState() error = %v, want ErrInvalidArgument", err)
		}
	})
}
