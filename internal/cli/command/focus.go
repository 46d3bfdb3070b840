package command

import (
	"context"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/beamcal/internal/core/domain"
	"github.com/yndnr/beamcal/internal/core/service"
)

// FocusCommand returns the focus command.
func FocusCommand() *cli.Command {
	return &cli.Command{
		Name:  "focus",
		Usage: "Focus the electron beam",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "mode",
				Usage: "Focus strategy: device, sharpness, dog (default: focus.mode)",
			},
			&cli.IntFlag{
				Name:  "steps",
				Usage: "Sharpness search grid size (default: focus.steps)",
			},
			&cli.Float64Flag{
				Name:  "delta",
				Usage: "Sharpness search step in meters (default: focus.delta)",
			},
		},
		Action: focus,
	}
}

func focus(c *cli.Context) error {
	rt, err := GetRuntime(c)
	if err != nil {
		return err
	}

	name := rt.Config.Focus.Mode
	if c.IsSet("mode") {
		name = c.String("mode")
	}
	mode, err := domain.ParseFocusMode(name)
	if err != nil {
		return err
	}
	req := service.FocusRequest{
		Mode:  mode,
		Steps: c.Int("steps"),
		Delta: c.Float64("delta"),
	}

	var report *service.FocusReport
	err = rt.Step(c, "focusing ("+mode.String()+")", func(ctx context.Context) error {
		report, err = rt.FocusService().Focus(ctx, req)
		return err
	})
	if err != nil {
		return err
	}
	return printResult(c, report)
}
