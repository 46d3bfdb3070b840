package command

import (
	"context"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/beamcal/internal/core/domain"
	"github.com/yndnr/beamcal/internal/core/service"
)

// NeutraliseCommand returns the neutralise command.
func NeutraliseCommand() *cli.Command {
	return &cli.Command{
		Name:    "neutralise",
		Aliases: []string{"neutralize"},
		Usage:   "Dissipate specimen charge by repeated fast scanning",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "iterations",
				Usage: "Discharge scans (default: neutralise.iterations)",
			},
			&cli.BoolFlag{
				Name:  "no-save",
				Usage: "Do not persist any image",
			},
		},
		Action: neutralise,
	}
}

func neutralise(c *cli.Context) error {
	rt, err := GetRuntime(c)
	if err != nil {
		return err
	}
	if c.Int("iterations") < 0 {
		return domain.ErrInvalidArgument.WithDetails("--iterations must not be negative")
	}

	cfg := rt.Config.NeutraliseConfig()
	image := rt.Config.NeutraliseImage()
	if c.Bool("no-save") {
		cfg.SaveImages = false
		image.Save = false
	}
	req := service.NeutraliseRequest{
		Image:      image,
		Iterations: c.Int("iterations"),
	}

	var report *service.NeutraliseReport
	err = rt.Step(c, "neutralising charge", func(ctx context.Context) error {
		report, err = rt.NeutraliseService(cfg).Neutralise(ctx, req)
		return err
	})
	if err != nil {
		return err
	}
	return printResult(c, report)
}
