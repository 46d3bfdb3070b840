package command

import (
	"context"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/beamcal/internal/core/service"
)

// AlignCommand returns the align subcommand group.
func AlignCommand() *cli.Command {
	return &cli.Command{
		Name:  "align",
		Usage: "Needle alignment",
		Subcommands: []*cli.Command{
			{
				Name:   "needle",
				Usage:  "Calibrate the needle with the full coarse-to-fine sequence",
				Flags:  []cli.Flag{validateFlag()},
				Action: alignNeedle,
			},
			{
				Name:  "eucentric",
				Usage: "Run one alignment scale",
				Flags: []cli.Flag{
					validateFlag(),
					&cli.Float64Flag{
						Name:  "hfw",
						Usage: "Electron field width in meters (default: first of align.field_widths)",
					},
				},
				Action: alignEucentric,
			},
		},
	}
}

func validateFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "validate",
		Usage: "Ask the operator to confirm every detection",
	}
}

func alignNeedle(c *cli.Context) error {
	rt, err := GetRuntime(c)
	if err != nil {
		return err
	}

	var report *service.AlignmentReport
	err = rt.Step(c, "calibrating needle", func(ctx context.Context) error {
		report, err = rt.AlignService().CalibrateNeedle(ctx, c.Bool("validate"))
		return err
	})
	return printAlignment(c, report, err)
}

func alignEucentric(c *cli.Context) error {
	rt, err := GetRuntime(c)
	if err != nil {
		return err
	}
	hfw := rt.Config.Align.FieldWidths[0]
	if c.IsSet("hfw") {
		hfw = c.Float64("hfw")
	}

	var report *service.AlignmentReport
	err = rt.Step(c, "aligning needle", func(ctx context.Context) error {
		report, err = rt.AlignService().AlignEucentric(ctx, hfw, c.Bool("validate"))
		return err
	})
	return printAlignment(c, report, err)
}

// printAlignment prints the moves issued before an abort as well, then returns err.
func printAlignment(c *cli.Context, report *service.AlignmentReport, err error) error {
	if report != nil {
		if perr := printResult(c, report); perr != nil && err == nil {
			return perr
		}
	}
	return err
}
