package command

import (
	"context"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/beamcal/internal/core/domain"
	"github.com/yndnr/beamcal/internal/core/service"
	"github.com/yndnr/beamcal/internal/storage/statefile"
)

// StageCommand returns the stage subcommand group.
func StageCommand() *cli.Command {
	return &cli.Command{
		Name:  "stage",
		Usage: "Stage homing and linking",
		Subcommands: []*cli.Command{
			{
				Name:  "home-link",
				Usage: "Home, restore the calibrated state, focus and link",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "file",
						Usage: "State file (default: state.file from the configuration)",
					},
				},
				Action: stageHomeLink,
			},
			{
				Name:  "home-relink",
				Usage: "Home and return to the current (or given) state",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "file",
						Usage: "State file (default: the state captured before homing)",
					},
				},
				Action: stageHomeRelink,
			},
			{
				Name:  "link",
				Usage: "Focus at a fixed field width and link the stage",
				Flags: []cli.Flag{
					&cli.Float64Flag{
						Name:  "hfw",
						Usage: "Electron field width in meters (default: stage.link_field_width)",
					},
				},
				Action: stageLink,
			},
		},
	}
}

// stateFromFlag loads --file, or returns nil when it is unset.
func stateFromFlag(c *cli.Context) (*domain.InstrumentState, error) {
	path := c.String("file")
	if path == "" {
		return nil, nil
	}
	return statefile.Load(path)
}

func stageHomeLink(c *cli.Context) error {
	return homeWith(c, "homing and linking", (*service.HomingService).HomeAndLink)
}

func stageHomeRelink(c *cli.Context) error {
	return homeWith(c, "homing and relinking", (*service.HomingService).HomeAndRelink)
}

type homingFunc func(*service.HomingService, context.Context, *domain.InstrumentState) (*service.RestoreReport, error)

func homeWith(c *cli.Context, message string, fn homingFunc) error {
	rt, err := GetRuntime(c)
	if err != nil {
		return err
	}
	state, err := stateFromFlag(c)
	if err != nil {
		return err
	}

	var report *service.RestoreReport
	err = rt.Step(c, message, func(ctx context.Context) error {
		report, err = fn(rt.HomingService(), ctx, state)
		return err
	})
	if err != nil {
		return err
	}
	return printResult(c, report)
}

// linkResult is printed by stage link.
type linkResult struct {
	FieldWidth      float64 `json:"hfw"`
	WorkingDistance float64 `json:"working_distance"`
}

func stageLink(c *cli.Context) error {
	rt, err := GetRuntime(c)
	if err != nil {
		return err
	}
	hfw := rt.Config.Stage.LinkFieldWidth
	if c.IsSet("hfw") {
		hfw = c.Float64("hfw")
	}
	if hfw <= 0 {
		return domain.ErrInvalidArgument.WithDetails("--hfw must be positive")
	}

	err = rt.Step(c, "linking stage", func(ctx context.Context) error {
		return rt.HomingService().AutoLinkStage(ctx, hfw)
	})
	if err != nil {
		return err
	}
	wd, err := rt.Device.WorkingDistance(rt.Context(), domain.ChannelElectron)
	if err != nil {
		return err
	}
	return printResult(c, linkResult{FieldWidth: hfw, WorkingDistance: wd})
}
