package command

import (
	"github.com/urfave/cli/v2"

	"github.com/yndnr/beamcal/internal/core/domain"
)

// BeamCommand returns the beam subcommand group.
func BeamCommand() *cli.Command {
	return &cli.Command{
		Name:  "beam",
		Usage: "Beam source and detector settings",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show the source and detector settings of a channel",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "channel",
						Usage: "Channel: electron, ion",
						Value: "electron",
					},
				},
				Action: beamShow,
			},
		},
	}
}

func beamShow(c *cli.Context) error {
	rt, err := GetRuntime(c)
	if err != nil {
		return err
	}
	ch, err := domain.ParseChannel(c.String("channel"))
	if err != nil {
		return err
	}
	st, err := rt.BeamSystemService().BeamSystemState(rt.Context(), ch)
	if err != nil {
		return err
	}
	return printResult(c, st)
}
