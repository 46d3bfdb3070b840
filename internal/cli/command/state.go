package command

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/beamcal/internal/core/domain"
	"github.com/yndnr/beamcal/internal/core/service"
	"github.com/yndnr/beamcal/internal/storage/journal"
	"github.com/yndnr/beamcal/internal/storage/statefile"
)

// StateCommand returns the state subcommand group.
func StateCommand() *cli.Command {
	return &cli.Command{
		Name:  "state",
		Usage: "Instrument state snapshot and restore",
		Subcommands: []*cli.Command{
			{
				Name:  "snapshot",
				Usage: "Capture the current instrument state",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "file",
						Usage: "Also write the state to this YAML file",
					},
					&cli.StringFlag{
						Name:  "label",
						Usage: "Journal label",
					},
					&cli.BoolFlag{
						Name:  "no-journal",
						Usage: "Do not append the state to the journal",
					},
				},
				Action: stateSnapshot,
			},
			{
				Name:  "restore",
				Usage: "Restore a saved instrument state",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "file",
						Usage: "State file (default: state.file from the configuration)",
					},
					&cli.StringFlag{
						Name:  "id",
						Usage: "Journal entry ID",
					},
					&cli.BoolFlag{
						Name:  "latest",
						Usage: "Restore the newest journaled state",
					},
				},
				Action: stateRestore,
			},
			{
				Name:  "history",
				Usage: "List journaled states, newest first",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of entries",
						Value: 20,
					},
				},
				Action: stateHistory,
			},
			{
				Name:      "show",
				Usage:     "Show one journaled state",
				ArgsUsage: "<id>",
				Action:    stateShow,
			},
			{
				Name:  "prune",
				Usage: "Delete all but the newest journaled states",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "keep",
						Usage: "Number of entries to keep (default: journal.retention)",
					},
				},
				Action: statePrune,
			},
		},
	}
}

// snapshotResult is printed by state snapshot.
type snapshotResult struct {
	ID    string                  `json:"id,omitempty"`
	File  string                  `json:"file,omitempty"`
	State *domain.InstrumentState `json:"state"`
}

func stateSnapshot(c *cli.Context) error {
	rt, err := GetRuntime(c)
	if err != nil {
		return err
	}

	var st *domain.InstrumentState
	err = rt.Step(c, "capturing instrument state", func(ctx context.Context) error {
		st, err = rt.StateService().Snapshot(ctx)
		return err
	})
	if err != nil {
		return err
	}

	result := snapshotResult{State: st}
	if path := c.String("file"); path != "" {
		if err := statefile.Save(path, st); err != nil {
			return err
		}
		result.File = path
	}
	if !c.Bool("no-journal") && rt.Config.Journal.Enabled {
		j, err := rt.Journal()
		if err != nil {
			return err
		}
		entry, err := j.Append(rt.Context(), st, c.String("label"), rt.RunID)
		if err != nil {
			return err
		}
		result.ID = entry.ID
	}

	return printResult(c, result)
}

func stateRestore(c *cli.Context) error {
	rt, err := GetRuntime(c)
	if err != nil {
		return err
	}

	target, err := loadTarget(c, rt)
	if err != nil {
		return err
	}

	var report *service.RestoreReport
	err = rt.Step(c, "restoring instrument state", func(ctx context.Context) error {
		report, err = rt.StateService().Restore(ctx, target)
		return err
	})
	if err != nil {
		return err
	}
	return printResult(c, report)
}

// loadTarget reads the state named by --id, --latest or --file, falling back
// to the configured calibrated state file.
func loadTarget(c *cli.Context, rt *Runtime) (*domain.InstrumentState, error) {
	id, path, latest := c.String("id"), c.String("file"), c.Bool("latest")
	sources := 0
	for _, set := range []bool{id != "", path != "", latest} {
		if set {
			sources++
		}
	}
	if sources > 1 {
		return nil, domain.ErrInvalidArgument.WithDetails("--id, --latest and --file are mutually exclusive")
	}

	if id != "" || latest {
		j, err := rt.Journal()
		if err != nil {
			return nil, err
		}
		var entry *journal.Entry
		if latest {
			entry, err = j.Latest(rt.Context())
		} else {
			entry, err = j.Get(rt.Context(), id)
		}
		if err != nil {
			return nil, err
		}
		return entry.State, nil
	}
	if path == "" {
		path = rt.Config.State.File
	}
	return statefile.Load(path)
}

// historyRow is one line of state history.
type historyRow struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Label     string    `json:"label"`
	RunID     string    `json:"run_id"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Z         float64   `json:"z"`
}

func stateHistory(c *cli.Context) error {
	rt, err := GetRuntime(c)
	if err != nil {
		return err
	}
	limit := c.Int("limit")
	if limit < 0 {
		return domain.ErrInvalidArgument.WithDetails("--limit must not be negative")
	}

	j, err := rt.Journal()
	if err != nil {
		return err
	}
	entries, err := j.List(rt.Context(), limit)
	if err != nil {
		return err
	}

	rows := make([]historyRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, newHistoryRow(e))
	}
	return printResult(c, rows)
}

func newHistoryRow(e *journal.Entry) historyRow {
	p := e.State.AbsolutePosition
	return historyRow{
		ID:        e.ID,
		Timestamp: e.State.Timestamp,
		Label:     e.Label,
		RunID:     e.RunID,
		X:         p.X,
		Y:         p.Y,
		Z:         p.Z,
	}
}

func stateShow(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: state show <id>")
	}
	rt, err := GetRuntime(c)
	if err != nil {
		return err
	}
	j, err := rt.Journal()
	if err != nil {
		return err
	}
	entry, err := j.Get(rt.Context(), c.Args().First())
	if err != nil {
		return err
	}
	return printResult(c, entry)
}

// pruneResult is printed by state prune.
type pruneResult struct {
	Removed int `json:"removed"`
	Kept    int `json:"kept"`
}

func statePrune(c *cli.Context) error {
	rt, err := GetRuntime(c)
	if err != nil {
		return err
	}
	keep := rt.Config.Journal.Retention
	if c.IsSet("keep") {
		keep = c.Int("keep")
	}
	if keep < 0 {
		return domain.ErrInvalidArgument.WithDetails("--keep must not be negative")
	}

	j, err := rt.Journal()
	if err != nil {
		return err
	}
	removed, err := j.Prune(rt.Context(), keep)
	if err != nil {
		return err
	}
	if err := j.GC(rt.Context()); err != nil {
		return err
	}
	return printResult(c, pruneResult{Removed: removed, Kept: keep})
}
