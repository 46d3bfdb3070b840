// Package command provides CLI command definitions for beamcal.
//
// This package defines all CLI commands using urfave/cli/v2:
//
//   - root.go: Root command and global flags
//   - runtime.go: Per-run configuration, logging, metrics and instrument wiring
//   - state.go: Snapshot, restore and journal subcommands
//   - focus.go: Focus command
//   - align.go: Needle alignment subcommands
//   - neutralise.go: Charge neutralisation command
//   - stage.go: Homing and linking subcommands
//   - beam.go: Beam system subcommands
//
// Commands follow a consistent pattern of parsing flags, calling the
// appropriate engine, and formatting output.
package command
