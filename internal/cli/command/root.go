package command

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/beamcal/internal/cli/output"
	"github.com/yndnr/beamcal/internal/infra/buildinfo"
)

const runtimeKey = "runtime"

// App creates the CLI application.
func App() *cli.App {
	app := &cli.App{
		Name:    "beamcal",
		Usage:   "Dual-beam microscope calibration tool",
		Version: buildinfo.Get().String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			StateCommand(),
			FocusCommand(),
			AlignCommand(),
			NeutraliseCommand(),
			StageCommand(),
			BeamCommand(),
			VersionCommand(),
		},
		Before: func(c *cli.Context) error {
			rt, err := newRuntime(c)
			if err != nil {
				return err
			}
			c.App.Metadata[runtimeKey] = rt
			return nil
		},
		After: func(c *cli.Context) error {
			if rt, ok := c.App.Metadata[runtimeKey].(*Runtime); ok {
				return rt.Close()
			}
			return nil
		},
	}

	return app
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			EnvVars: []string{"BEAMCAL_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "Log format: text, json",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   "table",
		},
		&cli.StringFlag{
			Name:  "metrics-addr",
			Usage: "Serve Prometheus metrics on this address during the run (e.g., :9464)",
		},
		&cli.StringFlag{
			Name:  "backend",
			Usage: "Instrument backend (sim)",
		},
	}
}

// GlobalFlags defines flags available to all commands.
type GlobalFlags struct {
	Config      string
	LogLevel    string
	LogFormat   string
	Output      string
	MetricsAddr string
	Backend     string
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	return &GlobalFlags{
		Config:      c.String("config"),
		LogLevel:    c.String("log-level"),
		LogFormat:   c.String("log-format"),
		Output:      c.String("output"),
		MetricsAddr: c.String("metrics-addr"),
		Backend:     c.String("backend"),
	}
}

// overrides maps the explicitly set global flags onto configuration keys.
func (f *GlobalFlags) overrides(c *cli.Context) map[string]any {
	values := map[string]any{}
	if c.IsSet("log-level") {
		values["log.level"] = f.LogLevel
	}
	if c.IsSet("log-format") {
		values["log.format"] = f.LogFormat
	}
	if c.IsSet("metrics-addr") {
		values["metrics.addr"] = f.MetricsAddr
	}
	if c.IsSet("backend") {
		values["instrument.backend"] = f.Backend
	}
	return values
}

// GetRuntime retrieves the runtime built by the root Before hook.
func GetRuntime(c *cli.Context) (*Runtime, error) {
	if rt, ok := c.App.Metadata[runtimeKey].(*Runtime); ok {
		return rt, nil
	}
	return nil, fmt.Errorf("instrument runtime not initialized")
}

// printResult writes data to the app writer in the selected output format.
func printResult(c *cli.Context, data any) error {
	format, err := output.ParseFormat(ParseGlobalFlags(c).Output)
	if err != nil {
		return err
	}
	return output.NewFormatter(format).Format(c.App.Writer, data)
}

// isTerminal reports whether w is a character device.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
