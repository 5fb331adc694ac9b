package huddlecli

import (
	"strings"
	"time"

	"github.com/urfave/cli/v2"
)

var CommonOpts struct {
	Console  bool
	Dry      bool
	Env      string
	LogLevel string
	Port     int
}

var ConsoleFlag = cli.BoolFlag{
	Name:        "console",
	Usage:       "whether to run in console mode or lambda mode",
	Value:       false,
	EnvVars:     []string{"CONSOLE"},
	Destination: &CommonOpts.Console,
}
var DryFlag = cli.BoolFlag{
	Name:        "dry",
	Usage:       "log side effects instead of performing them",
	Value:       false,
	EnvVars:     []string{"DRY"},
	Destination: &CommonOpts.Dry,
}
var EnvFlag = cli.StringFlag{
	Name:        "env",
	Usage:       "environment",
	Value:       "local",
	EnvVars:     []string{"ENV"},
	Destination: &CommonOpts.Env,
}
var LogLevelFlag = cli.StringFlag{
	Name:        "log-level",
	Usage:       "minimum log level (trace, debug, info, warn, error)",
	Value:       "info",
	EnvVars:     []string{"LOG_LEVEL"},
	Destination: &CommonOpts.LogLevel,
}
var PortFlag = func(p int) *cli.IntFlag {
	return &cli.IntFlag{
		Name:        "port",
		Usage:       "Port to listen to, if running locally",
		Value:       p,
		EnvVars:     []string{"PORT"},
		Destination: &CommonOpts.Port,
	}
}

var CommonFlags = []cli.Flag{
	&ConsoleFlag,
	&DryFlag,
	&EnvFlag,
	&LogLevelFlag,
}

// StringFlag builds a string flag whose env var is the upper snake case form
// of name. The optional value is used as the default.
func StringFlag(name, usage string, dest *string, value ...string) *cli.StringFlag {
	f := &cli.StringFlag{
		Name:        name,
		Usage:       usage,
		EnvVars:     []string{envVar(name)},
		Destination: dest,
	}
	if len(value) > 0 {
		f.Value = value[0]
	}
	return f
}

func BoolFlag(name, usage string, dest *bool) *cli.BoolFlag {
	return &cli.BoolFlag{
		Name:        name,
		Usage:       usage,
		EnvVars:     []string{envVar(name)},
		Destination: dest,
	}
}

func IntFlag(name, usage string, dest *int, value int) *cli.IntFlag {
	return &cli.IntFlag{
		Name:        name,
		Usage:       usage,
		Value:       value,
		EnvVars:     []string{envVar(name)},
		Destination: dest,
	}
}

func DurationFlag(name, usage string, dest *time.Duration, value time.Duration) *cli.DurationFlag {
	return &cli.DurationFlag{
		Name:        name,
		Usage:       usage,
		Value:       value,
		EnvVars:     []string{envVar(name)},
		Destination: dest,
	}
}

func envVar(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}
