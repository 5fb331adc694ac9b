package huddlekinesis

import (
	"time"

	huddlecli "github.com/huddle-events/huddle-core/huddle-cli"
	"github.com/urfave/cli/v2"
)

var KinesisOpts struct {
	StreamName string
	Replay     bool
	ReplayFrom cli.Timestamp
}

var StreamNameFlag = huddlecli.StringFlag("stream-name", "The stream name to read records from", &KinesisOpts.StreamName)
var ReplayFlag = huddlecli.BoolFlag("replay", "Whether to replay from the beginning, or start from the next message", &KinesisOpts.Replay)

var ReplayFromFlag = cli.TimestampFlag{
	Name:        "replay-from",
	Usage:       "Timestamp to replay from",
	Layout:      "2006-01-02 15:04:05",
	EnvVars:     []string{"REPLAY_FROM"},
	Destination: &KinesisOpts.ReplayFrom,
}

var KinesisFlags = []cli.Flag{
	StreamNameFlag,
	ReplayFlag,
	&ReplayFromFlag,
}

// replayFrom returns the replay start when one was given.
func replayFrom() (time.Time, bool) {
	if v := KinesisOpts.ReplayFrom.Value(); v != nil {
		return *v, true
	}
	return time.Time{}, false
}
