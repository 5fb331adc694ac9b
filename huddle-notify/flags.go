package huddlenotify

import (
	huddlecli "github.com/huddle-events/huddle-core/huddle-cli"
	"github.com/urfave/cli/v2"
)

var NotifyOpts struct {
	EmailFrom string
}

var EmailFromFlag = huddlecli.StringFlag("email-from", "sender address for notification emails", &NotifyOpts.EmailFrom, "no-reply@huddle.events")

var NotifyFlags = []cli.Flag{
	EmailFromFlag,
}
