package huddlesecret

import (
	huddlecli "github.com/huddle-events/huddle-core/huddle-cli"
	"github.com/urfave/cli/v2"
)

var SecretOpts struct {
	NotifyToken      string
	NotifySecretName string
}

var NotifyTokenFlag = huddlecli.StringFlag("notify-token", "bearer token for the reminder notify callback (local runs only)", &SecretOpts.NotifyToken)
var NotifySecretNameFlag = huddlecli.StringFlag("notify-secret-name", "Secrets Manager secret holding notify_token", &SecretOpts.NotifySecretName)

var SecretFlags = []cli.Flag{
	NotifyTokenFlag,
	NotifySecretNameFlag,
}
