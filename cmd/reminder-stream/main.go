package main

import (
	"log"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	huddlecli "github.com/huddle-events/huddle-core/huddle-cli"
	huddleddb "github.com/huddle-events/huddle-core/huddle-ddb"
	huddlereminder "github.com/huddle-events/huddle-core/huddle-reminder"
	"github.com/huddle-events/huddle-core/huddle-reminder/reminderdao"
	huddlesecret "github.com/huddle-events/huddle-core/huddle-secret"
	"github.com/urfave/cli/v2"
)

var service = huddlecli.NewService("huddle-reminder-stream")

func main() {
	flags := append(huddlecli.CommonFlags, huddleddb.DDBFlags...)
	flags = append(flags, huddlereminder.ReminderFlags...)
	flags = append(flags, huddlesecret.SecretFlags...)

	app := huddlecli.App(service, action, flags...)
	err := app.Run(os.Args)
	if err != nil {
		log.Fatalln(err)
	}
}

func action(_ *cli.Context) error {
	var (
		logger = huddlecli.Logger(service)
		s      = session.Must(session.NewSession(aws.NewConfig()))
	)

	if huddleddb.DDBOpts.TableName == "" {
		huddleddb.DDBOpts.TableName = reminderdao.TableName(huddlecli.CommonOpts.Env)
	}

	token, err := huddlesecret.LoadNotifyToken(s, huddlesecret.SecretOpts.NotifySecretName, huddlesecret.SecretOpts.NotifyToken)
	if err != nil {
		return err
	}

	sync := &huddlereminder.StreamSync{
		Scheduler: huddlereminder.NewScheduler(s, token, logger),
		Logger:    logger,
	}
	handler := huddleddb.NewHandler(service, sync.OnInsert, sync.OnUpdate, sync.OnDelete)
	return handler.Start()
}
