package main

import (
	"fmt"
	"log"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/go-chi/chi/v5"
	huddlecli "github.com/huddle-events/huddle-core/huddle-cli"
	huddleddb "github.com/huddle-events/huddle-core/huddle-ddb"
	huddledirectory "github.com/huddle-events/huddle-core/huddle-directory"
	huddlenotify "github.com/huddle-events/huddle-core/huddle-notify"
	huddlereminder "github.com/huddle-events/huddle-core/huddle-reminder"
	"github.com/huddle-events/huddle-core/huddle-reminder/reminderdao"
	huddlerest "github.com/huddle-events/huddle-core/huddle-rest"
	huddlesecret "github.com/huddle-events/huddle-core/huddle-secret"
	"github.com/urfave/cli/v2"
)

var opts struct {
	DirectTimers bool
}

var service = huddlecli.NewService("huddle-reminder-notify")

func main() {
	flags := append(huddlecli.CommonFlags, huddleddb.DDBFlags...)
	flags = append(flags, huddlenotify.NotifyFlags...)
	flags = append(flags, huddlereminder.ReminderFlags...)
	flags = append(flags, huddlesecret.SecretFlags...)
	flags = append(flags,
		huddlecli.PortFlag(5002),
		huddlecli.BoolFlag("direct-timers", "manage timers on each reminder write instead of from the table stream", &opts.DirectTimers),
	)

	app := huddlecli.App(service, action, flags...)
	err := app.Run(os.Args)
	if err != nil {
		log.Fatalln(err)
	}
}

func action(_ *cli.Context) error {
	var (
		env    = huddlecli.CommonOpts.Env
		dry    = huddlecli.CommonOpts.Dry
		logger = huddlecli.Logger(service)
		s      = session.Must(session.NewSession(aws.NewConfig()))
	)

	api, err := huddleddb.DynamoDBAPI(s)
	if err != nil {
		return fmt.Errorf("failed to build dynamodb client: %w", err)
	}
	token, err := huddlesecret.LoadNotifyToken(s, huddlesecret.SecretOpts.NotifySecretName, huddlesecret.SecretOpts.NotifyToken)
	if err != nil {
		return err
	}

	store := reminderdao.Build(api, env)
	scheduler := huddlereminder.NewScheduler(s, token, logger)
	sweeper := &huddlereminder.Sweeper{
		Store: store,
		Sender: &huddlereminder.Dispatcher{
			Directory: huddledirectory.Build(api, env),
			Pusher:    huddlenotify.NewSNSPusher(s, dry, logger),
			Emailer:   huddlenotify.NewSESEmailer(s, huddlenotify.NotifyOpts.EmailFrom, dry, logger),
			Logger:    logger,
		},
		Scheduler: scheduler,
		Logger:    logger,
		Metrics:   huddlecli.NewMetrics(service, cloudwatch.New(s)),
	}

	reminders := &huddlereminder.Service{Store: store, Logger: logger}
	if opts.DirectTimers {
		reminders.Scheduler = scheduler
	}

	routes := huddlerest.Middlewares(service, chi.NewRouter())
	routes.Get("/health", huddlerest.Health)
	(&huddlereminder.NotifyHandler{Notifier: sweeper, Token: token}).Routes(routes)
	(&huddlereminder.ReminderHandler{Service: reminders}).Routes(routes)

	return huddlerest.Webserver(service, routes)
}
