package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	huddlecli "github.com/huddle-events/huddle-core/huddle-cli"
	huddlecron "github.com/huddle-events/huddle-core/huddle-cron"
	huddleddb "github.com/huddle-events/huddle-core/huddle-ddb"
	huddledirectory "github.com/huddle-events/huddle-core/huddle-directory"
	huddlenotify "github.com/huddle-events/huddle-core/huddle-notify"
	huddlereminder "github.com/huddle-events/huddle-core/huddle-reminder"
	"github.com/huddle-events/huddle-core/huddle-reminder/reminderdao"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

var service = huddlecli.NewService("huddle-reminder-sweeper")

func main() {
	flags := append(huddlecli.CommonFlags, huddleddb.DDBFlags...)
	flags = append(flags, huddlenotify.NotifyFlags...)
	flags = append(flags, huddlereminder.ReminderFlags...)

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

	sweeper := &huddlereminder.Sweeper{
		Store: reminderdao.Build(api, env),
		Sender: &huddlereminder.Dispatcher{
			Directory: huddledirectory.Build(api, env),
			Pusher:    huddlenotify.NewSNSPusher(s, dry, logger),
			Emailer:   huddlenotify.NewSESEmailer(s, huddlenotify.NotifyOpts.EmailFrom, dry, logger),
			Logger:    logger,
		},
		// the sweeper only cancels timers, so it never needs the notify token
		Scheduler: huddlereminder.NewScheduler(s, "", logger),
		Logger:    logger,
		Metrics:   huddlecli.NewMetrics(service, cloudwatch.New(s)),
	}

	handler := huddlecron.NewHandler(service, func(ctx context.Context) error {
		if _, err := sweeper.CheckDue(ctx); err != nil {
			return fmt.Errorf("failed to sweep due reminders: %w", err)
		}
		if _, err := sweeper.Cleanup(ctx); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("failed to clean up expired reminders")
		}
		return nil
	})
	return handler.Start()
}
