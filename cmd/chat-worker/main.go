package main

import (
	"fmt"
	"log"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	huddlechat "github.com/huddle-events/huddle-core/huddle-chat"
	"github.com/huddle-events/huddle-core/huddle-chat/chatdao"
	huddlecli "github.com/huddle-events/huddle-core/huddle-cli"
	huddleddb "github.com/huddle-events/huddle-core/huddle-ddb"
	huddledirectory "github.com/huddle-events/huddle-core/huddle-directory"
	huddlekinesis "github.com/huddle-events/huddle-core/huddle-kinesis"
	"github.com/huddle-events/huddle-core/huddle-kinesis/publish"
	huddlenotify "github.com/huddle-events/huddle-core/huddle-notify"
	huddlews "github.com/huddle-events/huddle-core/huddle-ws"
	"github.com/huddle-events/huddle-core/huddle-ws/connectiondao"
	"github.com/huddle-events/huddle-core/huddle-ws/membershipdao"
	"github.com/urfave/cli/v2"
)

var service = huddlecli.NewService("huddle-chat-worker")

func main() {
	flags := append(huddlecli.CommonFlags, huddleddb.DDBFlags...)
	flags = append(flags, huddlekinesis.KinesisFlags...)
	flags = append(flags, huddlenotify.NotifyFlags...)

	app := huddlecli.App(service, action, flags...)
	err := app.Run(os.Args)
	if err != nil {
		log.Fatalln(err)
	}
}

func action(_ *cli.Context) error {
	var (
		env    = huddlecli.CommonOpts.Env
		logger = huddlecli.Logger(service)
		s      = session.Must(session.NewSession(aws.NewConfig()))
	)

	api, err := huddleddb.DynamoDBAPI(s)
	if err != nil {
		return fmt.Errorf("failed to build dynamodb client: %w", err)
	}

	directory := huddledirectory.Build(api, env)
	registry := &huddlews.DurableRegistry{
		Connections: connectiondao.Build(api, env),
		Memberships: membershipdao.Build(api, env),
		Directory:   directory,
	}
	worker := &huddlechat.Worker{
		Store:     chatdao.Build(api, env),
		Directory: directory,
		Broadcaster: &huddlews.Broadcaster{
			Registry:  registry,
			Transport: &huddlews.GatewayTransport{},
			Logger:    logger,
			Metrics:   huddlecli.NewMetrics(service, cloudwatch.New(s)),
			Name:      "gateway",
		},
		Emailer: huddlenotify.NewSESEmailer(s, huddlenotify.NotifyOpts.EmailFrom, huddlecli.CommonOpts.Dry, logger),
		Logger:  logger,
	}

	handler := huddlekinesis.NewHandler(service, publish.StreamName(env), worker.HandleRecord)
	return handler.Start()
}
