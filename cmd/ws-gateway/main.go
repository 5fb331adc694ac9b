package main

import (
	"fmt"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	huddlechat "github.com/huddle-events/huddle-core/huddle-chat"
	"github.com/huddle-events/huddle-core/huddle-chat/chatdao"
	huddlecli "github.com/huddle-events/huddle-core/huddle-cli"
	huddleddb "github.com/huddle-events/huddle-core/huddle-ddb"
	huddledirectory "github.com/huddle-events/huddle-core/huddle-directory"
	"github.com/huddle-events/huddle-core/huddle-kinesis/publish"
	huddlews "github.com/huddle-events/huddle-core/huddle-ws"
	"github.com/huddle-events/huddle-core/huddle-ws/connectiondao"
	"github.com/huddle-events/huddle-core/huddle-ws/membershipdao"
	"github.com/urfave/cli/v2"
)

var service = huddlecli.NewService("huddle-ws-gateway")

func main() {
	app := huddlecli.App(
		service,
		action,
		append(
			huddlecli.CommonFlags,
			huddleddb.DDBFlags...,
		)...,
	)
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
	transport := &huddlews.GatewayTransport{}
	broadcaster := &huddlews.Broadcaster{
		Registry:  registry,
		Transport: transport,
		Logger:    logger,
		Metrics:   huddlecli.NewMetrics(service, cloudwatch.New(s)),
		Name:      "gateway",
	}
	chat := &huddlechat.Service{
		Store:       chatdao.Build(api, env),
		Directory:   directory,
		Broadcaster: broadcaster,
		Invoker:     &huddlechat.StreamInvoker{Publisher: publish.Build(env)},
		Logger:      logger,
	}
	router := &huddlews.Router{
		Registry:  registry,
		Directory: directory,
		Chat:      huddlechat.Actions{Service: chat},
		Logger:    logger,
	}
	handler := &huddlews.GatewayHandler{
		Registry:  registry,
		Directory: directory,
		Router:    router,
		Poster:    transport,
		Logger:    logger,
	}

	logger.Info().Str("env", env).Msg("starting websocket gateway handler")
	lambda.Start(handler.HandleEvent)
	return nil
}
