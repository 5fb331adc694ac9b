package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/go-chi/chi/v5"
	huddlechat "github.com/huddle-events/huddle-core/huddle-chat"
	"github.com/huddle-events/huddle-core/huddle-chat/chatdao"
	huddlecli "github.com/huddle-events/huddle-core/huddle-cli"
	huddleddb "github.com/huddle-events/huddle-core/huddle-ddb"
	huddledirectory "github.com/huddle-events/huddle-core/huddle-directory"
	huddlenotify "github.com/huddle-events/huddle-core/huddle-notify"
	huddlerest "github.com/huddle-events/huddle-core/huddle-rest"
	huddlews "github.com/huddle-events/huddle-core/huddle-ws"
	"github.com/huddle-events/huddle-core/huddle-ws/connectiondao"
	"github.com/huddle-events/huddle-core/huddle-ws/membershipdao"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

var opts struct {
	NodeID          string
	DurableFallback bool
	ReapInterval    time.Duration
}

var service = huddlecli.NewService("huddle-ws-server")

func main() {
	hostname, _ := os.Hostname()

	flags := append(huddlecli.CommonFlags, huddleddb.DDBFlags...)
	flags = append(flags, huddlenotify.NotifyFlags...)
	flags = append(flags,
		huddlecli.PortFlag(8080),
		huddlecli.StringFlag("node-id", "identifies this server on room memberships", &opts.NodeID, hostname),
		huddlecli.BoolFlag("durable-fallback", "mirror room memberships to dynamodb and read them back after a restart", &opts.DurableFallback),
		huddlecli.DurationFlag("reap-interval", "how often to drop expired connections", &opts.ReapInterval, time.Minute),
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
		logger = huddlecli.Logger(service)
		s      = session.Must(session.NewSession(aws.NewConfig()))
	)

	api, err := huddleddb.DynamoDBAPI(s)
	if err != nil {
		return fmt.Errorf("failed to build dynamodb client: %w", err)
	}
	directory := huddledirectory.Build(api, env)

	registry := huddlews.NewMemoryRegistry(directory, logger)
	registry.NodeID = opts.NodeID
	if opts.DurableFallback {
		registry.Fallback = &huddlews.DurableRegistry{
			Connections: connectiondao.Build(api, env),
			Memberships: membershipdao.Build(api, env),
			Directory:   directory,
		}
	}
	defer registry.Close()

	router := &huddlews.Router{Registry: registry, Directory: directory, Logger: logger}
	sockets := huddlews.NewSocketServer(registry, directory, router, logger, opts.NodeID)
	defer sockets.Close()

	broadcaster := &huddlews.Broadcaster{
		Registry:  registry,
		Transport: sockets,
		Logger:    logger,
		Metrics:   huddlecli.NewMetrics(service, cloudwatch.New(s)),
		Name:      "socket",
	}
	store := chatdao.Build(api, env)
	invoker := &huddlechat.LocalInvoker{
		Handler: &huddlechat.Worker{
			Store:       store,
			Directory:   directory,
			Broadcaster: broadcaster,
			Emailer:     huddlenotify.NewSESEmailer(s, huddlenotify.NotifyOpts.EmailFrom, huddlecli.CommonOpts.Dry, logger),
			Logger:      logger,
		},
		Logger: logger,
	}
	defer invoker.Wait()

	router.Chat = huddlechat.Actions{Service: &huddlechat.Service{
		Store:       store,
		Directory:   directory,
		Broadcaster: broadcaster,
		Invoker:     invoker,
		Logger:      logger,
	}}

	routes := huddlerest.Middlewares(service, chi.NewRouter())
	routes.Get("/health", huddlerest.Health)
	routes.Handle("/ws", sockets)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%v", huddlecli.CommonOpts.Port),
		Handler: routes,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info().Int("port", huddlecli.CommonOpts.Port).Str("node_id", opts.NodeID).Msg("starting websocket server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		sockets.Close()
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdown)
	})
	group.Go(func() error {
		ticker := time.NewTicker(opts.ReapInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				n, err := registry.Reap(ctx)
				if err != nil {
					logger.Warn().Err(err).Msg("failed to reap connections")
					continue
				}
				if n > 0 {
					logger.Info().Int("reaped", n).Msg("dropped expired connections")
				}
			}
		}
	})
	return group.Wait()
}
