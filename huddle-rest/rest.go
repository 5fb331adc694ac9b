// Package huddlerest serves a chi router over HTTP in console mode or behind
// API Gateway in Lambda mode.
package huddlerest

import (
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	huddlecli "github.com/huddle-events/huddle-core/huddle-cli"
	"github.com/rs/zerolog"
	"github.com/savaki/apigateway"
)

func Middlewares(service huddlecli.Service, routes chi.Router) chi.Router {
	routes.Use(
		withCORS(),
		withLogger(huddlecli.Logger(service)),
		middleware.Recoverer,
	)
	return routes
}

func Webserver(service huddlecli.Service, routes chi.Router) error {
	logger := huddlecli.Logger(service)

	if huddlecli.CommonOpts.Console {
		logger.Info().Int("port", huddlecli.CommonOpts.Port).Msg("starting http server")
		addr := fmt.Sprintf(":%v", huddlecli.CommonOpts.Port)
		return http.ListenAndServe(addr, routes)
	}

	lambda.Start(apigateway.Wrap(routes, huddlecli.CommonOpts.Env))
	return nil
}

// Health answers liveness checks.
func Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func withCORS() func(next http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
	})
}

func withLogger(logger zerolog.Logger) func(handler http.Handler) http.Handler {
	return func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := logger.WithContext(req.Context())
			req = req.WithContext(ctx)
			handler.ServeHTTP(w, req)
		})
	}
}
