package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/talkbase/talkbase/pkg/application"
	"github.com/talkbase/talkbase/pkg/configuration"
	"github.com/talkbase/talkbase/pkg/constants"
	"github.com/talkbase/talkbase/pkg/middleware"
	"github.com/talkbase/talkbase/pkg/server"
)

type DefaultOptions struct {
	Logger        *logrus.Logger
	Configuration *configuration.Configuration
	Application   application.Application
	Pool          *pgxpool.Pool
}

func Default(options *DefaultOptions) (*server.HTTPServer, error) {
	app := options.Application

	middlewares := []mux.MiddlewareFunc{
		middleware.WithLogger(options.Logger),
		middleware.Provide(constants.AppKey, app),
		middleware.WithPool(options.Pool),
		middleware.WithTenantHeader(options.Configuration.TenantIDHeader),
	}
	app.RegisterMiddleware(middlewares...)

	serverInstance := server.NewHTTPServer(
		app,
		http.NotFoundHandler(),
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}),
	)
	return serverInstance, nil
}
