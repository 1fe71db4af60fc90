package controllers

import (
	"github.com/gorilla/mux"
	"github.com/talkbase/talkbase/pkg/application"
)

type RealtimeControllerConfig struct {
	BasePath    string
	App         application.Application
	Middlewares []mux.MiddlewareFunc
}

// RealtimeController mounts the websocket hub. Clients join the tenant
// dashboard channel on connect and may narrow to a conversation monitor
// or an agent feed via query parameters.
type RealtimeController struct {
	basePath    string
	app         application.Application
	middlewares []mux.MiddlewareFunc
}

func NewRealtimeController(cfg RealtimeControllerConfig) application.Controller {
	return &RealtimeController{
		basePath:    cfg.BasePath,
		app:         cfg.App,
		middlewares: cfg.Middlewares,
	}
}

func (c *RealtimeController) Key() string {
	return "MessagingRealtimeController"
}

func (c *RealtimeController) Register(r *mux.Router) {
	router := r.PathPrefix(c.basePath).Subrouter()
	for _, mw := range c.middlewares {
		router.Use(mw)
	}
	router.Handle("", c.app.Websocket())
}
