package server

import (
	"context"
	"net/http"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/gorilla/mux"
	"github.com/talkbase/talkbase/pkg/application"
)

const readHeaderTimeout = 15 * time.Second

// HTTPServer assembles the application's controllers and global
// middleware into one gzip-wrapped mux router.
type HTTPServer struct {
	controllers             []application.Controller
	middlewares             []mux.MiddlewareFunc
	notFoundHandler         http.Handler
	methodNotAllowedHandler http.Handler

	srv *http.Server
}

func NewHTTPServer(
	app application.Application,
	notFoundHandler, methodNotAllowedHandler http.Handler,
) *HTTPServer {
	return &HTTPServer{
		controllers:             app.Controllers(),
		middlewares:             app.Middleware(),
		notFoundHandler:         notFoundHandler,
		methodNotAllowedHandler: methodNotAllowedHandler,
	}
}

func (s *HTTPServer) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.middlewares...)
	for _, controller := range s.controllers {
		controller.Register(r)
	}

	// mux skips router middleware for fallback handlers; wrap them by
	// hand so logging and tenant resolution still run.
	r.NotFoundHandler = s.wrap(s.notFoundHandler)
	r.MethodNotAllowedHandler = s.wrap(s.methodNotAllowedHandler)
	return r
}

func (s *HTTPServer) wrap(handler http.Handler) http.Handler {
	for i := len(s.middlewares) - 1; i >= 0; i-- {
		handler = s.middlewares[i](handler)
	}
	return handler
}

func (s *HTTPServer) Handler() http.Handler {
	return gziphandler.GzipHandler(s.Router())
}

func (s *HTTPServer) Start(socketAddress string) error {
	s.srv = &http.Server{
		Addr:              socketAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s.srv.ListenAndServe()
}

// Shutdown stops accepting new connections and waits for in-flight
// requests, bounded by the given context.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
