package metrics

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talkbase/talkbase/pkg/application"
	"github.com/talkbase/talkbase/pkg/configuration"
)

const defaultPath = "/debug/prometheus"

// PrometheusController exposes the process metrics registry. Mounted
// only when metrics are enabled in configuration.
type PrometheusController struct {
	path string
}

func NewPrometheusController(path string) application.Controller {
	if path == "" {
		path = defaultPath
	}
	return &PrometheusController{path: path}
}

func (c *PrometheusController) Key() string {
	return c.path
}

func (c *PrometheusController) Register(r *mux.Router) {
	handler := promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		ErrorLog:          scrapeLogger{},
		EnableOpenMetrics: true,
	})
	r.Handle(c.path, handler).Methods(http.MethodGet)
}

type scrapeLogger struct{}

func (scrapeLogger) Println(v ...interface{}) {
	configuration.Use().Logger().Errorln(v...)
}
