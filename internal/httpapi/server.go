// Package httpapi exposes the pipeline engine over HTTP and WebSocket,
// grounded on the teacher's cmd/gateway/main.go server wiring (gorilla/mux
// router, http.Server with explicit timeouts, signal-driven graceful
// shutdown) and golang.org/x/time/rate for request throttling.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/nodeforge/pipelinecore/internal/catalog"
	"github.com/nodeforge/pipelinecore/internal/engine"
	"github.com/nodeforge/pipelinecore/internal/eventbus"
	"github.com/nodeforge/pipelinecore/internal/logging"
	"github.com/nodeforge/pipelinecore/internal/metrics"
	"github.com/nodeforge/pipelinecore/internal/registry"
	"github.com/nodeforge/pipelinecore/internal/storage"
)

// Server wires the pipeline engine's domain services to an HTTP surface.
type Server struct {
	httpServer *http.Server
	hub        *eventHub
	log        *logging.Logger
}

// Deps collects every component the HTTP surface needs to handle requests.
type Deps struct {
	Addr           string
	Engine         *engine.Engine
	Registry       *registry.Registry
	Catalog        *catalog.Catalog
	Pipelines      storage.PipelineRepository
	Composites     storage.CompositeRepository
	Bus            *eventbus.Bus
	Metrics        *metrics.Metrics
	RateLimitRPS   float64
	RateLimitBurst int
	Log            *logging.Logger
}

// NewServer builds the router and http.Server but does not start listening.
func NewServer(deps Deps) *Server {
	log := deps.Log
	if log == nil {
		log = logging.NewDefault("httpapi")
	}

	hub := newEventHub(deps.Bus, log)

	h := &handlers{
		engine:     deps.Engine,
		registry:   deps.Registry,
		catalog:    deps.Catalog,
		pipelines:  deps.Pipelines,
		composites: deps.Composites,
		metrics:    deps.Metrics,
		log:        log,
	}

	router := mux.NewRouter()
	registerRoutes(router, h, hub)

	limiter := rate.NewLimiter(rate.Limit(deps.RateLimitRPS), deps.RateLimitBurst)
	var handler http.Handler = router
	handler = rateLimitMiddleware(limiter, handler)
	handler = metricsMiddleware(deps.Metrics, handler)
	handler = loggingMiddleware(log, handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              deps.Addr,
			Handler:           handler,
			ReadTimeout:       30 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
		hub: hub,
		log: log,
	}
}

func registerRoutes(router *mux.Router, h *handlers, hub *eventHub) {
	router.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/ws/events", hub.serveWS).Methods(http.MethodGet)

	pipelines := router.PathPrefix("/api/pipelines").Subrouter()
	pipelines.HandleFunc("", h.listPipelines).Methods(http.MethodGet)
	pipelines.HandleFunc("", h.createPipeline).Methods(http.MethodPost)
	pipelines.HandleFunc("/{id}", h.getPipeline).Methods(http.MethodGet)
	pipelines.HandleFunc("/{id}", h.deletePipeline).Methods(http.MethodDelete)
	pipelines.HandleFunc("/{id}/execute", h.executePipeline).Methods(http.MethodPost)

	composites := router.PathPrefix("/api/composites").Subrouter()
	composites.HandleFunc("", h.listComposites).Methods(http.MethodGet)
	composites.HandleFunc("", h.createComposite).Methods(http.MethodPost)
	composites.HandleFunc("/{id}", h.getComposite).Methods(http.MethodGet)
	composites.HandleFunc("/{id}", h.deleteComposite).Methods(http.MethodDelete)

	devices := router.PathPrefix("/api/devices").Subrouter()
	devices.HandleFunc("", h.listDevices).Methods(http.MethodGet)
	devices.HandleFunc("", h.createDevice).Methods(http.MethodPost)
	devices.HandleFunc("/{id}", h.removeDevice).Methods(http.MethodDelete)
	devices.HandleFunc("/{id}/connect", h.connectDevice).Methods(http.MethodPost)
	devices.HandleFunc("/{id}/disconnect", h.disconnectDevice).Methods(http.MethodPost)
	devices.HandleFunc("/{id}/execute/{function_id}", h.executeDeviceFunction).Methods(http.MethodPost)

	plugins := router.PathPrefix("/api/plugins").Subrouter()
	plugins.HandleFunc("", h.listPlugins).Methods(http.MethodGet)
	plugins.HandleFunc("/{id}/reload", h.reloadPlugin).Methods(http.MethodPost)
}

// Run starts listening and blocks until ctx is canceled, then drains
// in-flight requests with a bounded shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	go s.hub.pump(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.httpServer.Addr).Info("http server starting")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.log.Info("http server shutting down")
	return s.httpServer.Shutdown(shutdownCtx)
}
