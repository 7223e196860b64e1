// Package api exposes the swap engine over HTTP: instruction submission,
// state and balance reads, the event journal and a websocket event stream.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"sai-swap/internal/observability"
	"sai-swap/internal/program"
	"sai-swap/internal/storage"
	"sai-swap/internal/swap"
	"sai-swap/internal/token"
)

const logModule = "api"

// Config captures the dependencies required to construct the server.
type Config struct {
	Processor *program.Processor
	Engine    *swap.Engine
	Tokens    *token.Service
	Events    storage.EventStore
	Hub       *Hub
	Metrics   *observability.Metrics
	Gatherer  prometheus.Gatherer // nil serves the default registry

	// DevMode mounts the /v1/dev funding endpoints.
	DevMode bool

	WriteTimeout time.Duration
	PingInterval time.Duration
}

// Server encapsulates dependencies for the HTTP API.
type Server struct {
	processor *program.Processor
	engine    *swap.Engine
	tokens    *token.Service
	events    storage.EventStore
	hub       *Hub
	metrics   *observability.Metrics
	gatherer  prometheus.Gatherer
	devMode   bool

	writeTimeout time.Duration
	pingInterval time.Duration
	upgrader     websocket.Upgrader

	router http.Handler
}

// New constructs the server and its router.
func New(cfg Config) *Server {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.Hub == nil {
		cfg.Hub = NewHub(64, cfg.Metrics)
	}

	s := &Server{
		processor:    cfg.Processor,
		engine:       cfg.Engine,
		tokens:       cfg.Tokens,
		events:       cfg.Events,
		hub:          cfg.Hub,
		metrics:      cfg.Metrics,
		gatherer:     cfg.Gatherer,
		devMode:      cfg.DevMode,
		writeTimeout: cfg.WriteTimeout,
		pingInterval: cfg.PingInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.router = s.buildRouter()
	return s
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	metricsHandler := observability.Handler()
	if s.gatherer != nil {
		metricsHandler = observability.HandlerFor(s.gatherer)
	}
	r.Handle("/metrics", metricsHandler)

	r.Route("/v1", func(api chi.Router) {
		api.Post("/instructions", s.SubmitInstruction)
		api.Get("/states/{key}", s.GetState)
		api.Get("/states/{key}/vaults", s.GetVaults)
		api.Get("/states/{key}/events", s.GetEvents)
		api.Get("/accounts/{address}", s.GetAccount)
		api.Get("/events/stream", s.StreamEvents)

		if s.devMode {
			api.Route("/dev", func(dev chi.Router) {
				dev.Post("/mints", s.CreateMint)
				dev.Post("/accounts", s.CreateAccount)
				dev.Post("/mint-to", s.MintTo)
			})
		}
	})
	return r
}

// instrument records request metrics under the matched route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		s.metrics.RecordHTTP(route, strconv.Itoa(status), time.Since(start))
		log.WithFields(log.Fields{
			"module":     logModule,
			"method":     r.Method,
			"route":      route,
			"status":     status,
			"request_id": chimw.GetReqID(r.Context()),
			"duration":   time.Since(start).String(),
		}).Debug("request")
	})
}
