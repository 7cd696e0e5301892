package relay

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/mcdev12/alias/go/internal/replication"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

type Config struct {
	Connection     ConnectionConfig
	AllowedOrigins []string
	PublicURL      string // Base of share links, derived from the request when empty
	MaxStateBytes  int64
	QRSize         int
	UpdateAttempts int // Retries of an unconditional update that raced another writer
}

func DefaultConfig() Config {
	return Config{
		Connection:     DefaultConnectionConfig(),
		AllowedOrigins: []string{"*"},
		MaxStateBytes:  64 << 10,
		QRSize:         320,
		UpdateAttempts: 3,
	}
}

// Service serves the room API and websocket subscriptions over one backend.
type Service struct {
	backend           replication.Backend
	connectionManager *ConnectionManager
	health            *HealthChecker
	metrics           *Metrics
	registry          *prometheus.Registry
	config            Config
}

func NewService(backend replication.Backend, config Config, registry *prometheus.Registry) *Service {
	if config.UpdateAttempts <= 0 {
		config.UpdateAttempts = 1
	}
	metrics := NewMetrics(registry)
	cm := NewConnectionManager(backend, config.Connection, metrics)
	return &Service{
		backend:           backend,
		connectionManager: cm,
		health:            NewHealthChecker(backend, cm, 2*time.Second),
		metrics:           metrics,
		registry:          registry,
		config:            config,
	}
}

// Start runs the connection manager until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	log.Info().Msg("starting relay service")
	s.connectionManager.Start(ctx)
	log.Info().Msg("relay service stopped")
}

func (s *Service) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/rooms", s.handleCreateRoom)
	router.GET("/api/rooms/:code", s.handleGetRoom)
	router.PUT("/api/rooms/:code", s.handleUpdateRoom)
	router.GET("/api/stats", s.handleStats)
	router.GET("/ws/rooms/:code", s.handleRoomConnection)
	router.GET("/rooms/:code/qr.png", s.handleQR)
	router.GET("/health", s.handleHealth)
	router.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
}

// Handler returns the full HTTP stack: routes, CORS and cleartext HTTP/2.
func (s *Service) Handler() http.Handler {
	router := httprouter.New()
	router.PanicHandler = func(w http.ResponseWriter, r *http.Request, v any) {
		log.Error().Interface("panic", v).Str("path", r.URL.Path).Msg("handler panic")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
	s.RegisterRoutes(router)

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
		},
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedHeaders: []string{"*"},
	})
	return h2c.NewHandler(c.Handler(router), &http2.Server{})
}
