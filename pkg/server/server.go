// Package server exposes the coordinator, the plugin registry and the event
// stream over HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/igorsilveira/clawnet/pkg/a2a"
	"github.com/igorsilveira/clawnet/pkg/audit"
	"github.com/igorsilveira/clawnet/pkg/events"
	"github.com/igorsilveira/clawnet/pkg/plugin"
	"github.com/igorsilveira/clawnet/pkg/protocol"
	"github.com/igorsilveira/clawnet/pkg/scheduler"
	"github.com/igorsilveira/clawnet/pkg/telemetry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	server    *http.Server
	router    *chi.Mux
	coord     *protocol.Coordinator
	registry  *plugin.Registry
	hub       *events.Hub
	audit     *audit.Logger
	scheduler *scheduler.Scheduler
	logger    *slog.Logger
	webhooks  http.Handler
	rpc       http.Handler
	authToken string
	publicURL string
	version   string
}

type Config struct {
	Addr        string
	Coordinator *protocol.Coordinator
	Registry    *plugin.Registry
	Hub         *events.Hub
	Audit       *audit.Logger
	Scheduler   *scheduler.Scheduler
	Logger      *slog.Logger
	// Webhooks receives signed gateway callbacks at /webhooks/gateway.
	Webhooks http.Handler
	// RPC is mounted at /rpc when set.
	RPC       http.Handler
	AuthToken string
	// PublicURL and Version are advertised in the agent card.
	PublicURL string
	Version   string
}

func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Registry == nil && cfg.Coordinator != nil {
		cfg.Registry = plugin.Default(cfg.Coordinator, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(countRequests)

	s := &Server{
		router:    r,
		coord:     cfg.Coordinator,
		registry:  cfg.Registry,
		hub:       cfg.Hub,
		audit:     cfg.Audit,
		scheduler: cfg.Scheduler,
		logger:    telemetry.Component(cfg.Logger, "server"),
		webhooks:  cfg.Webhooks,
		rpc:       cfg.RPC,
		authToken: cfg.AuthToken,
		publicURL: cfg.PublicURL,
		version:   cfg.Version,
	}

	s.registerRoutes()

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)
	s.router.Handle("/metrics", promhttp.Handler())

	if s.coord != nil {
		s.router.Get(a2a.CardPath, a2a.CardHandler(s.coord, s.registry, s.publicURL, s.version))
	}
	if s.rpc != nil {
		s.router.Mount("/rpc", s.rpc)
	}
	if s.webhooks != nil {
		s.router.Post("/webhooks/gateway", s.webhooks.ServeHTTP)
	}

	s.router.Group(func(r chi.Router) {
		if s.authToken != "" {
			r.Use(s.authMiddleware)
		}
		if s.hub != nil {
			r.Get("/ws", s.handleEvents)
		}
		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/stats", s.handleStats)
			r.Get("/agents", s.handleAgents)
			r.Get("/agents/{id}/reputation", s.handleReputation)
			r.Get("/messages", s.handleMessages)
			r.Get("/channels/{id}", s.handleChannel)
			r.Get("/channels/{id}/participants", s.handleParticipants)
			r.Get("/escrows", s.handleEscrows)
			r.Get("/escrows/{id}", s.handleEscrow)
			r.Post("/escrows/{id}/{transition}", s.handleEscrowTransition)

			r.Get("/plugins", s.handlePlugins)
			r.Post("/actions/{name}", s.handleAction)
			r.Get("/providers/{name}", s.handleProvider)
			r.Post("/evaluators/{name}", s.handleEvaluator)

			r.Get("/jobs", s.handleJobs)
			r.Get("/audit", s.handleAudit)
		})
	})
}

func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("server listening", slog.String("addr", s.server.Addr))

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("server listen: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errCh:
		return err
	}
}

func (s *Server) shutdown() error {
	s.logger.Info("server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ok"}`)
}

type readiness struct {
	Status      string             `json:"status"`
	Initialized bool               `json:"initialized"`
	Registered  bool               `json:"registered"`
	Gateway     bool               `json:"gateway"`
	Jobs        []scheduler.Status `json:"jobs,omitempty"`
}

// handleReadyz reports 503 until the coordinator is configured and its
// gateway answers a health check.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	rd := readiness{Status: "ready"}
	if s.coord != nil {
		rd.Initialized = s.coord.Initialized()
		rd.Registered = s.coord.Registered()
		rd.Gateway = s.coord.HealthCheck(r.Context())
	}
	if s.scheduler != nil {
		rd.Jobs = s.scheduler.Jobs()
	}

	code := http.StatusOK
	if !rd.Initialized || !rd.Gateway {
		rd.Status = "not ready"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, rd)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header || token != s.authToken {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// countRequests labels by route pattern so path parameters do not explode
// the series count.
func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		telemetry.Metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// statusFor maps a protocol error class to an HTTP status.
func statusFor(kind string) int {
	switch kind {
	case "InvalidArgument":
		return http.StatusBadRequest
	case "NotFound":
		return http.StatusNotFound
	case "NotRegistered":
		return http.StatusConflict
	case "NotConfigured", "NotInitialized":
		return http.StatusServiceUnavailable
	case "DeliveryFailed":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := protocol.KindOf(err)
	code := statusFor(kind)
	if code >= http.StatusInternalServerError {
		telemetry.Metrics.ErrorsTotal.WithLabelValues("server").Inc()
		s.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("kind", kind),
			slog.String("err", err.Error()),
		)
	}
	writeJSON(w, code, errorBody{Error: err.Error(), Kind: kind})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg, Kind: "InvalidArgument"})
}
