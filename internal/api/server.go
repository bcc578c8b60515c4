package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/smazurov/vidcap/internal/api/models"
	"github.com/smazurov/vidcap/internal/events"
	"github.com/smazurov/vidcap/internal/inventory"
	"github.com/smazurov/vidcap/internal/logging"
	"github.com/smazurov/vidcap/internal/version"
	"github.com/smazurov/vidcap/pkg/vidcap"
)

// Server is the vidcap status API.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	inventory  inventory.Service
	eventBus   *events.Bus
	options    *Options
	logger     *slog.Logger
}

// Options configures the API server.
type Options struct {
	AuthUsername      string
	AuthPassword      string
	Inventory         inventory.Service
	EventBus          *events.Bus
	PrometheusHandler http.Handler // Optional Prometheus metrics handler
}

// NewServer creates the API server with Huma v2 on Go 1.22+ native routing.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("vidcap API", version.String())
	config.Info.Description = "Status and preview API for video capture backends"
	// Empty servers list makes OpenAPI use relative paths
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, config)

	bus := opts.EventBus
	if bus == nil {
		bus = events.New()
	}

	server := &Server{
		api:       api,
		mux:       mux,
		inventory: opts.Inventory,
		eventBus:  bus,
		options:   opts,
		logger:    logging.GetLogger("api"),
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(server.requireAuth(opts.AuthUsername, opts.AuthPassword))
	}

	// Registered before the API routes; scrapers do not authenticate
	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	server.registerRoutes()
	return server
}

// GetMux returns the underlying HTTP ServeMux for additional setup
func (s *Server) GetMux() *http.ServeMux {
	return s.mux
}

// GetAPI returns the Huma API instance
func (s *Server) GetAPI() huma.API {
	return s.api
}

// Start serves on addr until Stop.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting vidcap API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}
	return s.httpServer.ListenAndServe()
}

// Stop closes the listener and every open connection, SSE streams included.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health status",
		Tags:        []string{"health"},
		Security:    []map[string][]string{}, // Empty security = no auth required
	}, func(_ context.Context, _ *struct{}) (*models.HealthResponse, error) {
		return &models.HealthResponse{
			Body: models.HealthData{
				Status:  "ok",
				Message: "API is healthy",
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*models.VersionResponse, error) {
		return &models.VersionResponse{Body: version.Get()}, nil
	})

	s.registerCaptureRoutes()
	s.registerLogRoutes()
	s.registerSSERoutes()
	s.registerMetricsRoutes()
}

// toHTTPError maps inventory and capture errors onto status codes.
func toHTTPError(err error) error {
	switch {
	case errors.Is(err, inventory.ErrUnknownBackend),
		errors.Is(err, inventory.ErrUnknownSource),
		errors.Is(err, inventory.ErrNoSession):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, vidcap.ErrAlreadyAcquired),
		errors.Is(err, vidcap.ErrInvalidStateTransition):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, vidcap.ErrFormatUnsupported):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.Is(err, vidcap.ErrOutOfMemory):
		return huma.NewError(http.StatusInsufficientStorage, err.Error())
	default:
		return huma.Error500InternalServerError("capture backend failure", err)
	}
}
