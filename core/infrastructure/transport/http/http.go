package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/hyperterse/widgetquery/core/infrastructure/logging"
	"github.com/hyperterse/widgetquery/core/infrastructure/transport/http/middleware"
)

// Server represents the HTTP server
type Server struct {
	router   *chi.Mux
	server   *http.Server
	port     string
	shutdown context.CancelFunc
	log      logging.Logger
}

// NewServer creates a new HTTP server. An empty origins list allows any origin.
func NewServer(port string, corsOrigins []string) *Server {
	if port == "" {
		port = "8080"
	}
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Tracing)
	r.Use(middleware.RequestContext)
	r.Use(middleware.RequestLogger)
	r.Use(middleware.Metrics)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Retry-After", "X-Request-Id"},
		MaxAge:         300,
	}))

	return &Server{
		router: r,
		port:   port,
		log:    logging.New("http"),
	}
}

// Router returns the chi router
func (s *Server) Router() *chi.Mux {
	return s.router
}

// listen binds the port and prepares the http.Server before any goroutine starts
func (s *Server) listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", ":"+s.port)
	if err != nil {
		return nil, err
	}
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return ln, nil
}

// Start serves until the server is stopped
func (s *Server) Start() error {
	ln, err := s.listen()
	if err != nil {
		return err
	}
	return s.serve(ln)
}

// StartAsync binds the port and serves in the background
func (s *Server) StartAsync() error {
	ln, err := s.listen()
	if err != nil {
		return err
	}
	go func() {
		if err := s.serve(ln); err != nil {
			s.log.Errorf("HTTP server error: %v", err)
		}
	}()
	return nil
}

func (s *Server) serve(ln net.Listener) error {
	s.log.Successf("HTTP server listening on http://127.0.0.1:%s", s.port)
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server gracefully
func (s *Server) Stop() error {
	s.log.Infof("Shutting down HTTP server")

	if s.shutdown != nil {
		s.shutdown()
	}

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		s.log.Errorf("Error shutting down HTTP server: %v", err)
		if closeErr := s.server.Close(); closeErr != nil {
			s.log.Errorf("Error force closing HTTP server: %v", closeErr)
		}
		return err
	}

	s.log.Infof("HTTP server stopped")
	return nil
}

// SetShutdownFunc sets the shutdown function to be called on stop
func (s *Server) SetShutdownFunc(fn context.CancelFunc) {
	s.shutdown = fn
}
