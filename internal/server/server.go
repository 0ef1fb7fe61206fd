// Package server assembles the echo HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/fern/internal/handlers"
	"github.com/Ramsey-B/fern/pkg/middleware"
)

type Config struct {
	ServiceName       string
	Port              int
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	MaxHeaderBytes    int
	BodyLimit         string
}

// Routes is implemented by every API handler.
type Routes interface {
	RegisterRoutes(g *echo.Group)
}

type Server struct {
	echo   *echo.Echo
	http   *http.Server
	health *handlers.HealthChecker
	logger ectologger.Logger
}

func New(logger ectologger.Logger, cfg Config, health *handlers.HealthChecker, routes ...Routes) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(echomw.Recover())
	if cfg.ServiceName != "" {
		e.Use(otelecho.Middleware(cfg.ServiceName))
	}
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	if cfg.BodyLimit != "" {
		e.Use(echomw.BodyLimit(cfg.BodyLimit))
	}

	if health != nil {
		health.RegisterRoutes(e)
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	for _, r := range routes {
		r.RegisterRoutes(api)
	}

	return &Server{
		echo: e,
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			ReadTimeout:       cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			MaxHeaderBytes:    cfg.MaxHeaderBytes,
		},
		health: health,
		logger: logger,
	}
}

func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start begins serving in the background and marks the service ready.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		if err := s.echo.StartServer(s.http); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("HTTP server stopped")
		}
	}()
	if s.health != nil {
		s.health.SetReady(true)
	}
	s.logger.WithContext(ctx).WithField("addr", s.http.Addr).Info("HTTP server listening")
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.health != nil {
		s.health.SetReady(false)
	}
	return s.echo.Shutdown(ctx)
}
