// Package server exposes the repositories over a small HTTP JSON API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	slogecho "github.com/samber/slog-echo"

	"github.com/fivetwenty-io/b24/pkg/bitrix"
)

// Server holds the Echo instance and the client it fronts.
type Server struct {
	echo   *echo.Echo
	client bitrix.Client
}

// New creates a server over the given client.
func New(log *slog.Logger, client bitrix.Client) *Server {
	e := echo.New()

	e.HideBanner = true
	e.HidePort = true

	e.Use(slogecho.New(log))
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	server := &Server{
		echo:   e,
		client: client,
	}

	server.registerRoutes()

	return server
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)

	api := s.echo.Group("/api/v1")
	api.GET("/entities", s.handleEntityTypes)
	api.POST("/:entity/list", s.handleList)
	api.POST("/:entity", s.handleCreate)
	api.GET("/:entity/:id", s.handleGet)
	api.PATCH("/:entity/:id", s.handleUpdate)
	api.DELETE("/:entity/:id", s.handleDelete)
	api.GET("/deals/:id/contacts", s.handleDealContacts)
}

// Start runs the HTTP server until the listener fails or Shutdown is called.
func (s *Server) Start(addr string) error {
	err := s.echo.Start(addr)
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("starting server on %s: %w", addr, err)
	}

	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.echo.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}

	return nil
}
