// Package server exposes documents and cluster counters over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"clusterfs/pkg/attachment"
	"clusterfs/pkg/catalog"
	"clusterfs/pkg/cluster"
	"clusterfs/pkg/log"
)

const (
	shutdownTimeout = 10
	syncTimeout     = 30
)

// Server is the clusterd HTTP API.
type Server struct {
	echo      *echo.Echo
	version   string
	documents *catalog.Store
	allocator *cluster.Allocator
	pipeline  *attachment.Pipeline
	gatherer  prometheus.Gatherer
}

// NewServer wires the handlers. A nil gatherer disables /metrics.
func NewServer(version string, documents *catalog.Store, allocator *cluster.Allocator,
	pipeline *attachment.Pipeline, gatherer prometheus.Gatherer) *Server {
	server := &Server{
		echo:      echo.New(),
		version:   version,
		documents: documents,
		allocator: allocator,
		pipeline:  pipeline,
		gatherer:  gatherer,
	}
	server.setupRoutes()
	return server
}

// Handler returns the routed HTTP handler.
func (srv *Server) Handler() http.Handler {
	return srv.echo
}

// Start serves on addr until SIGINT or SIGTERM, then shuts down.
func (srv *Server) Start(addr string) error {
	// Start server in a goroutine
	go func() {
		log.Info().
			Str("addr", addr).
			Str("version", srv.version).
			Msg("Starting clusterfs server")

		if err := srv.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server startup failed")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	return srv.Shutdown()
}

// Shutdown stops the HTTP server and flushes filesystem buffers.
func (srv *Server) Shutdown() error {
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout*time.Second)
	defer cancel()

	if err := srv.echo.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
		return err
	}

	log.Info().Msg("Server gracefully stopped")

	// Execute sync command to flush filesystem buffers with a fresh context
	log.Info().Msg("Executing sync command...")
	syncCtx, syncCancel := context.WithTimeout(context.Background(), syncTimeout*time.Second)
	defer syncCancel()

	cmd := exec.CommandContext(syncCtx, "sync")
	if err := cmd.Run(); err != nil {
		log.Warn().Err(err).Msg("Sync command failed")
	} else {
		log.Info().Msg("Filesystem buffers flushed successfully")
	}

	log.Info().Msg("Shutdown complete")
	return nil
}

func (srv *Server) setupRoutes() {
	// Echo configuration
	srv.echo.HideBanner = true
	srv.echo.HidePort = true

	srv.echo.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	srv.echo.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "${time_rfc3339} ${id} ${status} ${method} ${uri} (${latency_human})\n",
	}))
	srv.echo.Use(middleware.Recover())

	srv.echo.GET("/documents", srv.listDocuments)
	srv.echo.POST("/documents/:kind", srv.uploadDocument)
	srv.echo.GET("/documents/:id", srv.getDocument)
	srv.echo.GET("/documents/:id/download", srv.downloadDocument)
	srv.echo.DELETE("/documents/:id", srv.deleteDocument)

	srv.echo.GET("/clusters/:bucket", srv.getCluster)
	srv.echo.POST("/clusters/:bucket/allocate", srv.allocate)

	if srv.gatherer != nil {
		srv.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(srv.gatherer, promhttp.HandlerOpts{})))
	}
}

// requestID returns the id assigned by the RequestID middleware.
func requestID(ctx echo.Context) string {
	return ctx.Response().Header().Get(echo.HeaderXRequestID)
}
