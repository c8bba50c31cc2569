package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mrnkim/adland-tv/internal/acquire"
	"github.com/mrnkim/adland-tv/internal/checkpoint"
	"github.com/mrnkim/adland-tv/internal/ingest"
	"github.com/mrnkim/adland-tv/internal/ledger"
)

type Server struct {
	httpServer *http.Server
	hub        *Hub
	logger     *slog.Logger
}

type ServerConfig struct {
	Port       int
	Store      *checkpoint.Store
	Repository ledger.Repository
	Runner     *ingest.Runner
	Hub        *Hub
	Doctor     *acquire.CachedDoctor
	// MediaPath maps an item title to its cached download; nil disables
	// media previews.
	MediaPath  func(title string) string
	Logger     *slog.Logger
	StartTime  time.Time
	Version    string
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		hub:    cfg.Hub,
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.hub != nil {
		s.hub.Close()
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
