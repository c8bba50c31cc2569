package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mrnkim/adland-tv/internal/api"
	"github.com/mrnkim/adland-tv/internal/config"
	"github.com/mrnkim/adland-tv/internal/db"
	"github.com/mrnkim/adland-tv/internal/feed"
	"github.com/mrnkim/adland-tv/internal/ingest"
	"github.com/mrnkim/adland-tv/internal/ledger"
	"github.com/mrnkim/adland-tv/internal/logging"
)

func runServe(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("adland-ingest serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	port := fs.Int("port", 0, "listen port (default from config)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return exitFatal
	}
	if *port == 0 {
		*port = cfg.Port()
	}
	logger := logging.NewLogger(cfg.LogLevel(), cfg.LogFormat())
	logger.Info("starting adland ingest server", "version", Version, "data_dir", logging.SanitizePath(cfg.DataDir()))

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		logger.Error("failed to create data dir", "error", err)
		return exitFatal
	}

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		return exitFatal
	}
	defer database.Close()

	repo := ledger.NewRepository(database.Conn())
	authToken, err := ensureAuthToken(ctx, repo, cfg.APIToken())
	if err != nil {
		logger.Error("failed to ensure auth token", "error", err)
		return exitFatal
	}

	// Without credentials the server still answers and plans dry runs; the
	// pipeline refuses anything else.
	client, err := newClient(cfg, logger, true)
	if err != nil {
		logger.Error("failed to configure remote index", "error", err)
		return exitFatal
	}

	hub := api.NewHub(64, logging.WithComponent(logger, "events"))
	observer := ingest.NewBroadcaster(logger, ledger.NewRecorder(repo, logger), hub)
	c, err := newPipeline(cfg, client, observer, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		return exitFatal
	}

	initCtx, initCancel := context.WithTimeout(ctx, 10*time.Second)
	if st := c.doctor.Refresh(initCtx); st.Available {
		logger.Info("yt-dlp detected", "version", st.Version)
	} else {
		logger.Warn("yt-dlp unavailable, downloads will fail", "path", st.Path, "error", st.Error)
	}
	initCancel()

	runner := ingest.NewRunner(ctx, c.pipeline, logger)
	server := api.NewServer(api.ServerConfig{
		Port:       *port,
		Store:      c.pipeline.Store(),
		Repository: repo,
		Runner:     runner,
		Hub:        hub,
		Doctor:     c.doctor,
		MediaPath: func(title string) string {
			return c.downloader.PathFor(feed.Entry{Title: title})
		},
		Logger:     logger,
		StartTime:  startTime,
		Version:    Version,
	})

	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "╔═══════════════════════════════════════════════════════════╗")
	fmt.Fprintf(stdout, "║  ADLAND INGEST SERVER v%-35s║\n", Version)
	fmt.Fprintln(stdout, "╠═══════════════════════════════════════════════════════════╣")
	fmt.Fprintf(stdout, "║  API URL:    http://127.0.0.1:%-28d║\n", *port)
	fmt.Fprintf(stdout, "║  Auth Token: %-45s║\n", authToken)
	fmt.Fprintln(stdout, "╚═══════════════════════════════════════════════════════════╝")
	fmt.Fprintln(stdout)
	logger.Info("api token ready", "token", logging.SanitizeToken(authToken))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	code := exitOK
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server error", "error", err)
			code = exitFatal
		}
	}

	logger.Info("initiating graceful shutdown")
	if runner.Cancel() {
		logger.Info("waiting for the active run to stop")
	}
	runner.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return code
}

// ensureAuthToken returns the API token, preferring an explicitly configured
// one, then a stored one, and otherwise generating and storing a new token.
func ensureAuthToken(ctx context.Context, repo ledger.Repository, configured string) (string, error) {
	if configured != "" {
		if err := repo.SetConfig(ctx, api.TokenConfigKey, configured); err != nil {
			return "", err
		}
		return configured, nil
	}

	existing, err := repo.GetConfig(ctx, api.TokenConfigKey)
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, api.TokenConfigKey, token); err != nil {
		return "", err
	}
	return token, nil
}
