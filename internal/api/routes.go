package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mrnkim/adland-tv/internal/checkpoint"
	"github.com/mrnkim/adland-tv/internal/ingest"
	"github.com/mrnkim/adland-tv/internal/ledger"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/batches", listBatchesHandler(cfg))
		r.Get("/batches/{tag}", getBatchHandler(cfg))
		r.Get("/batches/{tag}/handoff", handoffHandler(cfg))
		r.Post("/batches/{tag}/runs", startRunHandler(cfg))
		if cfg.MediaPath != nil {
			r.Get("/batches/{tag}/items/{slug}/media", mediaHandler(cfg))
		}
		r.Get("/runs", listRunsHandler(cfg))
		r.Get("/runs/{id}", getRunHandler(cfg))
		if cfg.Hub != nil {
			r.Get("/events", cfg.Hub.ServeHTTP)
		}
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
		}
		if cfg.Hub != nil {
			resp.Subscribers = cfg.Hub.Subscribers()
		}
		if cfg.Doctor != nil {
			if st, ok := cfg.Doctor.Peek(); ok {
				resp.Tool = &st
			}
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func listBatchesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tags, err := cfg.Store.List()
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list batches", "INTERNAL_ERROR")
			return
		}

		resp := BatchesResponse{Batches: make([]BatchSummary, 0, len(tags))}
		for _, tag := range tags {
			progress, err := cfg.Store.Load(tag)
			if err != nil {
				cfg.Logger.Warn("skipping unreadable batch", "tag", tag, "error", err)
				continue
			}
			s := summarize(tag, progress)
			if runs, err := cfg.Repository.ListRuns(r.Context(), ledger.RunFilter{Tag: tag, Limit: 1}); err == nil && len(runs) > 0 {
				s.LastRun = runs[0]
			}
			resp.Batches = append(resp.Batches, s)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getBatchHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tag, ok := batchTag(w, r)
		if !ok {
			return
		}

		progress, err := cfg.Store.Load(tag)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		runs, err := cfg.Repository.ListRuns(r.Context(), ledger.RunFilter{Tag: tag, Limit: 20})
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list runs", "INTERNAL_ERROR")
			return
		}
		if _, statErr := os.Stat(cfg.Store.Path(tag)); errors.Is(statErr, os.ErrNotExist) && len(runs) == 0 {
			WriteError(w, http.StatusNotFound, "batch not found", "NOT_FOUND")
			return
		}

		resp := BatchResponse{
			BatchSummary:   summarize(tag, progress),
			CompletedItems: progress.Completed,
			FailedItems:    progress.Failed,
			Runs:           runs,
		}
		if len(runs) > 0 {
			resp.LastRun = runs[0]
		}
		if resp.Runs == nil {
			resp.Runs = []*ledger.Run{}
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func handoffHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tag, ok := batchTag(w, r)
		if !ok {
			return
		}

		f, err := os.Open(cfg.Store.HandoffPath(tag))
		if errors.Is(err, os.ErrNotExist) {
			WriteError(w, http.StatusNotFound, "no handoff for batch", "NOT_FOUND")
			return
		}
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		defer f.Close()

		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, f); err != nil {
			cfg.Logger.Warn("failed to send handoff", "tag", tag, "error", err)
		}
	}
}

func startRunHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tag, ok := batchTag(w, r)
		if !ok {
			return
		}

		var req StartRunRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
				WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
				return
			}
		}
		if req.Limit < 0 {
			WriteError(w, http.StatusBadRequest, "limit must not be negative", "BAD_REQUEST")
			return
		}

		runID, err := cfg.Runner.Start(ingest.Options{
			Tag:         tag,
			DryRun:      req.DryRun,
			Limit:       req.Limit,
			RetryFailed: req.RetryFailed,
		})
		if errors.Is(err, ingest.ErrRunActive) {
			WriteError(w, http.StatusConflict, err.Error(), "RUN_ACTIVE")
			return
		}
		if errors.Is(err, ingest.ErrRemoteUnavailable) {
			WriteError(w, http.StatusServiceUnavailable, err.Error(), "REMOTE_UNAVAILABLE")
			return
		}
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusAccepted, StartRunResponse{RunID: runID, Tag: tag})
	}
}

func listRunsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := ledger.RunFilter{Tag: q.Get("tag"), Status: q.Get("status")}
		if v := q.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 500 {
				WriteError(w, http.StatusBadRequest, "limit must be between 1 and 500", "BAD_REQUEST")
				return
			}
			f.Limit = n
		}

		runs, err := cfg.Repository.ListRuns(r.Context(), f)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list runs", "INTERNAL_ERROR")
			return
		}
		if runs == nil {
			runs = []*ledger.Run{}
		}

		resp := RunsResponse{Runs: runs}
		if cfg.Runner != nil {
			resp.Active = ActiveToResponse(cfg.Runner.State())
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getRunHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "run id required", "BAD_REQUEST")
			return
		}

		run, err := cfg.Repository.GetRun(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if run == nil {
			WriteError(w, http.StatusNotFound, "run not found", "NOT_FOUND")
			return
		}

		items, err := cfg.Repository.ListItems(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if items == nil {
			items = []*ledger.RunItem{}
		}
		WriteJSON(w, http.StatusOK, RunResponse{Run: run, Items: items})
	}
}

func batchTag(w http.ResponseWriter, r *http.Request) (string, bool) {
	tag := chi.URLParam(r, "tag")
	if err := checkpoint.ValidateTag(tag); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
		return "", false
	}
	return tag, true
}
