package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fxsettle/confirm-cli/internal/engine"
	"github.com/fxsettle/confirm-cli/internal/monitoring"
	"github.com/fxsettle/confirm-cli/internal/pipeline"
	"github.com/fxsettle/confirm-cli/internal/units"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long:  "Serves document registration and pipeline stage endpoints plus Prometheus metrics.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Store.Migrate(ctx); err != nil {
			return eris.Wrap(err, "serve: migrate")
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		reg.MustRegister(monitoring.NewPromCollector(env.Collector))

		r := newRouter(env, reg)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func newRouter(env *pipelineEnv, reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if err := env.Store.Ping(req.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/documents", func(r chi.Router) {
		r.Post("/", handleRegister(env))
		r.Get("/{id}", handleGetDocument(env))
		r.Get("/{id}/history", handleHistory(env))
		r.Get("/{id}/units", handleUnits(env))
		r.Post("/{id}/extract", handleExtract(env))
		r.Post("/{id}/parse", handleParse(env))
		r.Post("/{id}/units", handleDerive(env))
	})

	return r
}

func handleRegister(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			FileName       string `json:"file_name"`
			StorageLocator string `json:"storage_locator"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, eris.Wrap(err, "invalid request body"))
			return
		}
		if body.FileName == "" || body.StorageLocator == "" {
			writeError(w, http.StatusBadRequest, eris.New("file_name and storage_locator are required"))
			return
		}

		doc, err := env.Store.CreateDocument(req.Context(), body.FileName, body.StorageLocator)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusCreated, doc)
	}
}

func handleGetDocument(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		doc, err := env.Store.GetDocument(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if doc == nil {
			writeError(w, http.StatusNotFound, eris.New("document not found"))
			return
		}
		writeJSON(w, http.StatusOK, doc)
	}
}

func handleHistory(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		entries, err := env.Store.HistoryForDocument(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func handleUnits(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		list, err := env.Store.UnitsForDocument(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func handleExtract(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		res, err := env.Pipeline.BeginExtraction(req.Context(), chi.URLParam(req, "id"), pipeline.LocationLocal)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleParse(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Model string `json:"model"`
		}
		if req.Body != nil && req.ContentLength != 0 {
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, eris.Wrap(err, "invalid request body"))
				return
			}
		}
		if body.Model == "" {
			body.Model = cfg.Anthropic.DefaultModel
		}

		res, err := env.Pipeline.BeginParsing(req.Context(), chi.URLParam(req, "id"), body.Model)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleDerive(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		ids, err := env.Pipeline.DeriveMatchingUnits(req.Context(), id)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"document_id":       id,
			"matching_unit_ids": ids,
		})
	}
}

// statusForError maps pipeline error types to HTTP status codes. Validation
// failures in the derivation stage are client-fixable data problems, so they
// map to 422 rather than 500.
func statusForError(err error) int {
	var collab *pipeline.CollaboratorError
	var resolution *units.PartyResolutionError
	var malformed *units.MalformedDateError

	switch {
	case engine.IsNotFound(err):
		return http.StatusNotFound
	case engine.IsInvalidTransition(err):
		return http.StatusConflict
	case errors.Is(err, units.ErrEmptyTransactionSet),
		errors.As(err, &resolution),
		errors.As(err, &malformed):
		return http.StatusUnprocessableEntity
	case errors.As(err, &collab):
		return http.StatusBadGateway
	case errors.Is(err, pipeline.ErrCloudStorageUnsupported):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("write response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
