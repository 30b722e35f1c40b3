package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ipro-analytics/ipro-cli/internal/model"
	"github.com/ipro-analytics/ipro-cli/internal/monitoring"
	"github.com/ipro-analytics/ipro-cli/internal/pipeline"
	"github.com/ipro-analytics/ipro-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read API for datasets, analytics, and alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		run := newRunner(st, time.Time{})
		limiter := rate.NewLimiter(rate.Limit(cfg.Server.RateLimit), cfg.Server.RateBurst)

		checker := monitoring.NewChecker(monitoring.NewCollector(st), 0, 0, 0)
		go checker.Run(ctx)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(st, run, limiter),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// newRouter builds the API handler. Separated from the command so tests
// can drive it with httptest.
func newRouter(st store.Store, run *pipeline.Runner, limiter *rate.Limiter) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(throttle(limiter))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		snap, err := monitoring.NewCollector(st).Collect(req.Context(), queryInt(req, "lookback", 0))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})

	r.Get("/datasets", func(w http.ResponseWriter, req *http.Request) {
		limit := queryInt(req, "limit", 50)
		offset := queryInt(req, "offset", 0)

		datasets, err := st.ListDatasets(req.Context(), limit, offset)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, datasets)
	})

	r.Route("/datasets/{id}", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			ds, err := st.GetDataset(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeJSON(w, http.StatusOK, ds)
		})

		r.Post("/analyze", func(w http.ResponseWriter, req *http.Request) {
			id := chi.URLParam(req, "id")
			if _, err := st.GetDataset(req.Context(), id); err != nil {
				writeError(w, http.StatusNotFound, err)
				return
			}

			// Recompute asynchronously; the per-dataset lock inside the
			// runner serializes overlapping requests.
			go func() {
				if err := run.Analyze(context.Background(), id); err != nil {
					zap.L().Error("analyze request failed",
						zap.String("dataset_id", id),
						zap.Error(err),
					)
				}
			}()

			writeJSON(w, http.StatusAccepted, map[string]string{
				"status":     "accepted",
				"dataset_id": id,
			})
		})

		r.Get("/analytics/customers", func(w http.ResponseWriter, req *http.Request) {
			rows, err := st.ListCustomerAnalytics(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, rows)
		})

		r.Get("/analytics/products", func(w http.ResponseWriter, req *http.Request) {
			rows, err := st.ListProductAnalytics(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, rows)
		})

		r.Get("/kpis", func(w http.ResponseWriter, req *http.Request) {
			kpis, err := st.GetKPIs(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			if kpis == nil {
				writeError(w, http.StatusNotFound, eris.New("kpis not computed"))
				return
			}
			writeJSON(w, http.StatusOK, kpis)
		})

		r.Get("/alerts", func(w http.ResponseWriter, req *http.Request) {
			q := req.URL.Query()
			filter := store.AlertFilter{
				Type:        model.AlertType(q.Get("type")),
				Reliability: model.Reliability(q.Get("reliability")),
				Client:      q.Get("client"),
				Limit:       queryInt(req, "limit", 0),
			}

			alerts, err := st.ListAlerts(req.Context(), chi.URLParam(req, "id"), filter)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, alerts)
		})
	})

	return r
}

// throttle rejects requests over the shared rate budget with 429.
func throttle(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeError(w, http.StatusTooManyRequests, eris.New("rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
