package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sbrops/groundcheck-cli/internal/orch"
	"github.com/sbrops/groundcheck-cli/internal/runlog"
	"github.com/sbrops/groundcheck-cli/internal/runstore"
)

var servePort int

// liveRun tracks the in-flight session for the progress endpoint.
type liveRun struct {
	mu      sync.Mutex
	active  bool
	mode    string
	input   string
	stats   orch.Stats
	lastRow *runlog.Row
	started time.Time
}

func (l *liveRun) snapshot() map[string]any {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := map[string]any{"active": l.active}
	if l.active || l.stats.Processed > 0 {
		out["mode"] = l.mode
		out["input_file"] = l.input
		out["stats"] = l.stats
		out["started_at"] = l.started
		if l.lastRow != nil {
			out["last_row"] = map[string]any{
				"no": l.lastRow.No, "idsbr": l.lastRow.ID,
				"status": l.lastRow.Status, "catatan": l.lastRow.Note,
			}
		}
	}
	return out
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve run control and progress over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store, err := runstore.Open(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			return err
		}

		live := &liveRun{}

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Get("/api/runs", func(w http.ResponseWriter, req *http.Request) {
			runs, err := store.ListRuns(req.Context(), 50)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, runs)
		})

		r.Get("/api/runs/active", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, live.snapshot())
		})

		r.Get("/api/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
			run, err := store.GetRun(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, run)
		})

		r.Post("/api/runs", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				ExcelFile       string   `json:"excel_file"`
				StartRow        int      `json:"start_row"`
				EndRow          int      `json:"end_row"`
				Headless        bool     `json:"headless"`
				UpdateMode      bool     `json:"update_mode"`
				UpdateFields    []string `json:"update_fields"`
				EditNamaAlamat  bool     `json:"edit_nama_alamat"`
				PreferWebCoords bool     `json:"prefer_web_coords"`
				RateProfile     string   `json:"rate_limit_profile"`
				Resume          bool     `json:"resume"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}
			if body.ExcelFile == "" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "excel_file is required"})
				return
			}

			live.mu.Lock()
			if live.active {
				live.mu.Unlock()
				writeJSON(w, http.StatusConflict, map[string]string{"error": "a run is already active"})
				return
			}
			live.active = true
			live.mode = "run"
			if body.UpdateMode {
				live.mode = "update"
			}
			live.input = body.ExcelFile
			live.stats = orch.Stats{}
			live.lastRow = nil
			live.started = time.Now()
			live.mu.Unlock()

			p := runParams{
				excelFile:       body.ExcelFile,
				startRow:        body.StartRow,
				endRow:          body.EndRow,
				headless:        body.Headless,
				updateMode:      body.UpdateMode,
				updateFields:    body.UpdateFields,
				editNamaAlamat:  body.EditNamaAlamat,
				preferWebCoords: body.PreferWebCoords,
				rateProfile:     body.RateProfile,
				resume:          body.Resume,
			}
			events := orch.Events{
				RowDone: func(index int, row runlog.Row, stats orch.Stats) {
					live.mu.Lock()
					live.stats = stats
					rowCopy := row
					live.lastRow = &rowCopy
					live.mu.Unlock()
				},
				RunDone: func(stats orch.Stats) {
					live.mu.Lock()
					live.stats = stats
					live.active = false
					live.mu.Unlock()
				},
			}

			go func() {
				_, _, err := executeRun(ctx, cfg, p, events)
				if err != nil {
					zap.L().Error("run failed", zap.String("input", body.ExcelFile), zap.Error(err))
				}
				live.mu.Lock()
				live.active = false
				live.mu.Unlock()
			}()

			writeJSON(w, http.StatusAccepted, map[string]string{
				"status":     "accepted",
				"excel_file": body.ExcelFile,
			})
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "serve: listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
