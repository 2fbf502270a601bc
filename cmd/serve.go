package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/halal-lens/filings-cli/internal/model"
	"github.com/halal-lens/filings-cli/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve stored filings over HTTP",
	Long: `Serve stored filings over HTTP.

Exposes read-only JSON endpoints backed by the filings database:

  GET /health             liveness probe
  GET /api/announcements  recent announcements (?limit=, ?confidence=)
  GET /api/financials     extracted snapshots (?symbol=, ?limit=)
  GET /api/stats          aggregate counts`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = cfg.Server.Addr
		}

		srv := &http.Server{
			Addr:              addr,
			Handler:           buildMux(st),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "serve")
		}
		zap.L().Info("server stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default from server.addr)")
	rootCmd.AddCommand(serveCmd)
}

// buildMux assembles the read-only API routes over the store.
func buildMux(st *store.Store) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /api/announcements", func(w http.ResponseWriter, r *http.Request) {
		conf, err := parseConfidenceValue(r.URL.Query().Get("confidence"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		anns, err := st.LatestAnnouncements(r.Context(), queryLimit(r), conf)
		if err != nil {
			zap.L().Error("list announcements", zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if anns == nil {
			anns = []model.Announcement{}
		}
		writeJSON(w, http.StatusOK, anns)
	})

	mux.HandleFunc("GET /api/financials", func(w http.ResponseWriter, r *http.Request) {
		rows, err := st.FinancialData(r.Context(), r.URL.Query().Get("symbol"), queryLimit(r))
		if err != nil {
			zap.L().Error("list financials", zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if rows == nil {
			rows = []store.FinancialRow{}
		}
		writeJSON(w, http.StatusOK, rows)
	})

	mux.HandleFunc("GET /api/stats", func(w http.ResponseWriter, r *http.Request) {
		stats, err := st.Stats(r.Context())
		if err != nil {
			zap.L().Error("stats", zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("encode response", zap.Error(err))
	}
}

// queryLimit reads the limit parameter, falling back to the store default.
func queryLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
