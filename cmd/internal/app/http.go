package app

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"goban/cmd/internal/auth/api"
	"goban/cmd/internal/realtime"
)

func registerHTTP(
	mux *http.ServeMux,
	log Logger,
	cfg Config,
	pool *pgxpool.Pool,
	ws *realtime.WSGateway,
	auth *api.Handler,
) {
	// Liveness: the process is up. Body is exactly "ok".
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Readiness: the database answers within the acquire timeout.
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := PingDB(r.Context(), pool, cfg.DBAcquireTimeout); err != nil {
			log.Info("readyz.db.not_ready", "err", err)
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	mux.Handle("/metrics", promhttp.Handler())

	auth.Register(mux)

	mux.HandleFunc("/ws", ws.HandleWS)
}
