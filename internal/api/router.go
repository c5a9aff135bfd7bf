package api

import (
	"net/http"
	"strings"

	"github.com/felixge/httpsnoop"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type RouterConfig struct {
	AllowedOrigins []string
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

// Router mounts every endpoint of the server.
func (a *API) Router(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(a.accessLog)
	r.Use(corsMiddleware(cfg.AllowedOrigins))

	r.Get("/health", a.HealthHandler)
	r.Get("/ws", a.ServeWs)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", a.StatsHandler)

		r.Get("/rooms", a.ListRoomsHandler)
		r.Route("/rooms/{roomID}", func(r chi.Router) {
			r.Get("/", a.GetRoomHandler)
			r.Get("/export.pdf", a.ExportPDFHandler)
			r.Get("/checkpoints", a.requireStorage(a.ListCheckpointsHandler))
			r.Post("/checkpoints", a.requireStorage(a.CreateCheckpointHandler))
		})

		r.Route("/checkpoints/{checkpointID}", func(r chi.Router) {
			r.Get("/", a.requireStorage(a.GetCheckpointHandler))
			r.Delete("/", a.requireStorage(a.DeleteCheckpointHandler))
			r.Post("/restore", a.requireStorage(a.RestoreCheckpointHandler))
		})
	})

	return r
}

func (a *API) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		a.logger.Debug("handled",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", m.Code),
			zap.Duration("duration", m.Duration),
			zap.Int64("bytes", m.Written))
	})
}

// corsMiddleware allows the configured origins; "*" or an empty list allows any.
func corsMiddleware(allowed []string) func(http.Handler) http.Handler {
	allowAll := len(allowed) == 0
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			allowAll = true
		}
		set[strings.ToLower(o)] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case allowAll:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "" && set[strings.ToLower(origin)]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
