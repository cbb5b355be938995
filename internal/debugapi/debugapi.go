// Package debugapi exposes a small chi-routed HTTP surface an operator
// uses to inspect a running daemon: liveness, the Prometheus exposition
// endpoint, and the client-wide open list, mirroring the shape of the
// control-plane health/listing routes this stack builds elsewhere, cut
// down to what this daemon actually needs to expose.
package debugapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kudingc/nfs41client/internal/client"
	"github.com/kudingc/nfs41client/internal/logger"
	"github.com/kudingc/nfs41client/internal/metrics"
	"github.com/kudingc/nfs41client/internal/openstate"
)

// OpenSummary is the JSON shape returned by GET /opens.
type OpenSummary struct {
	Path        string `json:"path"`
	ShareAccess uint32 `json:"share_access"`
	ShareDeny   uint32 `json:"share_deny"`
	CloseAction bool   `json:"close_action_pending"`
	RefCount    int32  `json:"ref_count"`
}

// Router builds the debug API's handler. list is nil-safe: a nil
// OpenList reports an empty open set instead of panicking, matching
// how the other optional collaborators in this daemon degrade.
func Router(list *client.OpenList) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/opens", func(w http.ResponseWriter, req *http.Request) {
		summaries := []OpenSummary{}
		if list != nil {
			list.ForEach(func(s *openstate.OpenState) {
				summaries = append(summaries, OpenSummary{
					Path:        s.Path.Path(),
					ShareAccess: s.ShareAccess,
					ShareDeny:   s.ShareDeny,
					CloseAction: s.CloseActionPending(),
					RefCount:    s.RefCount(),
				})
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(summaries)
	})

	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		h := metrics.Handler()
		if h == nil {
			http.Error(w, "metrics disabled", http.StatusNotFound)
			return
		}
		h.ServeHTTP(w, req)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Debug("debug API request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String(),
		)
	})
}
