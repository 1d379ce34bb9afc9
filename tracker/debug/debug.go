// Package debug exposes a small read-only HTTP surface over the
// tracker's registry and request counters, mirroring the teacher's
// debug.go pattern of a dedicated httprouter mux separate from the main
// protocol listener. Server additionally adapts pkg/metrics.Server's
// standalone-listener shape to this tracker's own stop.Stopper.
package debug

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Xpolo29/torrent/pkg/log"
	"github.com/Xpolo29/torrent/pkg/stop"
	"github.com/Xpolo29/torrent/swarm"
	"github.com/Xpolo29/torrent/tracker/stats"
)

// Handler returns an http.Handler serving /stats and /healthz. Neither
// route ever mutates store or counters.
func Handler(store *swarm.Store, s *stats.Stats) http.Handler {
	router := httprouter.New()
	router.GET("/healthz", healthz)
	router.GET("/stats", statsHandler(store, s))
	return router
}

func healthz(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

type statsResponse struct {
	Records   int     `json:"records"`
	UptimeSec float64 `json:"uptime_seconds"`
	Announces uint64  `json:"announces"`
	Looks     uint64  `json:"looks"`
	GetFiles  uint64  `json:"getfiles"`
	Updates   uint64  `json:"updates"`
	Rejected  uint64  `json:"rejected"`
	Expired   uint64  `json:"expired"`
	Malformed uint64  `json:"malformed"`
}

func statsHandler(store *swarm.Store, s *stats.Stats) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		resp := statsResponse{Records: store.Size()}
		if s != nil {
			snap := s.Read()
			resp.UptimeSec = s.Uptime().Seconds()
			resp.Announces = snap.Announces
			resp.Looks = snap.Looks
			resp.GetFiles = snap.GetFiles
			resp.Updates = snap.Updates
			resp.Rejected = snap.Rejected
			resp.Expired = snap.Expired
			resp.Malformed = snap.Malformed
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

// Server is a standalone HTTP server exposing /stats, /healthz, and
// /metrics, serving asynchronously from NewServer and joinable through
// the tracker's shutdown group like any other Stopper.
type Server struct {
	srv *http.Server
}

// NewServer starts serving store's and s's debug surface on addr.
func NewServer(addr string, store *swarm.Store, s *stats.Stats) *Server {
	mux := http.NewServeMux()
	mux.Handle("/", Handler(store, s))
	mux.Handle("/metrics", promhttp.Handler())

	server := &Server{srv: &http.Server{Addr: addr, Handler: mux}}

	go func() {
		if err := server.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("tracker/debug: server stopped", log.Err(err))
		}
	}()

	return server
}

// Stop implements stop.Stopper.
func (s *Server) Stop() <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Shutdown(context.Background()) }()
	return errCh
}

var _ stop.Stopper = (*Server)(nil)
