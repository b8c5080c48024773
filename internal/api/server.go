// Package api is crawlerd's admin HTTP surface: submit scans, stop the
// scheduler, wait for it to reach a pause point, read accumulated
// per-class stats, and open a live dump over a websocket upgrade.
// Grounded on the teacher's gorilla/mux + CORS middleware shape.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/ocx/cachecrawler/internal/cache"
	"github.com/ocx/cachecrawler/internal/crawler"
	"github.com/ocx/cachecrawler/internal/netio"
)

// Server exposes the crawler's control surface (C6) over HTTP.
type Server struct {
	sched    *crawler.Scheduler
	cache    *cache.Cache
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewServer(sched *crawler.Scheduler, c *cache.Cache, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		sched: sched,
		cache: c,
		log:   log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Router builds the mux.Router so callers (cmd/crawlerd, tests) can wrap
// it in their own http.Server instead of this type owning ListenAndServe.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.HandleFunc("/crawler/start", s.handleStart).Methods(http.MethodPost)
	r.HandleFunc("/crawler/pause", s.handlePause).Methods(http.MethodPost)
	r.HandleFunc("/crawler/resume", s.handleResume).Methods(http.MethodPost)
	r.HandleFunc("/crawler/stop", s.handleStop).Methods(http.MethodPost)
	r.HandleFunc("/crawler/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/crawler/dump", s.handleDump).Methods(http.MethodGet)

	return r
}

type startRequest struct {
	Slabs    string `json:"slabs"`     // "all", "hash", or comma-separated class ids
	ScanType string `json:"scan_type"` // expire, autoexpire, metadump, mgdump
	Limit    int    `json:"limit"`     // 0 means unbounded
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	scanType, err := crawler.ParseScanType(req.ScanType)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	res := s.sched.Crawl(req.Slabs, scanType, req.Limit, nil)
	writeJSON(w, http.StatusOK, map[string]string{"result": res.String()})
}

// handlePause takes the scheduler's pause handle and releases it again when
// the handler returns: the request waits until the worker reaches a pacing
// tick, and the scheduler is not left paused after the response is sent.
func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.sched.Pause()
	defer s.sched.Resume()
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

// handleResume changes no scheduler state; it reports "running" because
// handlePause never leaves the scheduler paused.
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "running"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.sched.Stop(false)
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"running":     s.cache.Running(),
		"class_stats": s.cache.Stats(),
	})
}

// handleDump upgrades to a websocket and streams a metadump or mgdump scan
// over it live, the admin-surface equivalent of the original's
// "lru_crawler metadump all" over the ASCII protocol.
func (s *Server) handleDump(w http.ResponseWriter, r *http.Request) {
	scanType, err := crawler.ParseScanType(r.URL.Query().Get("scan_type"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	slabs := r.URL.Query().Get("slabs")
	if slabs == "" {
		slabs = "all"
	}

	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("crawler dump upgrade failed", "err", err)
		return
	}

	conn := netio.NewWSConn(wsConn, 5*time.Second)
	client := crawler.OpenClient(conn)

	res := s.sched.Crawl(slabs, scanType, 0, client)
	if res != crawler.SubmitOK {
		client.Release()
		return
	}
}
