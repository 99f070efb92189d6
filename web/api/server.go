// Package api exposes the orchestrator over HTTP. It is presentation glue:
// every operation goes through the run manager, scheduler or registry, never
// straight to the store.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/schuanhe/crawl-orch/internal/registry"
	"github.com/schuanhe/crawl-orch/internal/runmgr"
	"github.com/schuanhe/crawl-orch/internal/scheduler"
	"github.com/schuanhe/crawl-orch/internal/webext"
)

// Server is the HTTP API server
type Server struct {
	manager   *runmgr.Manager
	scheduler *scheduler.Scheduler
	registry  *registry.Registry
	exts      *webext.Registry
	addr      string
	mux       *http.ServeMux
	sseHub    *SSEHub
}

// NewServer creates a new API server
func NewServer(manager *runmgr.Manager, sched *scheduler.Scheduler, reg *registry.Registry, exts *webext.Registry, addr string) *Server {
	s := &Server{
		manager:   manager,
		scheduler: sched,
		registry:  reg,
		exts:      exts,
		addr:      addr,
		mux:       http.NewServeMux(),
		sseHub:    NewSSEHub(),
	}
	s.setupRoutes()
	// The hub must be consuming before anyone calls Broadcast
	go s.sseHub.Run()
	return s
}

func (s *Server) setupRoutes() {
	// API routes
	s.mux.HandleFunc("/api/crawlers", s.listCrawlersHandler())
	s.mux.HandleFunc("/api/crawlers/", s.runCrawlerHandler())
	s.mux.HandleFunc("/api/status", s.statusHandler())
	s.mux.HandleFunc("/api/runs", s.listRunsHandler())
	s.mux.HandleFunc("/api/runs/", s.getRunHandler())
	s.mux.HandleFunc("/api/logs/", s.logHandler())
	s.mux.HandleFunc("/api/schedules", s.schedulesHandler())
	s.mux.HandleFunc("/api/schedules/", s.deleteScheduleHandler())
	s.mux.HandleFunc("/api/events", s.sseHandler())

	// Per-crawler web extensions
	if s.exts != nil {
		s.mux.Handle("/crawler/", s.exts.Handler())
	}

	// Static files for the operator UI
	s.mux.Handle("/", http.FileServer(http.Dir("web/static")))
}

// Handler returns the server's routing handler
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return http.ListenAndServe(s.addr, s.mux)
}

// Broadcast sends an event to all SSE clients
func (s *Server) Broadcast(event SSEEvent) {
	s.sseHub.Broadcast(event)
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
