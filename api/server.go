// Package api exposes the spooler over a local HTTP interface (C6): the
// synchronous print/jobs/status endpoints plus two supplemental
// surfaces the distilled spec didn't need to name explicitly but a
// complete agent carries — a live job-event WebSocket feed and a
// job-history listing backed by C8.
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"cleverprint/agent/history"
	"cleverprint/agent/job"
	"cleverprint/agent/printer"
	"cleverprint/agent/spooler"
)

const maxBodyBytes = 50 * 1024 * 1024 // 50 MB, admits large base64 PDFs

// Logger is the narrow logging interface api depends on.
type Logger interface {
	Error(msg string, context ...interface{})
	Warn(msg string, context ...interface{})
	Info(msg string, context ...interface{})
	Debug(msg string, context ...interface{})
}

type nullLogger struct{}

func (nullLogger) Error(string, ...interface{}) {}
func (nullLogger) Warn(string, ...interface{})  {}
func (nullLogger) Info(string, ...interface{})  {}
func (nullLogger) Debug(string, ...interface{}) {}

// Spooler is the subset of *spooler.Spooler the API drives.
type Spooler interface {
	Enqueue(payload job.Payload, opts job.Options, priority job.Priority, serverJobID string) (*job.Job, error)
	Cancel(id string) bool
	ListActive() []*job.Job
	Get(id string) (*job.Job, bool)
	Status() spooler.StatusSnapshot
	Subscribe(buffer int) (<-chan spooler.Event, func())
}

// Enumerator is the subset of *printer.Enumerator the API drives.
type Enumerator interface {
	List(ctx context.Context) []printer.Info
}

// HistoryReader is the subset of *history.Store the API drives.
type HistoryReader interface {
	List(ctx context.Context, limit, offset int) ([]history.Record, error)
}

// Server is the local HTTP API (C6). It owns no state of its own: every
// handler delegates to the Spooler, Enumerator, or HistoryReader.
type Server struct {
	spooler    Spooler
	enumerator Enumerator
	historyLog HistoryReader
	logger     Logger
	upgrader   websocket.Upgrader
	httpServer *http.Server
}

// New constructs a Server. historyLog may be nil: the supplemental
// /api/jobs/history endpoint then responds with an empty list rather than
// failing.
func New(sp Spooler, enumerator Enumerator, historyLog HistoryReader, logger Logger) *Server {
	if logger == nil {
		logger = nullLogger{}
	}
	return &Server{
		spooler:    sp,
		enumerator: enumerator,
		historyLog: historyLog,
		logger:     logger,
		upgrader:   websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/print", s.handlePrint)
	mux.HandleFunc("/api/jobs", s.handleJobs)
	mux.HandleFunc("/api/jobs/history", s.handleJobHistory)
	mux.HandleFunc("/api/jobs/", s.handleJobByID) // covers /api/jobs/:id and /api/jobs/:id/cancel
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/printers", s.handlePrinters)
	mux.HandleFunc("/api/events", s.handleEvents)
	return mux
}

// Start listens on addr (e.g. ":3001") and serves until Shutdown is called.
// It returns once the listener is established; serve errors after that
// point are logged, matching the teacher's fire-and-forget http.ListenAndServe
// goroutine pattern.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      corsMiddleware(s.routes()),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("local API server stopped unexpectedly", "error", err)
		}
	}()
	s.logger.Info("local API listening", "addr", addr)
	return nil
}

// Shutdown gracefully stops the HTTP server within timeout.
func (s *Server) Shutdown(timeout time.Duration) error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"success": false, "error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.spooler.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"spooler": map[string]interface{}{
			"isProcessing": snap.IsProcessing,
			"queueLength":  snap.QueueLength,
			"maxQueueSize": snap.MaxQueueSize,
		},
	})
}
