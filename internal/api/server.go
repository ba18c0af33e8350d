// Package api exposes the session pipeline over HTTP: session lifecycle,
// pose and inertial uploads, processing, and result retrieval, plus a
// websocket ingest path for live strap data.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gaitworks/flexion/internal/config"
	"github.com/gaitworks/flexion/internal/db"
	"github.com/gaitworks/flexion/internal/fusion"
	"github.com/gaitworks/flexion/internal/httputil"
	"github.com/gaitworks/flexion/internal/monitoring"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	registry *fusion.Registry
	db       *db.DB // nil disables persistence
	cfg      *config.TuningConfig
	pub      Publisher // nil disables live publishing
}

// NewServer wires the HTTP layer to a session registry. Both db and pub
// may be nil; the corresponding features are then skipped.
func NewServer(registry *fusion.Registry, store *db.DB, cfg *config.TuningConfig, pub Publisher) *Server {
	if cfg == nil {
		cfg = config.EmptyTuningConfig()
	}
	return &Server{
		registry: registry,
		db:       store,
		cfg:      cfg,
		pub:      pub,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.health)
	mux.HandleFunc("GET /api/params", s.showParams)
	mux.HandleFunc("POST /api/sessions", s.createSession)
	mux.HandleFunc("GET /api/sessions", s.listSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.getSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.deleteSession)
	mux.HandleFunc("POST /api/sessions/{id}/pose", s.uploadPose)
	mux.HandleFunc("POST /api/sessions/{id}/imu", s.uploadIMU)
	mux.HandleFunc("POST /api/sessions/{id}/process", s.processSession)
	mux.HandleFunc("GET /api/sessions/{id}/trajectory", s.getTrajectory)
	mux.HandleFunc("GET /api/sessions/{id}/summary", s.getSummary)
	mux.HandleFunc("GET /ws/sessions/{id}/imu", s.imuWebsocket)
	return mux
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{"status": "ok"})
}

func (s *Server) showParams(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, s.cfg)
}
