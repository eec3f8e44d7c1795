// Package api exposes completed scan runs, baselines, and drift state
// over a read-only HTTP interface. Scans are started from the CLI, not
// the API; the server only publishes artifacts already on disk.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sentinelsweep/sweep-cli/internal/baseline"
	"github.com/sentinelsweep/sweep-cli/internal/report"
)

// Config wires the server's collaborators and policies.
type Config struct {
	ResultsDir string
	Store      *baseline.Store
	AuthToken  string
	Logger     *zap.Logger
	RateLimit  int // requests per second per client IP (0 = disabled)
	RateBurst  int
}

// Server serves read-only assessment data.
type Server struct {
	cfg      Config
	mux      *http.ServeMux
	limiters *rateLimiterMap
}

// NewServer builds a Server and registers its routes.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	s := &Server{
		cfg:      cfg,
		mux:      http.NewServeMux(),
		limiters: newRateLimiterMap(),
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.withLogging(s.withRateLimit(s.mux)).ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", http.HandlerFunc(s.handleHealth))
	s.mux.Handle("/api/v1/baselines", s.withAuth(http.HandlerFunc(s.handleBaselines)))
	s.mux.Handle("/api/v1/runs", s.withAuth(http.HandlerFunc(s.handleRuns)))
	s.mux.Handle("/api/v1/runs/", s.withAuth(http.HandlerFunc(s.handleRunByID)))
	s.mux.Handle("/api/v1/drift", s.withAuth(http.HandlerFunc(s.handleDrift)))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// baselineEntry is the list view of one stored baseline.
type baselineEntry struct {
	File        string    `json:"file"`
	CreatedAt   time.Time `json:"created_at"`
	HostCount   int       `json:"host_count"`
	ContentHash string    `json:"content_hash"`
}

func (s *Server) handleBaselines(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}

	matches, err := filepath.Glob(filepath.Join(s.cfg.Store.Dir, "baseline_*.json"))
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	sort.Strings(matches)

	entries := make([]baselineEntry, 0, len(matches))
	for _, path := range matches {
		b, err := readBaseline(path)
		if err != nil {
			s.requestLogger(r).Warn("skipping unreadable baseline", zap.String("path", path), zap.Error(err))
			continue
		}
		entries = append(entries, baselineEntry{
			File:        filepath.Base(path),
			CreatedAt:   b.CreatedAt,
			HostCount:   b.HostCount,
			ContentHash: b.ContentHash,
		})
	}
	writeJSON(w, http.StatusOK, entries)
}

func readBaseline(path string) (*baseline.Baseline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var b baseline.Baseline
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// runEntry is the list view of one completed scan run.
type runEntry struct {
	ID          string    `json:"id"`
	GeneratedAt time.Time `json:"generated_at"`
	TotalHosts  int       `json:"total_hosts"`
	OpenPorts   int       `json:"open_ports"`
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}

	matches, err := filepath.Glob(filepath.Join(s.cfg.ResultsDir, "sweep_*.json"))
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	sort.Strings(matches)

	entries := make([]runEntry, 0, len(matches))
	for _, path := range matches {
		payload, err := report.LoadPayload(path)
		if err != nil {
			s.requestLogger(r).Warn("skipping unreadable run", zap.String("path", path), zap.Error(err))
			continue
		}
		entries = append(entries, runEntry{
			ID:          payload.Metadata.ReportID,
			GeneratedAt: payload.Metadata.GeneratedAt,
			TotalHosts:  payload.Metadata.ScanSummary.TotalHosts,
			OpenPorts:   payload.Metadata.ScanSummary.TotalOpenPorts,
		})
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleRunByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/runs/")
	if id == "" || strings.ContainsAny(id, "/\\") {
		s.writeError(w, r, http.StatusNotFound, errors.New("run ID required"))
		return
	}

	payload, err := report.LoadPayload(filepath.Join(s.cfg.ResultsDir, id+".json"))
	if err != nil {
		s.writeError(w, r, http.StatusNotFound, errors.New("run not found"))
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleDrift(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}

	latest, err := s.cfg.Store.Latest()
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if latest == nil {
		writeJSON(w, http.StatusOK, map[string]string{"message": "no baseline recorded yet"})
		return
	}
	writeJSON(w, http.StatusOK, baselineEntry{
		File:        filepath.Base(latest.Path),
		CreatedAt:   latest.Baseline.CreatedAt,
		HostCount:   latest.Baseline.HostCount,
		ContentHash: latest.Baseline.ContentHash,
	})
}

func (s *Server) withAuth(next http.Handler) http.Handler {
	if s.cfg.AuthToken == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Auth-Token")
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) != 1 {
			s.writeError(w, r, http.StatusUnauthorized, errors.New("unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	if s.cfg.RateLimit <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		limiter := s.limiters.getLimiter(ip, s.cfg.RateLimit, s.cfg.RateBurst)
		if !limiter.Allow() {
			s.writeError(w, r, http.StatusTooManyRequests, errors.New("rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)
		s.cfg.Logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", lrw.statusCode),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		s.requestLogger(r).Error("internal server error", zap.Error(err), zap.Int("status", status))
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	return s.cfg.Logger.With(
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	)
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// rateLimiterMap manages per-IP limiters with periodic cleanup.
type rateLimiterMap struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiterMap() *rateLimiterMap {
	m := &rateLimiterMap{limiters: make(map[string]*ipLimiter)}
	go m.cleanupLoop()
	return m
}

func (m *rateLimiterMap) getLimiter(ip string, rps, burst int) *rate.Limiter {
	if burst <= 0 {
		burst = rps
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.limiters[ip]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
		m.limiters[ip] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

func (m *rateLimiterMap) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		m.mu.Lock()
		for ip, entry := range m.limiters {
			if time.Since(entry.lastSeen) > 5*time.Minute {
				delete(m.limiters, ip)
			}
		}
		m.mu.Unlock()
	}
}
