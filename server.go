package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"rsc.io/qr"

	"github.com/fleetdesk/fleetdesk/internal/linediff"
)

type Server struct {
	console *Console
	store   *ManifestStore
	cache   *linediff.Cache
	mux     *http.ServeMux
	handler http.Handler
	assets  fs.FS
	limiter *rate.Limiter
	log     *zap.Logger
	version string
	url     string // public console URL, used for the QR code
}

// ServerOptions configures NewServer.
type ServerOptions struct {
	Assets  fs.FS // nil serves no frontend
	Version string
	URL     string
	API     APIConfig
}

func NewServer(console *Console, store *ManifestStore, cache *linediff.Cache, log *zap.Logger, opts ServerOptions) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		console: console,
		store:   store,
		cache:   cache,
		mux:     http.NewServeMux(),
		assets:  opts.Assets,
		log:     log,
		version: opts.Version,
		url:     opts.URL,
	}
	if opts.API.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.API.RateLimit), opts.API.Burst)
	}
	s.routes()
	s.handler = s.logRequests(s.limitWrites(s.mux))
	return s
}

func (s *Server) routes() {
	// Console-wide endpoints
	s.mux.HandleFunc("GET /api/config", s.handleConfig)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/qr", s.handleQR)

	// Compute
	s.mux.HandleFunc("GET /api/vms", s.handleListVMs)
	s.mux.HandleFunc("POST /api/vms", s.handleCreateVM)
	s.mux.HandleFunc("GET /api/vms/{id}", s.handleGetVM)
	s.mux.HandleFunc("DELETE /api/vms/{id}", s.handleDeleteVM)
	s.mux.HandleFunc("POST /api/vms/{id}/{action}", s.handleVMAction)

	s.mux.HandleFunc("GET /api/security-groups", s.handleListGroups)
	s.mux.HandleFunc("POST /api/security-groups", s.handleCreateGroup)
	s.mux.HandleFunc("GET /api/security-groups/{id}", s.handleGetGroup)
	s.mux.HandleFunc("DELETE /api/security-groups/{id}", s.handleDeleteGroup)
	s.mux.HandleFunc("POST /api/security-groups/{id}/rules", s.handleAddRule)
	s.mux.HandleFunc("PUT /api/security-groups/{id}/rules/{rule}", s.handleUpdateRule)
	s.mux.HandleFunc("DELETE /api/security-groups/{id}/rules/{rule}", s.handleDeleteRule)

	s.mux.HandleFunc("GET /api/keys", s.handleListKeys)
	s.mux.HandleFunc("POST /api/keys", s.handleAddKey)
	s.mux.HandleFunc("DELETE /api/keys/{id}", s.handleDeleteKey)

	s.mux.HandleFunc("GET /api/templates", s.handleListTemplates)
	s.mux.HandleFunc("POST /api/templates", s.handleCreateTemplate)
	s.mux.HandleFunc("GET /api/templates/{id}", s.handleGetTemplate)
	s.mux.HandleFunc("PUT /api/templates/{id}", s.handleUpdateTemplate)
	s.mux.HandleFunc("DELETE /api/templates/{id}", s.handleDeleteTemplate)
	s.mux.HandleFunc("POST /api/templates/{id}/render", s.handleRenderTemplate)

	// Manifests and diffs
	s.mux.HandleFunc("GET /api/manifests", s.handleListManifests)
	s.mux.HandleFunc("POST /api/manifests", s.handlePublishManifest)
	s.mux.HandleFunc("GET /api/manifests/{name}", s.handleGetManifest)
	s.mux.HandleFunc("GET /api/manifests/{name}/versions", s.handleManifestVersions)
	s.mux.HandleFunc("GET /api/manifests/{name}/versions/{version}", s.handleManifestVersion)
	s.mux.HandleFunc("POST /api/manifests/{name}/rollback", s.handleRollbackManifest)
	s.mux.HandleFunc("GET /api/manifests/{name}/diff", s.handleManifestDiff)
	s.mux.HandleFunc("GET /api/manifests/{name}/patch", s.handleManifestPatch)
	s.mux.HandleFunc("POST /api/diff", s.handleDiff)

	// Game operations
	s.mux.HandleFunc("GET /api/environments", s.handleEnvironments)
	s.mux.HandleFunc("GET /api/gifts", s.handleGifts)
	s.mux.HandleFunc("GET /api/game-events", s.handleGameEvents)
	s.mux.HandleFunc("POST /api/sync", s.handleSync)

	if s.assets != nil {
		s.mux.Handle("GET /", http.FileServerFS(s.assets))
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// statusRecorder captures the response code for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

// limitWrites applies the token bucket to mutating requests only.
func (s *Server) limitWrites(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && r.Method != http.MethodGet && r.Method != http.MethodHead && !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"version":      s.version,
		"url":          s.url,
		"environments": s.console.Environments(),
		"max_lines":    s.cacheLimit(),
	})
}

func (s *Server) cacheLimit() int {
	if s.cache == nil {
		return 0
	}
	return s.cache.Limits().MaxLines
}

// handleQR serves the console URL as a PNG QR code.
func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	text := s.url
	if text == "" {
		text = "http://" + r.Host
	}
	code, err := qr.Encode(text, qr.M)
	if err != nil {
		s.serverError(w, "encoding qr", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(code.PNG())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	ch := s.console.Subscribe()
	defer s.console.Unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			data, _ := json.Marshal(event)
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
			if event.Type == "server-shutdown" {
				return
			}
		}
	}
}

// writeError maps catalog errors to status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrInvalid):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, linediff.ErrTooLarge):
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
	default:
		s.serverError(w, "request failed", err)
	}
}

func (s *Server) serverError(w http.ResponseWriter, msg string, err error) {
	s.log.Error(msg, zap.Error(err))
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20) // 10MB
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeCreated(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, key string) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
