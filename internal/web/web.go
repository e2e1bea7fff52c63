package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"io/fs"
	"net/http"
	"strings"
	"sync"
	"time"

	"pireminder/internal/config"
	appLog "pireminder/internal/log"
	"pireminder/internal/model"
	"pireminder/internal/news"
)

// Controller is the slice of the appliance the HTTP layer talks to.
type Controller interface {
	// Snapshot returns the last tick's (event, status) sequence.
	Snapshot() ([]model.EventStatus, time.Time)
	// RequestStop latches a stop for one event.
	RequestStop(eventID string)
	// StopAll latches a stop on every announcing reminder.
	StopAll()
	// Chat forwards a message to the chatbot.
	Chat(ctx context.Context, message string) (string, error)
}

// NewsProvider fetches dashboard headlines.
type NewsProvider interface {
	Fetch(ctx context.Context) []news.Item
}

// Server provides the JSON API and the embedded dashboard the appliance
// screen renders in kiosk mode.
type Server struct {
	cfg   *config.Config
	ctrl  Controller
	news  NewsProvider
	debug bool
	mux   *http.ServeMux

	// In-memory cache for /api/news responses so dashboard refreshes do
	// not hammer the upstream feeds.
	newsMu    sync.RWMutex
	newsCache *newsCache
}

// embeddedStatic contains the dashboard page served at /.
//
//go:embed all:static
var embeddedStatic embed.FS

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, ctrl Controller, newsProvider NewsProvider, debug bool) *Server {
	s := &Server{
		cfg:   cfg,
		ctrl:  ctrl,
		news:  newsProvider,
		debug: debug,
		mux:   http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Treat empty username or password as disabled.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// /health stays unauthenticated for probes.
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="PiReminder", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("POST /api/events/{id}/stop", s.handleStopOne)
	s.mux.HandleFunc("POST /api/stop", s.handleStopAll)
	s.mux.HandleFunc("POST /api/chat", s.handleChat)
	s.mux.HandleFunc("GET /api/news", s.handleNews)
	s.mux.HandleFunc("GET /api/config", s.handleConfig)
	s.mux.HandleFunc("GET /preview.png", s.handlePreview)

	// Everything else is the embedded dashboard.
	s.mux.Handle("/", s.staticFileServer())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// eventDTO is a JSON-friendly view of one classified event.
type eventDTO struct {
	ID            string       `json:"id"`
	Title         string       `json:"title"`
	Description   string       `json:"description,omitempty"`
	ScheduledTime time.Time    `json:"scheduled_time"`
	Triggered     bool         `json:"triggered"`
	Status        model.Status `json:"status"`
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Events      []eventDTO `json:"events"`
	EvaluatedAt time.Time  `json:"evaluated_at"`
}

// handleEvents returns the last tick's classified events, in schedule order.
func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	snapshot, tickedAt := s.ctrl.Snapshot()

	dtos := make([]eventDTO, 0, len(snapshot))
	for _, es := range snapshot {
		dtos = append(dtos, eventDTO{
			ID:            es.Event.ID,
			Title:         es.Event.Title,
			Description:   es.Event.Description,
			ScheduledTime: es.Event.ScheduledTime,
			Triggered:     es.Event.Triggered,
			Status:        es.Status,
		})
	}

	writeJSON(w, http.StatusOK, eventsResponse{
		Events:      dtos,
		EvaluatedAt: tickedAt,
	})
}

func (s *Server) handleStopOne(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing event id")
		return
	}
	// A stop for an unknown or idle event is accepted and ignored; the
	// scheduler treats it as a no-op.
	s.ctrl.RequestStop(id)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleStopAll(w http.ResponseWriter, _ *http.Request) {
	appLog.Info("stop button clicked on dashboard")
	s.ctrl.StopAll()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	reply, err := s.ctrl.Chat(r.Context(), req.Message)
	if err != nil {
		appLog.Error("chat request failed", err)
		writeError(w, http.StatusBadGateway, "chatbot unavailable")
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Reply: reply})
}

// newsCache holds a cached /api/news response and its timestamp.
type newsCache struct {
	items     []news.Item
	updatedAt time.Time
}

// handleNews returns merged RSS headlines with a short TTL cache. News is
// decorative; an upstream failure yields an empty list, not an error.
func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	const newsCacheTTL = 5 * time.Minute
	now := time.Now()

	s.newsMu.RLock()
	nc := s.newsCache
	s.newsMu.RUnlock()
	if nc != nil && now.Sub(nc.updatedAt) < newsCacheTTL {
		writeJSON(w, http.StatusOK, map[string]any{"items": nc.items})
		return
	}

	items := []news.Item{}
	if s.news != nil {
		items = s.news.Fetch(r.Context())
	}

	s.newsMu.Lock()
	s.newsCache = &newsCache{items: items, updatedAt: time.Now()}
	s.newsMu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// handleConfig returns the active configuration with secrets removed.
func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	redacted := *s.cfg
	redacted.BasicAuth = nil
	// ChatbotConfig.APIKey carries json:"-" and never serializes.
	writeJSON(w, http.StatusOK, &redacted)
}

// handlePreview serves the last captured dashboard PNG from disk. Path rule
// matches cmd/pireminder's capture pipeline:
//   - default: /var/lib/pireminder/preview.png
//   - debug:   ./cache/preview.png
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	previewPath := "/var/lib/pireminder/preview.png"
	if s.debug {
		previewPath = "./cache/preview.png"
	}
	http.ServeFile(w, r, previewPath)
}

// staticFileServer serves the embedded dashboard from internal/web/static.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "dashboard not available", http.StatusServiceUnavailable)
		})
	}

	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Never serve HTML for unmatched /api/* paths.
		if r.URL.Path == "/api" || strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to encode JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
