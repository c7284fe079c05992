// Package web exposes the agenda query surface over HTTP: /health plus
// /api/agenda, with optional basic auth. It holds no calendar logic of
// its own; occurrences come from a provider callback.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"icalq/internal/config"
	applog "icalq/internal/log"
	"icalq/internal/timeline"
)

// Provider materializes occurrences for a window on demand.
type Provider func(ctx context.Context, win timeline.Window) ([]timeline.Occurrence, error)

// Server provides the HTTP API for agenda access.
type Server struct {
	cfg      *config.Config
	provider Provider
	mux      *http.ServeMux

	// In-memory cache for /api/agenda responses so refresh-happy clients
	// do not trigger redundant expansion work.
	mu    sync.RWMutex
	cache map[string]cachedAgenda
}

type cachedAgenda struct {
	body    []byte
	expires time.Time
}

const agendaCacheTTL = 30 * time.Second

// NewServer constructs a Server around cfg and provider.
func NewServer(cfg *config.Config, provider Provider) *Server {
	s := &Server{
		cfg:      cfg,
		provider: provider,
		mux:      http.NewServeMux(),
		cache:    make(map[string]cachedAgenda),
	}
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/agenda", s.handleAgenda)
	return s
}

// Handler returns the http.Handler, wrapped with basic auth when
// configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		applog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="icalq", charset="UTF-8"`)
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

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// agendaItem is the JSON shape of one occurrence.
type agendaItem struct {
	UID        string    `json:"uid"`
	Summary    string    `json:"summary,omitempty"`
	Location   string    `json:"location,omitempty"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Overridden bool      `json:"overridden,omitempty"`
}

// handleAgenda serves GET /api/agenda?from=RFC3339&to=RFC3339. Missing
// bounds default to [now, now+HorizonDays).
func (s *Server) handleAgenda(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	win, err := s.windowFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	key := win.Start.Format(time.RFC3339) + "/" + win.End.Format(time.RFC3339)
	s.mu.RLock()
	if c, ok := s.cache[key]; ok && time.Now().Before(c.expires) {
		s.mu.RUnlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(c.body)
		return
	}
	s.mu.RUnlock()

	occs, err := s.provider(r.Context(), win)
	if err != nil {
		applog.Error("agenda query failed", err, "from", win.Start, "to", win.End)
		http.Error(w, "agenda query failed", http.StatusInternalServerError)
		return
	}

	items := make([]agendaItem, 0, len(occs))
	for _, o := range occs {
		item := agendaItem{Start: o.Start, End: o.End, Overridden: o.Overridden}
		if p := o.Component.PropertyNamed("UID"); p != nil {
			item.UID = p.Value
		}
		if p := o.Component.PropertyNamed("SUMMARY"); p != nil {
			item.Summary, _ = p.Text()
		}
		if p := o.Component.PropertyNamed("LOCATION"); p != nil {
			item.Location, _ = p.Text()
		}
		items = append(items, item)
	}

	body, err := json.Marshal(items)
	if err != nil {
		http.Error(w, "encoding failed", http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	s.cache[key] = cachedAgenda{body: body, expires: time.Now().Add(agendaCacheTTL)}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func (s *Server) windowFromQuery(r *http.Request) (timeline.Window, error) {
	var win timeline.Window
	q := r.URL.Query()

	now := time.Now()
	win.Start = now
	win.End = now.AddDate(0, 0, s.cfg.HorizonDays)

	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return win, err
		}
		win.Start = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return win, err
		}
		win.End = t
	}
	return win, nil
}

// InvalidateCache drops all cached agenda responses, called after a
// refresh cycle replaces the parsed calendars.
func (s *Server) InvalidateCache() {
	s.mu.Lock()
	s.cache = make(map[string]cachedAgenda)
	s.mu.Unlock()
}
