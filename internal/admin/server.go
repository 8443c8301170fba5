// Package admin exposes the credential-gated HTTP API for the moderation
// console: bans, country blocking, report management, broadcast messages,
// and visitor analytics. Every route under /admin requires the shared bearer
// credential; /health and /metrics are open for infrastructure probes.
package admin

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/pairwave/relay/internal/metrics"
	"github.com/pairwave/relay/internal/relay"
)

// Server is the admin HTTP server.
type Server struct {
	addr       string
	token      string
	coord      *relay.Coordinator
	httpServer *http.Server
}

// NewServer creates an admin server for the given coordinator. The token is
// the shared admin credential; an empty token disables every gated route.
func NewServer(addr, token string, coord *relay.Coordinator) *Server {
	return &Server{addr: addr, token: token, coord: coord}
}

// Start begins serving. It blocks on http.Server.ListenAndServe.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.routes(),
	}

	log.Printf("admin: server listening on %s", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("admin: http server error: %w", err)
	}
	return nil
}

// routes builds the request mux.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())

	mux.HandleFunc("/admin/snapshot", s.gated(s.handleSnapshot))
	mux.HandleFunc("/admin/broadcast", s.gated(s.handleBroadcast))
	mux.HandleFunc("/admin/ban", s.gated(s.handleBan))
	mux.HandleFunc("/admin/unban-ip", s.gated(s.handleUnbanIP))
	mux.HandleFunc("/admin/unban-fingerprint", s.gated(s.handleUnbanFingerprint))
	mux.HandleFunc("/admin/report/remove", s.gated(s.handleRemoveReport))
	mux.HandleFunc("/admin/countries", s.gated(s.handleCountries))
	mux.HandleFunc("/admin/countries/clear", s.gated(s.handleClearCountries))
	mux.HandleFunc("/admin/analytics/daily", s.gated(s.handleDaily))
	mux.HandleFunc("/admin/analytics/countries", s.gated(s.handleTopCountries))
	mux.HandleFunc("/admin/analytics/recent", s.gated(s.handleRecent))

	return mux
}

// Shutdown stops the HTTP listener.
func (s *Server) Shutdown() error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Close()
}

// gated wraps a handler with the shared-credential check.
func (s *Server) gated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" || r.Header.Get("Authorization") != "Bearer "+s.token {
			writeError(w, http.StatusUnauthorized, "invalid admin credential")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.coord.Snapshot())
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if !decodePost(w, r, &req) {
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "missing field: text")
		return
	}
	s.coord.BroadcastMessage(req.Text)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Target string `json:"target"`
	}
	if !decodePost(w, r, &req) {
		return
	}
	if req.Target == "" {
		writeError(w, http.StatusBadRequest, "missing field: target")
		return
	}
	if err := s.coord.BanIdentity(req.Target); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUnbanIP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IP string `json:"ip"`
	}
	if !decodePost(w, r, &req) {
		return
	}
	if req.IP == "" {
		writeError(w, http.StatusBadRequest, "missing field: ip")
		return
	}
	s.coord.UnbanIP(req.IP)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUnbanFingerprint(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Fingerprint string `json:"fingerprint"`
	}
	if !decodePost(w, r, &req) {
		return
	}
	if req.Fingerprint == "" {
		writeError(w, http.StatusBadRequest, "missing field: fingerprint")
		return
	}
	s.coord.UnbanFingerprint(req.Fingerprint)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRemoveReport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Target string `json:"target"`
	}
	if !decodePost(w, r, &req) {
		return
	}
	if req.Target == "" {
		writeError(w, http.StatusBadRequest, "missing field: target")
		return
	}
	s.coord.RemoveReport(req.Target)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCountries serves the blocked-country set: GET lists, POST blocks a
// code, DELETE unblocks one.
func (s *Server) handleCountries(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"blockedCountries": s.coord.BlockedCountries(),
		})
	case http.MethodPost, http.MethodDelete:
		var req struct {
			Code string `json:"code"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.Code == "" {
			writeError(w, http.StatusBadRequest, "missing field: code")
			return
		}
		if r.Method == http.MethodPost {
			s.coord.BlockCountry(req.Code)
		} else {
			s.coord.UnblockCountry(req.Code)
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"blockedCountries": s.coord.BlockedCountries(),
		})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleClearCountries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.coord.ClearBlockedCountries()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"blockedCountries": s.coord.BlockedCountries(),
	})
}

func (s *Server) handleDaily(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	from, ok := parseDate(w, r.URL.Query().Get("from"))
	if !ok {
		return
	}
	to, ok := parseDate(w, r.URL.Query().Get("to"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"daily": s.coord.DailyVisitors(from, to),
	})
}

func (s *Server) handleTopCountries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"countries": s.coord.TopCountries(parseLimit(r, 10)),
	})
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"visitors": s.coord.RecentVisitors(parseLimit(r, 100)),
	})
}

// decodePost enforces the POST method and decodes the JSON body into dst.
// Returns false once an error response has been written.
func decodePost(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// parseDate parses an optional 2006-01-02 query value. Returns ok=false once
// an error response has been written.
func parseDate(w http.ResponseWriter, value string) (*time.Time, bool) {
	if value == "" {
		return nil, true
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
		return nil, false
	}
	return &t, true
}

func parseLimit(r *http.Request, fallback int) int {
	value := r.URL.Query().Get("limit")
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
