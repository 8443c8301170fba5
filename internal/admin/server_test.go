package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pairwave/relay/internal/ban"
	"github.com/pairwave/relay/internal/matching"
	"github.com/pairwave/relay/internal/relay"
	"github.com/pairwave/relay/internal/report"
	"github.com/pairwave/relay/internal/session"
	"github.com/pairwave/relay/internal/visitor"
)

// nopSender discards all outbound traffic.
type nopSender struct{}

func (nopSender) Send(id string, data []byte) error { return nil }
func (nopSender) Close(id string)                   {}
func (nopSender) Broadcast(data []byte)             {}

func newTestServer(t *testing.T) (*Server, *relay.Coordinator) {
	t.Helper()
	blocklist, err := ban.NewBlocklist(nil)
	if err != nil {
		t.Fatalf("NewBlocklist() error: %v", err)
	}
	coord := relay.NewCoordinator(relay.Config{
		Sessions:   session.NewRegistry(nil),
		Bans:       ban.NewStore(),
		Blocklist:  blocklist,
		Queue:      matching.NewQueue(),
		Reports:    report.NewLedger(),
		Visitors:   visitor.NewLedger(),
		Sender:     nopSender{},
		AdminToken: "secret",
	})
	return NewServer(":0", "secret", coord), coord
}

func request(t *testing.T, s *Server, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.routes().ServeHTTP(w, r)
	return w
}

func TestHealthIsOpen(t *testing.T) {
	s, _ := newTestServer(t)
	w := request(t, s, http.MethodGet, "/health", "", "")
	if w.Code != http.StatusOK {
		t.Errorf("GET /health = %d, want 200", w.Code)
	}
}

func TestAdminRoutesRequireCredential(t *testing.T) {
	s, _ := newTestServer(t)

	if w := request(t, s, http.MethodGet, "/admin/snapshot", "", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}
	if w := request(t, s, http.MethodGet, "/admin/snapshot", "", "wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("bad token = %d, want 401", w.Code)
	}
	if w := request(t, s, http.MethodGet, "/admin/snapshot", "", "secret"); w.Code != http.StatusOK {
		t.Errorf("good token = %d, want 200", w.Code)
	}
}

func TestEmptyTokenDisablesAdminRoutes(t *testing.T) {
	_, coord := newTestServer(t)
	s := NewServer(":0", "", coord)
	if w := request(t, s, http.MethodGet, "/admin/snapshot", "", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("empty configured token = %d, want 401", w.Code)
	}
}

func TestBanMissingTarget(t *testing.T) {
	s, _ := newTestServer(t)
	w := request(t, s, http.MethodPost, "/admin/ban", `{}`, "secret")
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing target = %d, want 400", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp["error"] == "" {
		t.Errorf("want JSON error body, got %q", w.Body.String())
	}
}

func TestBanUnknownTarget(t *testing.T) {
	s, _ := newTestServer(t)
	w := request(t, s, http.MethodPost, "/admin/ban", `{"target":"nobody"}`, "secret")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown target = %d, want 404", w.Code)
	}
}

func TestBanConnectedTarget(t *testing.T) {
	s, coord := newTestServer(t)
	if !coord.Connect("victim", "203.0.113.5", "US") {
		t.Fatal("Connect() rejected")
	}

	w := request(t, s, http.MethodPost, "/admin/ban", `{"target":"victim"}`, "secret")
	if w.Code != http.StatusOK {
		t.Fatalf("ban = %d, want 200: %s", w.Code, w.Body.String())
	}

	snap := coord.Snapshot()
	if len(snap.ActiveIPBans) != 1 || snap.ActiveIPBans[0].IP != "203.0.113.5" {
		t.Errorf("ActiveIPBans = %v, want the target's IP", snap.ActiveIPBans)
	}
	if snap.LiveConnectedCount != 0 {
		t.Errorf("LiveConnectedCount = %d, want 0 after the ban", snap.LiveConnectedCount)
	}
}

func TestUnbanIP(t *testing.T) {
	s, coord := newTestServer(t)
	coord.Connect("victim", "203.0.113.5", "US")
	request(t, s, http.MethodPost, "/admin/ban", `{"target":"victim"}`, "secret")

	w := request(t, s, http.MethodPost, "/admin/unban-ip", `{"ip":"203.0.113.5"}`, "secret")
	if w.Code != http.StatusOK {
		t.Fatalf("unban-ip = %d, want 200", w.Code)
	}
	if bans := coord.Snapshot().ActiveIPBans; len(bans) != 0 {
		t.Errorf("ActiveIPBans = %v, want none", bans)
	}
}

func TestCountriesLifecycle(t *testing.T) {
	s, _ := newTestServer(t)

	w := request(t, s, http.MethodPost, "/admin/countries", `{"code":"kp"}`, "secret")
	if w.Code != http.StatusOK {
		t.Fatalf("block = %d, want 200", w.Code)
	}
	request(t, s, http.MethodPost, "/admin/countries", `{"code":"RU"}`, "secret")

	var resp struct {
		BlockedCountries []string `json:"blockedCountries"`
	}
	w = request(t, s, http.MethodGet, "/admin/countries", "", "secret")
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(resp.BlockedCountries) != 2 || resp.BlockedCountries[0] != "KP" {
		t.Errorf("blocked = %v, want [KP RU]", resp.BlockedCountries)
	}

	w = request(t, s, http.MethodDelete, "/admin/countries", `{"code":"KP"}`, "secret")
	if w.Code != http.StatusOK {
		t.Fatalf("unblock = %d, want 200", w.Code)
	}

	w = request(t, s, http.MethodPost, "/admin/countries/clear", "", "secret")
	if w.Code != http.StatusOK {
		t.Fatalf("clear = %d, want 200", w.Code)
	}
	w = request(t, s, http.MethodGet, "/admin/countries", "", "secret")
	resp.BlockedCountries = nil
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.BlockedCountries) != 0 {
		t.Errorf("blocked after clear = %v, want none", resp.BlockedCountries)
	}
}

func TestDailyRejectsBadDate(t *testing.T) {
	s, _ := newTestServer(t)
	w := request(t, s, http.MethodGet, "/admin/analytics/daily?from=yesterday", "", "secret")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad date = %d, want 400", w.Code)
	}
}

func TestAnalyticsEndpoints(t *testing.T) {
	s, coord := newTestServer(t)
	coord.Connect("a", "203.0.113.1", "US")
	coord.Connect("b", "203.0.113.2", "DE")

	w := request(t, s, http.MethodGet, "/admin/analytics/daily", "", "secret")
	if w.Code != http.StatusOK {
		t.Errorf("daily = %d, want 200", w.Code)
	}

	var countries struct {
		Countries []visitor.CountryCount `json:"countries"`
	}
	w = request(t, s, http.MethodGet, "/admin/analytics/countries?limit=1", "", "secret")
	if err := json.Unmarshal(w.Body.Bytes(), &countries); err != nil {
		t.Fatalf("decode countries: %v", err)
	}
	if len(countries.Countries) != 1 {
		t.Errorf("countries = %v, want limit applied", countries.Countries)
	}

	var recent struct {
		Visitors []visitor.Entry `json:"visitors"`
	}
	w = request(t, s, http.MethodGet, "/admin/analytics/recent", "", "secret")
	if err := json.Unmarshal(w.Body.Bytes(), &recent); err != nil {
		t.Fatalf("decode recent: %v", err)
	}
	if len(recent.Visitors) != 2 {
		t.Errorf("recent = %v, want 2 entries", recent.Visitors)
	}
}

func TestBroadcastRequiresText(t *testing.T) {
	s, _ := newTestServer(t)
	if w := request(t, s, http.MethodPost, "/admin/broadcast", `{}`, "secret"); w.Code != http.StatusBadRequest {
		t.Errorf("missing text = %d, want 400", w.Code)
	}
	if w := request(t, s, http.MethodPost, "/admin/broadcast", `{"text":"hi"}`, "secret"); w.Code != http.StatusOK {
		t.Errorf("broadcast = %d, want 200", w.Code)
	}
}
