package ws

import (
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		xff    string
		remote string
		want   string
	}{
		{"direct", "", "203.0.113.7:51234", "203.0.113.7"},
		{"forwarded single", "198.51.100.9", "10.0.0.1:80", "198.51.100.9"},
		{"forwarded chain", "198.51.100.9, 10.0.0.2, 10.0.0.1", "10.0.0.1:80", "198.51.100.9"},
		{"forwarded with spaces", "  198.51.100.9 , 10.0.0.2", "10.0.0.1:80", "198.51.100.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/ws", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := clientIP(r); got != tt.want {
				t.Errorf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCountryHint(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws", nil)
	if got := countryHint(r); got != "" {
		t.Errorf("countryHint() = %q, want empty", got)
	}

	r.Header.Set("X-Country-Code", "DE")
	if got := countryHint(r); got != "DE" {
		t.Errorf("countryHint() = %q, want DE", got)
	}

	// The edge proxy header wins over the generic one.
	r.Header.Set("CF-IPCountry", "FR")
	if got := countryHint(r); got != "FR" {
		t.Errorf("countryHint() = %q, want FR", got)
	}
}
