// Package ban provides in-memory ban management keyed by IP address and by
// device fingerprint, plus a durable set of blocked country codes.
//
// Ban records carry an absolute expiry instant. Expired records are treated
// as absent by every check and are evicted lazily: a record past its expiry
// may physically linger in the map until the next check or scan touches it.
package ban

import (
	"sync"
	"time"
)

const (
	// DefaultDuration is the standard ban length applied to both manual
	// admin bans and automatic report-triggered bans.
	DefaultDuration = 24 * time.Hour

	// AutoBanThreshold is the number of distinct reporters that triggers
	// an automatic ban of the reported connection.
	AutoBanThreshold = 3
)

// Record is a single ban entry. A zero ExpiresAt means the ban never expires.
type Record struct {
	ExpiresAt time.Time
}

// expired reports whether the record is past its expiry at the given instant.
// Permanent records (zero ExpiresAt) never expire.
func (r Record) expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !r.ExpiresAt.After(now)
}

// IPBan is an active IP ban as exposed to admin observers.
type IPBan struct {
	IP        string     `json:"ip"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// FingerprintBan is an active fingerprint ban as exposed to admin observers.
type FingerprintBan struct {
	Fingerprint string     `json:"fingerprint"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

// Store tracks time-expiring bans in two independent mappings: one keyed by
// IP address, one keyed by device fingerprint. It is safe for concurrent use.
type Store struct {
	mu  sync.Mutex
	ip  map[string]Record
	fp  map[string]Record
	now func() time.Time // overridable clock for tests
}

// NewStore creates an empty ban store.
func NewStore() *Store {
	return &Store{
		ip:  make(map[string]Record),
		fp:  make(map[string]Record),
		now: time.Now,
	}
}

// Ban sets or overwrites a ban on whichever subjects are provided. An empty
// IP or fingerprint is a no-op for that mapping. A non-positive duration
// creates a ban with no expiry.
func (s *Store) Ban(ip, fingerprint string, duration time.Duration) {
	var expires time.Time
	if duration > 0 {
		expires = s.now().Add(duration)
	}
	rec := Record{ExpiresAt: expires}

	s.mu.Lock()
	if ip != "" {
		s.ip[ip] = rec
	}
	if fingerprint != "" {
		s.fp[fingerprint] = rec
	}
	s.mu.Unlock()
}

// Unban removes bans unconditionally for whichever subjects are provided.
func (s *Store) Unban(ip, fingerprint string) {
	s.mu.Lock()
	if ip != "" {
		delete(s.ip, ip)
	}
	if fingerprint != "" {
		delete(s.fp, fingerprint)
	}
	s.mu.Unlock()
}

// IsIPBanned reports whether the IP currently has an unexpired ban. An
// expired record reports false and is evicted on the spot.
func (s *Store) IsIPBanned(ip string) bool {
	if ip == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkLocked(s.ip, ip)
}

// IsFingerprintBanned reports whether the fingerprint currently has an
// unexpired ban. An expired record reports false and is evicted on the spot.
func (s *Store) IsFingerprintBanned(fingerprint string) bool {
	if fingerprint == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkLocked(s.fp, fingerprint)
}

func (s *Store) checkLocked(m map[string]Record, key string) bool {
	rec, ok := m[key]
	if !ok {
		return false
	}
	if rec.expired(s.now()) {
		delete(m, key)
		return false
	}
	return true
}

// ActiveIPBans returns all unexpired IP bans. Expired records encountered
// during the scan are evicted.
func (s *Store) ActiveIPBans() []IPBan {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make([]IPBan, 0, len(s.ip))
	for ip, rec := range s.ip {
		if rec.expired(now) {
			delete(s.ip, ip)
			continue
		}
		out = append(out, IPBan{IP: ip, ExpiresAt: expiryPtr(rec)})
	}
	return out
}

// ActiveFingerprintBans returns all unexpired fingerprint bans. Expired
// records encountered during the scan are evicted.
func (s *Store) ActiveFingerprintBans() []FingerprintBan {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make([]FingerprintBan, 0, len(s.fp))
	for fp, rec := range s.fp {
		if rec.expired(now) {
			delete(s.fp, fp)
			continue
		}
		out = append(out, FingerprintBan{Fingerprint: fp, ExpiresAt: expiryPtr(rec)})
	}
	return out
}

func expiryPtr(rec Record) *time.Time {
	if rec.ExpiresAt.IsZero() {
		return nil
	}
	t := rec.ExpiresAt
	return &t
}
