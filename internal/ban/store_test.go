package ban

import (
	"testing"
	"time"
)

// fakeClock lets tests advance time manually.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore() (*Store, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := NewStore()
	store.now = clock.now
	return store, clock
}

func TestIsIPBanned_NotBanned(t *testing.T) {
	store, _ := newTestStore()
	if store.IsIPBanned("203.0.113.7") {
		t.Error("expected not banned for unknown IP")
	}
	if store.IsIPBanned("") {
		t.Error("empty IP should never be banned")
	}
}

func TestBanAndCheck_BothSubjects(t *testing.T) {
	store, _ := newTestStore()
	store.Ban("203.0.113.7", "fp-abc", DefaultDuration)

	if !store.IsIPBanned("203.0.113.7") {
		t.Error("expected IP banned")
	}
	if !store.IsFingerprintBanned("fp-abc") {
		t.Error("expected fingerprint banned")
	}
	if store.IsIPBanned("203.0.113.8") {
		t.Error("unrelated IP should not be banned")
	}
}

func TestBan_EmptySubjectIsNoop(t *testing.T) {
	store, _ := newTestStore()
	store.Ban("", "fp-abc", time.Hour)

	if store.IsIPBanned("") {
		t.Error("empty IP should not create a record")
	}
	if len(store.ActiveIPBans()) != 0 {
		t.Errorf("expected no IP bans, got %d", len(store.ActiveIPBans()))
	}
	if !store.IsFingerprintBanned("fp-abc") {
		t.Error("fingerprint should still be banned")
	}
}

func TestBan_ExpiryIsLazy(t *testing.T) {
	store, clock := newTestStore()
	store.Ban("203.0.113.7", "", time.Hour)

	clock.advance(time.Hour - time.Second)
	if !store.IsIPBanned("203.0.113.7") {
		t.Error("ban should still be active just before expiry")
	}

	// A check at D+epsilon reports not-banned and evicts the record.
	clock.advance(2 * time.Second)
	if store.IsIPBanned("203.0.113.7") {
		t.Error("ban should be expired")
	}
	store.mu.Lock()
	_, lingering := store.ip["203.0.113.7"]
	store.mu.Unlock()
	if lingering {
		t.Error("expired record should have been evicted by the check")
	}
}

func TestBan_OverwriteExtendsExpiry(t *testing.T) {
	store, clock := newTestStore()
	store.Ban("203.0.113.7", "", time.Minute)
	clock.advance(30 * time.Second)
	store.Ban("203.0.113.7", "", time.Minute)

	clock.advance(45 * time.Second)
	if !store.IsIPBanned("203.0.113.7") {
		t.Error("re-ban should have reset the expiry")
	}
}

func TestBan_NoExpiry(t *testing.T) {
	store, clock := newTestStore()
	store.Ban("203.0.113.7", "", 0)

	clock.advance(1000 * time.Hour)
	if !store.IsIPBanned("203.0.113.7") {
		t.Error("zero-duration ban should never expire")
	}

	bans := store.ActiveIPBans()
	if len(bans) != 1 {
		t.Fatalf("expected 1 active ban, got %d", len(bans))
	}
	if bans[0].ExpiresAt != nil {
		t.Errorf("permanent ban should have nil ExpiresAt, got %v", bans[0].ExpiresAt)
	}
}

func TestUnban(t *testing.T) {
	store, _ := newTestStore()
	store.Ban("203.0.113.7", "fp-abc", time.Hour)

	store.Unban("203.0.113.7", "")
	if store.IsIPBanned("203.0.113.7") {
		t.Error("expected IP unbanned")
	}
	if !store.IsFingerprintBanned("fp-abc") {
		t.Error("fingerprint ban should be untouched by IP unban")
	}

	store.Unban("", "fp-abc")
	if store.IsFingerprintBanned("fp-abc") {
		t.Error("expected fingerprint unbanned")
	}
}

func TestActiveBans_ScanEvictsExpired(t *testing.T) {
	store, clock := newTestStore()
	store.Ban("203.0.113.7", "fp-old", time.Minute)
	store.Ban("203.0.113.8", "fp-new", time.Hour)

	clock.advance(10 * time.Minute)

	bans := store.ActiveIPBans()
	if len(bans) != 1 || bans[0].IP != "203.0.113.8" {
		t.Fatalf("expected only the unexpired ban, got %+v", bans)
	}

	fpBans := store.ActiveFingerprintBans()
	if len(fpBans) != 1 || fpBans[0].Fingerprint != "fp-new" {
		t.Fatalf("expected only the unexpired fingerprint ban, got %+v", fpBans)
	}

	store.mu.Lock()
	ipLen, fpLen := len(store.ip), len(store.fp)
	store.mu.Unlock()
	if ipLen != 1 || fpLen != 1 {
		t.Errorf("scan should evict expired records, maps have %d/%d entries", ipLen, fpLen)
	}
}
