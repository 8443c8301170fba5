package session

import "testing"

type staticResolver map[string]string

func (r staticResolver) Country(ip string) string { return r[ip] }

func TestResolveCountry_HintWins(t *testing.T) {
	r := NewRegistry(staticResolver{"203.0.113.7": "DE"})

	if got := r.ResolveCountry("203.0.113.7", "fr"); got != "FR" {
		t.Errorf("hint should win and be upper-cased, got %q", got)
	}
	if got := r.ResolveCountry("203.0.113.7", ""); got != "DE" {
		t.Errorf("expected resolver fallback DE, got %q", got)
	}
	if got := r.ResolveCountry("203.0.113.7", "XX"); got != "DE" {
		t.Errorf("XX hint should fall through to the resolver, got %q", got)
	}
}

func TestResolveCountry_UnknownIsEmpty(t *testing.T) {
	r := NewRegistry(staticResolver{})
	if got := r.ResolveCountry("198.51.100.1", ""); got != "" {
		t.Errorf("unresolvable IP should yield \"\", got %q", got)
	}

	// Nil resolver never fails, it just yields unknown.
	r2 := NewRegistry(nil)
	if got := r2.ResolveCountry("198.51.100.1", ""); got != "" {
		t.Errorf("nil resolver should yield \"\", got %q", got)
	}
}

func TestAddGetRemove(t *testing.T) {
	r := NewRegistry(nil)

	c := r.Add("id-1", "203.0.113.7", "DE")
	if c.ConnectedAt.IsZero() {
		t.Error("ConnectedAt should be set")
	}
	if r.Count() != 1 {
		t.Errorf("expected 1 connection, got %d", r.Count())
	}
	if got := r.Get("id-1"); got == nil || got.IP != "203.0.113.7" || got.Country != "DE" {
		t.Errorf("unexpected connection: %+v", got)
	}

	removed := r.Remove("id-1")
	if removed == nil || removed.ID != "id-1" {
		t.Errorf("Remove should return the connection, got %+v", removed)
	}
	if r.Get("id-1") != nil {
		t.Error("connection should be gone after Remove")
	}
	if r.Remove("id-1") != nil {
		t.Error("second Remove should return nil")
	}
}

func TestFingerprintLifecycle(t *testing.T) {
	r := NewRegistry(nil)
	r.Add("id-1", "203.0.113.7", "")

	// Unset until the client identifies itself.
	if got := r.FingerprintOf("id-1"); got != "" {
		t.Errorf("fingerprint should start empty, got %q", got)
	}

	r.SetFingerprint("id-1", "fp-abc")
	if got := r.FingerprintOf("id-1"); got != "fp-abc" {
		t.Errorf("expected fp-abc, got %q", got)
	}

	// Unknown identities are a no-op / empty.
	r.SetFingerprint("id-missing", "fp-x")
	if got := r.FingerprintOf("id-missing"); got != "" {
		t.Errorf("unknown identity should yield \"\", got %q", got)
	}
	if got := r.IPOf("id-missing"); got != "" {
		t.Errorf("unknown identity should yield \"\", got %q", got)
	}
}
