package visitor

import (
	"testing"
	"time"
)

func ledgerAt(t0 time.Time) (*Ledger, *time.Time) {
	l := NewLedger()
	current := t0
	l.now = func() time.Time { return current }
	return l, &current
}

func TestRecord_UpdatesGaugeAndHistory(t *testing.T) {
	l := NewLedger()
	l.Record("id-1", "203.0.113.1", "DE")
	l.Record("id-2", "203.0.113.2", "DE")
	l.Record("id-3", "203.0.113.3", "FR")
	l.Record("id-4", "203.0.113.4", "")

	if l.Total() != 4 {
		t.Errorf("expected 4 history entries, got %d", l.Total())
	}

	counts := l.CountryCounts()
	if counts["DE"] != 2 || counts["FR"] != 1 {
		t.Errorf("unexpected gauge: %v", counts)
	}
	if _, ok := counts[""]; ok {
		t.Error("unknown country should not appear in the gauge")
	}
}

func TestDisconnect_GaugeEntryRemovedAtZero(t *testing.T) {
	l := NewLedger()
	l.Record("id-1", "203.0.113.1", "DE")
	l.Record("id-2", "203.0.113.2", "DE")

	l.Disconnect("id-1", "DE")
	if got := l.CountryCounts()["DE"]; got != 1 {
		t.Errorf("expected DE=1, got %d", got)
	}

	l.Disconnect("id-2", "DE")
	if _, ok := l.CountryCounts()["DE"]; ok {
		t.Error("gauge entry should be removed when it reaches zero")
	}

	// History is retained regardless of disconnects.
	if l.Total() != 2 {
		t.Errorf("history should survive disconnects, got %d entries", l.Total())
	}
}

func TestSetFingerprint_BackfillsOnce(t *testing.T) {
	l := NewLedger()
	l.Record("id-1", "203.0.113.1", "DE")

	l.SetFingerprint("id-1", "fp-first")
	l.SetFingerprint("id-1", "fp-second")

	entries := l.Recent(1)
	if entries[0].Fingerprint != "fp-first" {
		t.Errorf("backfill should happen once, got %q", entries[0].Fingerprint)
	}

	// Unknown identity is a no-op.
	l.SetFingerprint("id-missing", "fp-x")
}

func TestSetFingerprint_AfterDisconnectIsNoop(t *testing.T) {
	l := NewLedger()
	l.Record("id-1", "203.0.113.1", "DE")
	l.Disconnect("id-1", "DE")

	l.SetFingerprint("id-1", "fp-late")
	if got := l.Recent(1)[0].Fingerprint; got != "" {
		t.Errorf("fingerprint should not be set after disconnect, got %q", got)
	}
}

func TestDailyCounts_BucketsSortedAscending(t *testing.T) {
	day1 := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	l, current := ledgerAt(day1)

	l.Record("a", "203.0.113.1", "DE")
	*current = day1.Add(2 * time.Hour)
	l.Record("b", "203.0.113.2", "FR")
	*current = day1.Add(13 * time.Hour)
	l.Record("c", "203.0.113.3", "US")
	*current = day2
	l.Record("d", "203.0.113.4", "DE")

	got := l.DailyCounts(nil, nil)
	if len(got) != 2 {
		t.Fatalf("expected exactly 2 buckets, got %d: %v", len(got), got)
	}
	if got[0].Date != "2024-01-01" || got[0].Count != 3 {
		t.Errorf("unexpected first bucket: %+v", got[0])
	}
	if got[1].Date != "2024-01-02" || got[1].Count != 1 {
		t.Errorf("unexpected second bucket: %+v", got[1])
	}
}

func TestDailyCounts_InclusiveRange(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l, current := ledgerAt(base)
	for i := 0; i < 5; i++ {
		l.Record("id", "203.0.113.1", "DE")
		*current = current.AddDate(0, 0, 1)
	}

	from := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 4, 23, 0, 0, 0, time.UTC)
	got := l.DailyCounts(&from, &to)
	if len(got) != 3 {
		t.Fatalf("expected 3 buckets in range, got %v", got)
	}
	if got[0].Date != "2024-01-02" || got[2].Date != "2024-01-04" {
		t.Errorf("range boundaries should be inclusive: %v", got)
	}
}

func TestTopCountries_SortedAndCapped(t *testing.T) {
	l := NewLedger()
	for i := 0; i < 3; i++ {
		l.Record("de", "203.0.113.1", "DE")
	}
	for i := 0; i < 5; i++ {
		l.Record("us", "203.0.113.2", "US")
	}
	l.Record("fr", "203.0.113.3", "FR")

	got := l.TopCountries(2)
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].Country != "US" || got[0].Count != 5 {
		t.Errorf("unexpected top country: %+v", got[0])
	}
	if got[1].Country != "DE" || got[1].Count != 3 {
		t.Errorf("unexpected second country: %+v", got[1])
	}
}

func TestRecent_ChronologicalTail(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	l, current := ledgerAt(base)
	ips := []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}
	for _, ip := range ips {
		l.Record(ip, ip, "")
		*current = current.Add(time.Minute)
	}

	got := l.Recent(2)
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].IP != "10.0.0.2" || got[1].IP != "10.0.0.3" {
		t.Errorf("expected chronological tail, got %v", got)
	}

	// A limit beyond the history length returns everything.
	if all := l.Recent(100); len(all) != 3 {
		t.Errorf("expected full history, got %d entries", len(all))
	}
}
