// Package visitor keeps the append-only history of connection events used for
// admin analytics, plus the live per-country presence gauge. History is
// retained for the lifetime of the process; the most recent entries are
// exposed to the admin view, and daily aggregates are computed over the full
// history.
package visitor

import (
	"sort"
	"sync"
	"time"
)

// RecentLimit is the maximum number of history entries exposed to the admin
// snapshot.
const RecentLimit = 500

// Entry is one connection event. Entries are immutable once appended, except
// that the fingerprint may be back-filled once when the client identifies
// itself after connecting.
type Entry struct {
	IP          string    `json:"ip"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Country     string    `json:"country,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// DayCount is the number of visitors on one UTC calendar day.
type DayCount struct {
	Date  string `json:"date"` // 2006-01-02
	Count int    `json:"count"`
}

// CountryCount is the live number of connected sessions from one country.
type CountryCount struct {
	Country string `json:"country"`
	Count   int    `json:"count"`
}

// Ledger owns the visitor history and the live country gauge. It is safe for
// concurrent use.
type Ledger struct {
	mu      sync.Mutex
	history []Entry
	gauge   map[string]int // country -> currently connected count
	open    map[string]int // identity -> history index, for fingerprint backfill
	now     func() time.Time
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		gauge: make(map[string]int),
		open:  make(map[string]int),
		now:   time.Now,
	}
}

// Record appends a history entry for a newly connected identity and bumps the
// live gauge for its country. The identity is remembered until SetFingerprint
// or Disconnect so the entry's fingerprint can be back-filled once.
func (l *Ledger) Record(identity, ip, country string) {
	l.mu.Lock()
	l.history = append(l.history, Entry{
		IP:        ip,
		Country:   country,
		Timestamp: l.now(),
	})
	l.open[identity] = len(l.history) - 1
	if country != "" {
		l.gauge[country]++
	}
	l.mu.Unlock()
}

// SetFingerprint back-fills the fingerprint on the history entry created when
// the identity connected. No-op if the identity is unknown or already
// back-filled.
func (l *Ledger) SetFingerprint(identity, fingerprint string) {
	l.mu.Lock()
	if idx, ok := l.open[identity]; ok && l.history[idx].Fingerprint == "" {
		l.history[idx].Fingerprint = fingerprint
	}
	l.mu.Unlock()
}

// Disconnect decrements the live gauge for the identity's country, removing
// the gauge entry when it reaches zero, and drops the backfill handle. The
// history entry itself is retained.
func (l *Ledger) Disconnect(identity, country string) {
	l.mu.Lock()
	delete(l.open, identity)
	if country != "" {
		if l.gauge[country] <= 1 {
			delete(l.gauge, country)
		} else {
			l.gauge[country]--
		}
	}
	l.mu.Unlock()
}

// Total returns the number of history entries ever recorded.
func (l *Ledger) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.history)
}

// CountryCounts returns a copy of the live gauge.
func (l *Ledger) CountryCounts() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int, len(l.gauge))
	for code, n := range l.gauge {
		out[code] = n
	}
	return out
}

// DailyCounts groups history entries by UTC calendar day within the optional
// inclusive date range and returns day/count pairs sorted ascending by date.
// Days with no entries are omitted.
func (l *Ledger) DailyCounts(from, to *time.Time) []DayCount {
	l.mu.Lock()
	defer l.mu.Unlock()

	counts := make(map[string]int)
	for _, e := range l.history {
		day := e.Timestamp.UTC().Truncate(24 * time.Hour)
		if from != nil && day.Before(from.UTC().Truncate(24*time.Hour)) {
			continue
		}
		if to != nil && day.After(to.UTC().Truncate(24*time.Hour)) {
			continue
		}
		counts[day.Format("2006-01-02")]++
	}

	out := make([]DayCount, 0, len(counts))
	for date, n := range counts {
		out = append(out, DayCount{Date: date, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// TopCountries returns the live gauge sorted descending by count, capped to
// limit. Ties sort by country code for a stable order.
func (l *Ledger) TopCountries(limit int) []CountryCount {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]CountryCount, 0, len(l.gauge))
	for code, n := range l.gauge {
		out = append(out, CountryCount{Country: code, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Country < out[j].Country
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Recent returns the last limit history entries in chronological order.
func (l *Ledger) Recent(limit int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limit <= 0 || limit > len(l.history) {
		limit = len(l.history)
	}
	out := make([]Entry, limit)
	copy(out, l.history[len(l.history)-limit:])
	return out
}
