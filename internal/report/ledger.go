// Package report tracks abuse reports against live connections: per-target
// sets of distinct reporter identities plus an optional screenshot taken as
// evidence. Entries accumulate until explicitly cleared; there is no
// automatic expiry.
package report

import (
	"sort"
	"sync"
)

// Row is one reported target as exposed to admin observers.
type Row struct {
	Target     string   `json:"target"`
	Count      int      `json:"reportCount"`
	Reporters  []string `json:"reporterIdentities"`
	Screenshot string   `json:"screenshot,omitempty"`
}

type entry struct {
	reporters  map[string]struct{}
	screenshot string
}

// Ledger owns the report bookkeeping. It is safe for concurrent use.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]*entry // target identity -> entry
}

// NewLedger creates an empty report ledger.
func NewLedger() *Ledger {
	return &Ledger{entries: make(map[string]*entry)}
}

// Report adds the reporter to the target's set and returns the resulting
// number of distinct reporters. Reporting the same target twice from the same
// reporter counts once.
func (l *Ledger) Report(target, reporter string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[target]
	if !ok {
		e = &entry{reporters: make(map[string]struct{})}
		l.entries[target] = e
	}
	e.reporters[reporter] = struct{}{}
	return len(e.reporters)
}

// AttachScreenshot stores evidence for the target, overwriting any previous
// screenshot. It creates the entry if the target has not been reported yet.
func (l *Ledger) AttachScreenshot(target, image string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[target]
	if !ok {
		e = &entry{reporters: make(map[string]struct{})}
		l.entries[target] = e
	}
	e.screenshot = image
}

// Remove clears the reporter set and any screenshot for the target. A
// subsequent report against the same target starts counting from one again.
func (l *Ledger) Remove(target string) {
	l.mu.Lock()
	delete(l.entries, target)
	l.mu.Unlock()
}

// Count returns the number of distinct reporters for the target.
func (l *Ledger) Count(target string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[target]
	if !ok {
		return 0
	}
	return len(e.reporters)
}

// Screenshot returns the stored evidence for the target, or "" if none.
func (l *Ledger) Screenshot(target string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[target]
	if !ok {
		return ""
	}
	return e.screenshot
}

// Rows returns a snapshot of all reported targets, sorted by target identity
// for a stable admin view.
func (l *Ledger) Rows() []Row {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Row, 0, len(l.entries))
	for target, e := range l.entries {
		reporters := make([]string, 0, len(e.reporters))
		for r := range e.reporters {
			reporters = append(reporters, r)
		}
		sort.Strings(reporters)
		out = append(out, Row{
			Target:     target,
			Count:      len(e.reporters),
			Reporters:  reporters,
			Screenshot: e.screenshot,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target < out[j].Target })
	return out
}
