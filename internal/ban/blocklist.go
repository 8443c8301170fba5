package ban

import (
	"log"
	"sort"
	"strings"
	"sync"
)

// Persister stores the blocked-country set durably. Save rewrites the whole
// set; Load returns whatever was last saved.
type Persister interface {
	Save(codes []string) error
	Load() ([]string, error)
}

// Blocklist is the set of blocked ISO-3166 alpha-2 country codes. Unlike ban
// records, country blocks never expire. The in-memory set is authoritative
// for the running process; every mutation hands a wholesale snapshot to a
// background writer so a slow disk never stalls connection handling. Write
// failures are logged and swallowed.
type Blocklist struct {
	mu    sync.Mutex
	codes map[string]struct{}

	persister Persister
	saves     chan []string
	done      chan struct{}
	stopped   sync.WaitGroup
}

// NewBlocklist creates a blocklist backed by the given persister and loads
// the previously saved set. A nil persister yields a memory-only blocklist.
func NewBlocklist(p Persister) (*Blocklist, error) {
	b := &Blocklist{
		codes:     make(map[string]struct{}),
		persister: p,
		saves:     make(chan []string, 1),
		done:      make(chan struct{}),
	}

	if p != nil {
		codes, err := p.Load()
		if err != nil {
			return nil, err
		}
		for _, code := range codes {
			b.codes[normalizeCode(code)] = struct{}{}
		}

		b.stopped.Add(1)
		go b.writeLoop()
	}

	return b, nil
}

// Block adds a country code to the set and schedules persistence.
func (b *Blocklist) Block(code string) {
	code = normalizeCode(code)
	if code == "" {
		return
	}
	b.mu.Lock()
	b.codes[code] = struct{}{}
	snapshot := b.codesLocked()
	b.mu.Unlock()

	b.scheduleSave(snapshot)
}

// Unblock removes a country code from the set and schedules persistence.
func (b *Blocklist) Unblock(code string) {
	code = normalizeCode(code)
	b.mu.Lock()
	delete(b.codes, code)
	snapshot := b.codesLocked()
	b.mu.Unlock()

	b.scheduleSave(snapshot)
}

// ClearAll empties the set and schedules persistence.
func (b *Blocklist) ClearAll() {
	b.mu.Lock()
	b.codes = make(map[string]struct{})
	b.mu.Unlock()

	b.scheduleSave(nil)
}

// IsBlocked reports whether the country code is in the set. Unknown or empty
// codes are never blocked.
func (b *Blocklist) IsBlocked(code string) bool {
	code = normalizeCode(code)
	if code == "" {
		return false
	}
	b.mu.Lock()
	_, ok := b.codes[code]
	b.mu.Unlock()
	return ok
}

// Codes returns the blocked country codes sorted ascending.
func (b *Blocklist) Codes() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.codesLocked()
}

func (b *Blocklist) codesLocked() []string {
	out := make([]string, 0, len(b.codes))
	for code := range b.codes {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// scheduleSave hands the snapshot to the background writer. Only the most
// recent pending snapshot matters, so an unconsumed one is replaced rather
// than queued behind.
func (b *Blocklist) scheduleSave(codes []string) {
	if b.persister == nil {
		return
	}
	for {
		select {
		case b.saves <- codes:
			return
		default:
		}
		select {
		case <-b.saves:
		default:
		}
	}
}

func (b *Blocklist) writeLoop() {
	defer b.stopped.Done()
	for {
		select {
		case codes := <-b.saves:
			if err := b.persister.Save(codes); err != nil {
				log.Printf("ban: blocklist save failed: %v", err)
			}
		case <-b.done:
			// Flush the last pending snapshot before exiting.
			select {
			case codes := <-b.saves:
				if err := b.persister.Save(codes); err != nil {
					log.Printf("ban: blocklist final save failed: %v", err)
				}
			default:
			}
			return
		}
	}
}

// Close stops the background writer after flushing any pending snapshot.
// It does not close the persister.
func (b *Blocklist) Close() {
	if b.persister == nil {
		return
	}
	close(b.done)
	b.stopped.Wait()
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
