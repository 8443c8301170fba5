// Package session keeps the set of currently connected identities and their
// derived attributes (IP, device fingerprint, country). It is the source of
// truth the other moderation components index into: an identity exists here
// exactly as long as its connection is live.
package session

import (
	"strings"
	"sync"
	"time"
)

// CountryResolver maps an IP address to an ISO-3166 alpha-2 country code.
// Implementations return "" when the country cannot be determined; resolution
// failures are never fatal.
type CountryResolver interface {
	Country(ip string) string
}

// Conn holds the per-connection attributes owned by the registry.
type Conn struct {
	ID          string
	IP          string
	Fingerprint string // empty until the client identifies itself
	Country     string // ISO-3166 alpha-2, or "" if unresolved
	ConnectedAt time.Time
}

// Registry is the live connection table. It is safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	conns    map[string]*Conn
	resolver CountryResolver // may be nil
	now      func() time.Time
}

// NewRegistry creates an empty registry. The resolver may be nil, in which
// case only the upstream country hint is used.
func NewRegistry(resolver CountryResolver) *Registry {
	return &Registry{
		conns:    make(map[string]*Conn),
		resolver: resolver,
		now:      time.Now,
	}
}

// ResolveCountry determines the country for a connection: a trusted
// upstream-supplied hint wins, otherwise the IP is looked up via the
// resolver. Returns "" when neither yields a code.
func (r *Registry) ResolveCountry(ip, hint string) string {
	hint = strings.ToUpper(strings.TrimSpace(hint))
	// Some proxies send "XX" for unknown origins; treat it as unresolved.
	if hint != "" && hint != "XX" {
		return hint
	}
	if r.resolver == nil {
		return ""
	}
	return r.resolver.Country(ip)
}

// Add registers a newly connected identity. The country should come from
// ResolveCountry so the policy checks and the stored attribute agree.
func (r *Registry) Add(id, ip, country string) *Conn {
	c := &Conn{
		ID:          id,
		IP:          ip,
		Country:     country,
		ConnectedAt: r.now(),
	}
	r.mu.Lock()
	r.conns[id] = c
	r.mu.Unlock()
	return c
}

// SetFingerprint records the client-supplied device fingerprint. The
// fingerprint stays empty until the client volunteers it, so checks that need
// it before identification simply see "".
func (r *Registry) SetFingerprint(id, fingerprint string) {
	r.mu.Lock()
	if c, ok := r.conns[id]; ok {
		c.Fingerprint = fingerprint
	}
	r.mu.Unlock()
}

// Get returns the connection for the identity, or nil if it is not live.
func (r *Registry) Get(id string) *Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns[id]
}

// Remove drops all registry state for the identity and returns the removed
// connection, or nil if it was not live.
func (r *Registry) Remove(id string) *Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok {
		return nil
	}
	delete(r.conns, id)
	return c
}

// IPOf returns the identity's origin address, or "" if not live.
func (r *Registry) IPOf(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[id]; ok {
		return c.IP
	}
	return ""
}

// FingerprintOf returns the identity's fingerprint, or "" if not live or not
// yet identified.
func (r *Registry) FingerprintOf(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[id]; ok {
		return c.Fingerprint
	}
	return ""
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
