// Package geo resolves IP addresses to country codes using a MaxMind GeoLite2
// database. Lookups are best-effort: any failure yields an empty code, never
// an error on the connection path.
package geo

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// Resolver wraps a geoip2 country database.
type Resolver struct {
	db *geoip2.Reader
}

// Open loads the GeoLite2 Country (or City) database at path.
func Open(path string) (*Resolver, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geo: open %s: %w", path, err)
	}
	return &Resolver{db: db}, nil
}

// Country returns the ISO-3166 alpha-2 code for the IP, or "" when the
// address is unparsable or not in the database.
func (r *Resolver) Country(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ""
	}
	record, err := r.db.Country(parsed)
	if err != nil {
		return ""
	}
	return record.Country.IsoCode
}

// Close releases the database.
func (r *Resolver) Close() error {
	return r.db.Close()
}
