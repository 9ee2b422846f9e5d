// Package geoip resolves peer addresses to ISO country codes using a
// MaxMind country database.
package geoip

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// Resolver is a read-only lookup. A nil Resolver resolves nothing.
type Resolver struct {
	db *geoip2.Reader
}

func Open(path string) (*Resolver, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open geoip database: %w", err)
	}
	return &Resolver{db: db}, nil
}

// Lookupable reports whether ip is a public unicast address. Private,
// loopback, link-local, broadcast, multicast and unspecified addresses
// never get a country.
func Lookupable(ip net.IP) bool {
	if ip == nil {
		return false
	}
	switch {
	case ip.IsPrivate(),
		ip.IsLoopback(),
		ip.IsLinkLocalUnicast(),
		ip.IsLinkLocalMulticast(),
		ip.IsMulticast(),
		ip.IsUnspecified(),
		ip.Equal(net.IPv4bcast):
		return false
	}
	return true
}

func (r *Resolver) Country(ip net.IP) (string, bool) {
	if r == nil || r.db == nil || !Lookupable(ip) {
		return "", false
	}
	rec, err := r.db.Country(ip)
	if err != nil || rec.Country.IsoCode == "" {
		return "", false
	}
	return rec.Country.IsoCode, true
}

func (r *Resolver) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}
