package geoip

import (
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupable(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"8.8.8.8", true},
		{"2606:4700:4700::1111", true},
		{"10.1.2.3", false},
		{"192.168.0.10", false},
		{"172.16.5.4", false},
		{"127.0.0.1", false},
		{"::1", false},
		{"169.254.1.1", false},
		{"fe80::1", false},
		{"224.0.0.1", false},
		{"255.255.255.255", false},
		{"0.0.0.0", false},
		{"fc00::1", false},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			assert.Equal(t, tt.want, Lookupable(net.ParseIP(tt.ip)))
		})
	}
	assert.False(t, Lookupable(nil))
}

func TestNilResolver(t *testing.T) {
	var r *Resolver
	_, ok := r.Country(net.ParseIP("8.8.8.8"))
	assert.False(t, ok)
	assert.NoError(t, r.Close())
}

func TestOpen_Missing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.mmdb"))
	assert.Error(t, err)
}
