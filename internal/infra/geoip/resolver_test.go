package geoip

import (
	"errors"
	"net"
	"testing"
)

func TestNewResolverEmptyPath(t *testing.T) {
	r, err := NewResolver("  ")
	if err != nil || r != nil {
		t.Fatalf("NewResolver(empty) = %v, %v", r, err)
	}
	if _, err := r.CountryCode("8.8.8.8"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("nil resolver err = %v, want ErrUnavailable", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close on nil resolver: %v", err)
	}
}

func TestNewResolverMissingFile(t *testing.T) {
	if _, err := NewResolver("/nonexistent/GeoLite2-Country.mmdb"); err == nil {
		t.Fatalf("expected error for missing database")
	}
}

func TestRoutable(t *testing.T) {
	tests := map[string]bool{
		"127.0.0.1":   false,
		"10.1.2.3":    false,
		"192.168.1.1": false,
		"::1":         false,
		"0.0.0.0":     false,
		"fe80::1":     false,
		"8.8.8.8":     true,
		"103.10.1.1":  true,
	}
	for ip, want := range tests {
		if got := Routable(net.ParseIP(ip)); got != want {
			t.Fatalf("Routable(%s) = %v, want %v", ip, got, want)
		}
	}
}
