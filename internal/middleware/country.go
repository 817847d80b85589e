package middleware

import (
	"context"
	"net/http"
	"strings"
)

const countryKey contextKey = "country"

// CountryLookup resolves an ISO country code for ip.
type CountryLookup func(ip string) (string, error)

var countryHeaders = []string{"X-Country-Code", "X-IP-Country", "CF-IPCountry", "X-Appengine-Country"}

// Country tags the request context with the caller's country. Edge headers
// win over the lookup; lookup errors leave the country empty.
func Country(lookup CountryLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if code := ResolveCountry(r, lookup); code != "" {
				r = r.WithContext(context.WithValue(r.Context(), countryKey, code))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ResolveCountry returns the upper-case two letter code for r, or "".
func ResolveCountry(r *http.Request, lookup CountryLookup) string {
	for _, h := range countryHeaders {
		if code := normalizeCountry(r.Header.Get(h)); code != "" {
			return code
		}
	}
	if lookup == nil {
		return ""
	}
	code, err := lookup(ClientIP(r))
	if err != nil {
		return ""
	}
	return normalizeCountry(code)
}

func normalizeCountry(raw string) string {
	code := strings.ToUpper(strings.TrimSpace(raw))
	// XX and T1 are Cloudflare's unknown and Tor markers.
	if len(code) != 2 || code == "XX" || code == "T1" {
		return ""
	}
	for _, c := range code {
		if c < 'A' || c > 'Z' {
			return ""
		}
	}
	return code
}

func CountryFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(countryKey).(string); ok {
		return v
	}
	return ""
}
