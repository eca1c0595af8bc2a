package credential

import (
	"net/http"
)

// DefaultCookieName is the session cookie issued by NextAuth-style hosted
// providers.
const DefaultCookieName = "next-auth.session-token"

// cookiePrefixes are the browser cookie security prefixes a provider
// deployment may apply, tried in order. Which one is in effect depends on the
// provider's deployment (HTTPS, host-only), so all variants are accepted.
var cookiePrefixes = []string{"", "__Secure-", "__Host-"}

// CookieNames returns the accepted session cookie name variants for base,
// in lookup order.
func CookieNames(base string) []string {
	names := make([]string, 0, len(cookiePrefixes))
	for _, prefix := range cookiePrefixes {
		names = append(names, prefix+base)
	}
	return names
}

// FromRequest scans the request's cookies for the first matching session
// cookie name variant and returns its value.
func FromRequest(r *http.Request, base string) (string, bool) {
	for _, name := range CookieNames(base) {
		if c, err := r.Cookie(name); err == nil && c.Value != "" {
			return c.Value, true
		}
	}
	return "", false
}

// FromHeader scans a raw Cookie header value for the first matching session
// cookie name variant and returns its value.
func FromHeader(header, base string) (string, bool) {
	cookies, err := http.ParseCookie(header)
	if err != nil {
		return "", false
	}

	byName := make(map[string]string, len(cookies))
	for _, c := range cookies {
		// First occurrence wins, matching browser ordering
		if _, ok := byName[c.Name]; !ok {
			byName[c.Name] = c.Value
		}
	}

	for _, name := range CookieNames(base) {
		if value, ok := byName[name]; ok && value != "" {
			return value, true
		}
	}
	return "", false
}
