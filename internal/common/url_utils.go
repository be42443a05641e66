package common

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// trackingParams are stripped during canonicalization. utm_* is handled by
// prefix; the rest are exact names.
var trackingParams = map[string]bool{
	"fbclid": true,
	"gclid":  true,
	"ref":    true,
	"source": true,
	"mc_cid": true,
	"mc_eid": true,
}

// CanonicalizeURL normalizes a URL for dedup: lowercase scheme, host, and
// path, fragment dropped, tracking params stripped, remaining params sorted,
// and the trailing slash removed except on the root path.
func CanonicalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", err
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	// Paths are case-sensitive per RFC 3986, but dedup treats /About and
	// /about as the same page.
	u.Path = strings.ToLower(u.Path)
	u.RawPath = ""
	u.Fragment = ""

	if u.RawQuery != "" {
		query := u.Query()
		keys := make([]string, 0, len(query))
		for k := range query {
			if trackingParams[strings.ToLower(k)] || strings.HasPrefix(strings.ToLower(k), "utm_") {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)

		values := url.Values{}
		for _, k := range keys {
			values[k] = query[k]
		}
		u.RawQuery = values.Encode()
	}

	if len(u.Path) > 1 {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	return u.String(), nil
}

// SameDomain reports whether two URLs share a host, treating a leading
// "www." as insignificant.
func SameDomain(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return stripWWW(ua.Host) == stripWWW(ub.Host)
}

func stripWWW(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

// ExtractDomain returns the lowercased host of a URL, or "" on parse error.
func ExtractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

// ContentHash computes the SHA-256 of whitespace-collapsed, case-folded
// text. Two pages with the same hash are treated as duplicates.
func ContentHash(text string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(text), " "))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
