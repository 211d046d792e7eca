package catalog

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrUnsupportedURL is returned for links that cannot be crawled (mailto:,
// javascript:, hostless references).
var ErrUnsupportedURL = errors.New("unsupported url")

var defaultTrackingParams = []string{
	"gclid",
	"fbclid",
	"msclkid",
	"dclid",
	"yclid",
	"mc_cid",
	"mc_eid",
	"_ga",
	"_gl",
}

// URLNormalizer canonicalizes discovered links so that equivalent URLs
// compare equal.
type URLNormalizer struct {
	tracking map[string]struct{}
}

// NewURLNormalizer builds a normalizer that strips utm_* parameters, the
// default click identifiers, and any extra parameter names supplied.
func NewURLNormalizer(extraTrackingParams []string) *URLNormalizer {
	n := &URLNormalizer{tracking: make(map[string]struct{})}
	for _, p := range defaultTrackingParams {
		n.tracking[p] = struct{}{}
	}
	for _, p := range extraTrackingParams {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			n.tracking[p] = struct{}{}
		}
	}
	return n
}

// NormalizeURL normalizes an absolute URL with the default tracking set.
func NormalizeURL(rawURL string) (string, error) {
	return NewURLNormalizer(nil).Normalize("", rawURL)
}

// Normalize resolves rawURL against base (when base is non-empty) and
// standardizes it. It lowercases the scheme and host, removes default ports,
// fragments, and tracking parameters, sorts the query, and trims a trailing
// slash. Path case is preserved.
func (n *URLNormalizer) Normalize(base, rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", fmt.Errorf("%w: empty", ErrUnsupportedURL)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if base != "" {
		b, err := url.Parse(base)
		if err != nil {
			return "", fmt.Errorf("parse base url: %w", err)
		}
		u = b.ResolveReference(u)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: scheme %q", ErrUnsupportedURL, u.Scheme)
	}
	u.Host = strings.ToLower(u.Host)
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrUnsupportedURL)
	}
	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawFragment = ""
	// Re-escape from the decoded path so percent-encoding is canonical.
	u.RawPath = ""
	if u.Path == "" {
		u.Path = "/"
	}
	if len(u.Path) > 1 {
		u.Path = strings.TrimRight(u.Path, "/")
		if u.Path == "" {
			u.Path = "/"
		}
	}

	q := u.Query()
	for key := range q {
		if n.isTracking(key) {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()
	u.ForceQuery = false

	return u.String(), nil
}

func (n *URLNormalizer) isTracking(key string) bool {
	key = strings.ToLower(key)
	if strings.HasPrefix(key, "utm_") {
		return true
	}
	_, ok := n.tracking[key]
	return ok
}

// SameHost reports whether two absolute URLs share a hostname.
func SameHost(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return strings.EqualFold(ua.Hostname(), ub.Hostname())
}
