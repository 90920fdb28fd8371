// Package scope classifies discovered references against the crawled site.
package scope

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Classifier turns raw anchor references into normalized URLs and a
// LinkClass. It is immutable after construction and safe for concurrent use.
type Classifier struct {
	scheme    string
	host      string // canonical site host, lower-cased
	siteKey   string // host without a leading "www."
	root      string // scheme://host
	blacklist Blacklist
}

// NewClassifier creates a classifier for the site that seedURL belongs to.
func NewClassifier(seedURL string, blacklist []string) (*Classifier, error) {
	if !IsValidURL(seedURL) {
		return nil, fmt.Errorf("invalid seed URL %q", seedURL)
	}

	u, err := normalize(seedURL)
	if err != nil {
		return nil, err
	}

	return &Classifier{
		scheme:    u.Scheme,
		host:      u.Host,
		siteKey:   strings.TrimPrefix(u.Host, "www."),
		root:      u.Scheme + "://" + u.Host,
		blacklist: NewBlacklist(blacklist),
	}, nil
}

// Root returns the site root as scheme://host.
func (c *Classifier) Root() string {
	return c.root
}

// Host returns the canonical site host.
func (c *Classifier) Host() string {
	return c.host
}

// Classify classifies one raw href.
func (c *Classifier) Classify(href string) Link {
	ref := strings.TrimSpace(href)
	if ref == "" {
		return Link{Class: Rejected}
	}

	if c.blacklist.Match(ref) {
		return Link{Class: Blacklisted}
	}

	lower := strings.ToLower(ref)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return c.classifyAbsolute(ref)
	}

	return c.classifyRelative(ref)
}

func (c *Classifier) classifyAbsolute(ref string) Link {
	u, err := normalize(ref)
	if err != nil {
		return Link{Class: Rejected}
	}

	if !c.sameHost(u.Host) {
		return Link{URL: u.String(), Class: OffSite}
	}

	u.Scheme = c.scheme
	u.Host = c.host
	if u.Path == "" {
		return Link{Class: Rejected}
	}
	return Link{URL: u.String(), Class: SameSiteAbsolute}
}

func (c *Classifier) classifyRelative(ref string) Link {
	if u, err := url.Parse(ref); err != nil || u.Scheme != "" {
		return Link{Class: Rejected}
	}

	rest := ref
	if i := strings.IndexByte(rest, '#'); i >= 0 {
		rest = rest[:i]
	}
	query := ""
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		query = rest[i:]
		rest = rest[:i]
	}

	rest = strings.TrimLeft(rest, "/")
	if rest == "" {
		return Link{Class: Rejected}
	}

	first, _, _ := strings.Cut(rest, "/")
	if isHostSegment(first) {
		return c.classifyShortened(rest + query)
	}

	u, err := normalize(c.root + "/" + rest + query)
	if err != nil || u.Path == "" {
		return Link{Class: Rejected}
	}
	return Link{URL: u.String(), Class: SameSiteRelative}
}

// classifyShortened handles "/google.com/x" style references: relative in
// syntax, absolute in intent. They resolve against the site's scheme only.
func (c *Classifier) classifyShortened(rest string) Link {
	u, err := normalize(c.scheme + "://" + rest)
	if err != nil {
		return Link{Class: Rejected}
	}

	if !c.sameHost(u.Host) {
		return Link{URL: u.String(), Class: OffSite}
	}

	u.Host = c.host
	if u.Path == "" {
		return Link{Class: Rejected}
	}
	return Link{URL: u.String(), Class: SameSiteAbsolute}
}

func (c *Classifier) sameHost(host string) bool {
	return strings.TrimPrefix(strings.ToLower(host), "www.") == c.siteKey
}

// isHostSegment reports whether a path segment names a registrable host,
// e.g. "google.com" but not "page.html".
func isHostSegment(seg string) bool {
	if !strings.Contains(seg, ".") {
		return false
	}

	host := seg
	if h, _, err := net.SplitHostPort(seg); err == nil {
		host = h
	}
	host = strings.ToLower(host)

	if strings.HasPrefix(host, ".") || strings.HasSuffix(host, ".") {
		return false
	}
	for _, r := range host {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '.') {
			return false
		}
	}

	suffix, icann := publicsuffix.PublicSuffix(host)
	return icann && suffix != host
}

// NormalizeURL normalizes a URL for deduplication: lower-cased scheme and
// host, default port removed, cleaned path without trailing slash (the root
// becomes scheme://host), fragment dropped, query kept verbatim.
func NormalizeURL(rawURL string) (string, error) {
	u, err := normalize(rawURL)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func normalize(rawURL string) (*url.URL, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("not an absolute URL: %q", rawURL)
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)

	// Remove default ports
	if (parsed.Scheme == "http" && strings.HasSuffix(parsed.Host, ":80")) ||
		(parsed.Scheme == "https" && strings.HasSuffix(parsed.Host, ":443")) {
		parsed.Host = parsed.Host[:strings.LastIndex(parsed.Host, ":")]
	}

	parsed.Fragment = ""
	parsed.RawFragment = ""

	p := parsed.Path
	if p != "" {
		p = path.Clean("/" + p)
	}
	parsed.Path = strings.TrimSuffix(p, "/")
	parsed.RawPath = ""

	return parsed, nil
}

// IsValidURL checks if a URL is a crawlable http(s) URL.
func IsValidURL(urlStr string) bool {
	parsed, err := url.Parse(strings.TrimSpace(urlStr))
	if err != nil {
		return false
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}

	return parsed.Host != ""
}

// ExtractHost extracts the lower-cased host from a URL.
func ExtractHost(urlStr string) (string, error) {
	u, err := normalize(urlStr)
	if err != nil {
		return "", err
	}
	return u.Host, nil
}
