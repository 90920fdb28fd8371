package scope

import (
	"testing"
)

// =============================================================================
// Classifier Tests
// =============================================================================

func TestNewClassifier(t *testing.T) {
	tests := []struct {
		name    string
		seed    string
		root    string
		wantErr bool
	}{
		{"with trailing slash", "https://example.com/", "https://example.com", false},
		{"with path", "https://Example.com/app/", "https://example.com", false},
		{"with port", "http://127.0.0.1:8080/", "http://127.0.0.1:8080", false},
		{"default port removed", "https://example.com:443", "https://example.com", false},
		{"no scheme", "example.com", "", true},
		{"ftp scheme", "ftp://example.com", "", true},
		{"invalid", "://invalid", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClassifier(tt.seed, DefaultBlacklist)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewClassifier() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if c.Root() != tt.root {
				t.Errorf("Root() = %q, want %q", c.Root(), tt.root)
			}
		})
	}
}

func TestClassifier_Classify(t *testing.T) {
	c, err := NewClassifier("https://example.com/", DefaultBlacklist)
	if err != nil {
		t.Fatalf("NewClassifier() error = %v", err)
	}

	tests := []struct {
		name  string
		href  string
		url   string
		class LinkClass
	}{
		{"relative", "/a", "https://example.com/a", SameSiteRelative},
		{"nested relative", "/a/b/", "https://example.com/a/b", SameSiteRelative},
		{"duplicate separators", "//a//b", "https://example.com/a/b", SameSiteRelative},
		{"only separators", "///", "", Rejected},
		{"root", "/", "", Rejected},
		{"empty", "   ", "", Rejected},
		{"dot segments", "/a/../b", "https://example.com/b", SameSiteRelative},
		{"fragment dropped", "/a#top", "https://example.com/a", SameSiteRelative},
		{"query kept", "/search?q=Go&b=1", "https://example.com/search?q=Go&b=1", SameSiteRelative},
		{"file name is not a host", "/page.html", "https://example.com/page.html", SameSiteRelative},
		{"no leading slash", "docs/intro", "https://example.com/docs/intro", SameSiteRelative},
		{"same-site absolute", "http://example.com/b", "https://example.com/b", SameSiteAbsolute},
		{"same-site absolute www", "https://www.example.com/b/", "https://example.com/b", SameSiteAbsolute},
		{"same-site absolute upper case", "HTTPS://EXAMPLE.COM/Path", "https://example.com/Path", SameSiteAbsolute},
		{"same-site absolute root", "http://example.com/", "", Rejected},
		{"off-site", "http://other.com/c", "http://other.com/c", OffSite},
		{"off-site root", "https://other.com", "https://other.com", OffSite},
		{"shortened absolute off-site", "/google.com/x", "https://google.com/x", OffSite},
		{"shortened absolute same-site", "/example.com/about", "https://example.com/about", SameSiteAbsolute},
		{"protocol-relative collapses", "//cdn.other.org/lib", "https://cdn.other.org/lib", OffSite},
		{"blacklisted keyword", "/track/x", "", Blacklisted},
		{"blacklisted case-insensitive", "/Banner/top", "", Blacklisted},
		{"blacklisted extension", "/img/logo.PNG", "", Blacklisted},
		{"blacklisted absolute", "http://other.com/click", "", Blacklisted},
		{"other scheme", "mailto:someone@example.com", "", Rejected},
		{"javascript", "javascript:void(0)", "", Rejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.href)
			if got.Class != tt.class {
				t.Errorf("Classify(%q).Class = %v, want %v", tt.href, got.Class, tt.class)
			}
			if got.URL != tt.url {
				t.Errorf("Classify(%q).URL = %q, want %q", tt.href, got.URL, tt.url)
			}
		})
	}
}

func TestClassifier_Idempotent(t *testing.T) {
	c, _ := NewClassifier("https://example.com", DefaultBlacklist)

	hrefs := []string{"/a", "//a//", "http://example.com/b", "/google.com/x", "/track", "///", "/q?x=1#f"}
	for _, href := range hrefs {
		first := c.Classify(href)
		second := c.Classify(href)
		if first != second {
			t.Errorf("Classify(%q) not idempotent: %+v vs %+v", href, first, second)
		}
	}
}

func TestClassifier_PageScenario(t *testing.T) {
	c, _ := NewClassifier("https://example.com/", DefaultBlacklist)

	anchors := []string{"/a", "/a", "http://example.com/b", "http://other.com/c", "/track/x"}

	var counts Counts
	seen := make(map[string]struct{})
	var frontier []string
	for _, href := range anchors {
		link := c.Classify(href)
		counts.Add(link.Class)
		if !link.Class.Enqueueable() {
			continue
		}
		if _, ok := seen[link.URL]; ok {
			continue
		}
		seen[link.URL] = struct{}{}
		frontier = append(frontier, link.URL)
	}

	want := []string{"https://example.com/a", "https://example.com/b"}
	if len(frontier) != len(want) {
		t.Fatalf("frontier = %v, want %v", frontier, want)
	}
	for i := range want {
		if frontier[i] != want[i] {
			t.Errorf("frontier[%d] = %q, want %q", i, frontier[i], want[i])
		}
	}
	if counts.Absolute != 2 {
		t.Errorf("Absolute = %d, want 2", counts.Absolute)
	}
	if counts.Relative != 2 {
		t.Errorf("Relative = %d, want 2", counts.Relative)
	}
	if counts.Blacklisted != 1 {
		t.Errorf("Blacklisted = %d, want 1", counts.Blacklisted)
	}
}

func TestClassifier_CustomBlacklist(t *testing.T) {
	c, _ := NewClassifier("https://example.com", []string{"logout", "  "})

	if got := c.Classify("/logout").Class; got != Blacklisted {
		t.Errorf("Classify(/logout) = %v, want Blacklisted", got)
	}
	if got := c.Classify("/track").Class; got != SameSiteRelative {
		t.Errorf("Classify(/track) = %v, want SameSiteRelative", got)
	}
}

func TestClassifier_ShortenedAbsolute(t *testing.T) {
	c, err := NewClassifier("https://example.com/", nil)
	if err != nil {
		t.Fatalf("NewClassifier() error = %v", err)
	}

	tests := []struct {
		name    string
		href    string
		wantURL string
		want    LinkClass
		enqueue bool
	}{
		{"other host stays off the frontier", "/google.com/x", "https://google.com/x", OffSite, false},
		{"site host is followed", "/www.example.com/x", "https://example.com/x", SameSiteAbsolute, true},
		{"version segment is a path", "/v1.2/docs", "https://example.com/v1.2/docs", SameSiteRelative, true},
		{"file name is a path", "/index.html", "https://example.com/index.html", SameSiteRelative, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.href)
			if got.URL != tt.wantURL {
				t.Errorf("URL = %q, want %q", got.URL, tt.wantURL)
			}
			if got.Class != tt.want {
				t.Errorf("Class = %v, want %v", got.Class, tt.want)
			}
			if got.Class.Enqueueable() != tt.enqueue {
				t.Errorf("Enqueueable() = %v, want %v", got.Class.Enqueueable(), tt.enqueue)
			}
		})
	}
}

// =============================================================================
// LinkClass Tests
// =============================================================================

func TestLinkClass(t *testing.T) {
	tests := []struct {
		class      LinkClass
		name       string
		enqueue    bool
		isAbsolute bool
	}{
		{SameSiteRelative, "same_site_relative", true, false},
		{SameSiteAbsolute, "same_site_absolute", true, true},
		{OffSite, "off_site", false, true},
		{Blacklisted, "blacklisted", false, false},
		{Rejected, "rejected", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.class.String(); got != tt.name {
				t.Errorf("String() = %q, want %q", got, tt.name)
			}
			if got := tt.class.Enqueueable(); got != tt.enqueue {
				t.Errorf("Enqueueable() = %v, want %v", got, tt.enqueue)
			}
			if got := tt.class.IsAbsolute(); got != tt.isAbsolute {
				t.Errorf("IsAbsolute() = %v, want %v", got, tt.isAbsolute)
			}
		})
	}
}

// =============================================================================
// Normalization Tests
// =============================================================================

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"lowercase scheme and host", "HTTPS://EXAMPLE.COM/Path", "https://example.com/Path", false},
		{"remove default https port", "https://example.com:443/path", "https://example.com/path", false},
		{"remove default http port", "http://example.com:80/path", "http://example.com/path", false},
		{"keep non-default port", "https://example.com:8443/path", "https://example.com:8443/path", false},
		{"remove fragment", "https://example.com/page#section", "https://example.com/page", false},
		{"remove trailing slash", "https://example.com/path/", "https://example.com/path", false},
		{"root has no slash", "https://example.com/", "https://example.com", false},
		{"clean path", "https://example.com//a/./b/../c", "https://example.com/a/c", false},
		{"query kept verbatim", "https://example.com/?b=2&a=1", "https://example.com?b=2&a=1", false},
		{"relative rejected", "/path", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeURL(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormalizeURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsValidURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://example.com", true},
		{"http://example.com/page", true},
		{"ftp://example.com", false},
		{"/relative/path", false},
		{"https://", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := IsValidURL(tt.url); got != tt.want {
				t.Errorf("IsValidURL(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestExtractHost(t *testing.T) {
	host, err := ExtractHost("https://Example.com:443/a")
	if err != nil {
		t.Fatalf("ExtractHost() error = %v", err)
	}
	if host != "example.com" {
		t.Errorf("ExtractHost() = %q, want example.com", host)
	}
}

func TestBlacklist(t *testing.T) {
	b := NewBlacklist(DefaultBlacklist)

	if !b.Match("/Tracking/pixel") {
		t.Error("Match should be case-insensitive")
	}
	if b.Match("/about") {
		t.Error("Match(/about) should be false")
	}
	if len(b.Keywords()) != len(DefaultBlacklist) {
		t.Errorf("Keywords() = %d entries, want %d", len(b.Keywords()), len(DefaultBlacklist))
	}
}
