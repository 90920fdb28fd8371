// Package parser queries fetched HTML documents for anchors and page
// metadata.
package parser

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Pattern is an anchor selector.
type Pattern string

// Anchor patterns followed by the crawler.
const (
	// PrefixSlash matches root-relative and protocol-relative references.
	PrefixSlash Pattern = `a[href^="/"]`
	// PrefixHTTP matches absolute http and https references.
	PrefixHTTP Pattern = `a[href^="http"]`
)

// DefaultPatterns are queried, in order, for every page.
var DefaultPatterns = []Pattern{PrefixSlash, PrefixHTTP}

// Parse reads an HTML document.
func Parse(r io.Reader) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(r)
}

// ParseString parses an HTML document held in memory.
func ParseString(html string) (*goquery.Document, error) {
	return Parse(strings.NewReader(html))
}

// FindAnchors returns the raw href of every anchor matching pattern, in
// document order.
func FindAnchors(doc *goquery.Document, pattern Pattern) []string {
	if doc == nil {
		return nil
	}

	hrefs := make([]string, 0)
	doc.Find(string(pattern)).Each(func(i int, s *goquery.Selection) {
		href, exists := s.Attr("href")
		if !exists {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}
		hrefs = append(hrefs, href)
	})
	return hrefs
}

// Anchors returns the hrefs matching every pattern, pattern by pattern.
func Anchors(doc *goquery.Document, patterns ...Pattern) []string {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}

	var hrefs []string
	for _, p := range patterns {
		hrefs = append(hrefs, FindAnchors(doc, p)...)
	}
	return hrefs
}

// PageInfo is the metadata recorded for a fetched page.
type PageInfo struct {
	Title       string            `json:"title,omitempty"`
	Description string            `json:"description,omitempty"`
	Canonical   string            `json:"canonical,omitempty"`
	Meta        map[string]string `json:"meta,omitempty"`
	Anchors     int               `json:"anchors"`
}

// Summarize extracts page metadata.
func Summarize(doc *goquery.Document) PageInfo {
	info := PageInfo{Meta: make(map[string]string)}
	if doc == nil {
		return info
	}

	info.Title = strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find("meta").Each(func(i int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		property, _ := s.Attr("property")
		content, _ := s.Attr("content")

		key := name
		if key == "" {
			key = property
		}
		if key != "" && content != "" {
			info.Meta[strings.ToLower(key)] = content
		}
	})
	info.Description = info.Meta["description"]

	if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok {
		info.Canonical = href
	}

	info.Anchors = doc.Find("a[href]").Length()
	return info
}
