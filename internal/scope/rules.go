package scope

import (
	"strings"
)

// DefaultBlacklist contains the keywords that drop a reference before
// resolution: operational endpoints and binary image assets.
var DefaultBlacklist = []string{
	"track",
	"guides",
	"detect",
	"banner",
	"click",
	".jpg",
	".jpeg",
	".png",
	".gif",
}

// Blacklist matches references by case-insensitive substring.
type Blacklist struct {
	keywords []string
}

// NewBlacklist creates a blacklist. Empty keywords are ignored.
func NewBlacklist(keywords []string) Blacklist {
	b := Blacklist{}
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		b.keywords = append(b.keywords, kw)
	}
	return b
}

// Match reports whether ref contains any keyword.
func (b Blacklist) Match(ref string) bool {
	lower := strings.ToLower(ref)
	for _, kw := range b.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Keywords returns a copy of the configured keywords.
func (b Blacklist) Keywords() []string {
	out := make([]string, len(b.keywords))
	copy(out, b.keywords)
	return out
}
