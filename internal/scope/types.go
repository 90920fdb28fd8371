package scope

// LinkClass tags a discovered reference.
type LinkClass int

const (
	// Rejected references normalize to nothing and are neither enqueued nor counted.
	Rejected LinkClass = iota
	// SameSiteRelative is a site-relative reference such as "/a".
	SameSiteRelative
	// SameSiteAbsolute is a fully qualified reference to the crawled site.
	SameSiteAbsolute
	// OffSite is an absolute reference to another host.
	OffSite
	// Blacklisted references matched a blacklist keyword.
	Blacklisted
)

// String returns the string representation of LinkClass.
func (c LinkClass) String() string {
	switch c {
	case SameSiteRelative:
		return "same_site_relative"
	case SameSiteAbsolute:
		return "same_site_absolute"
	case OffSite:
		return "off_site"
	case Blacklisted:
		return "blacklisted"
	default:
		return "rejected"
	}
}

// Enqueueable reports whether links of this class are frontier candidates.
func (c LinkClass) Enqueueable() bool {
	return c == SameSiteRelative || c == SameSiteAbsolute
}

// IsAbsolute reports whether the class counts toward the absolute-link tally.
func (c LinkClass) IsAbsolute() bool {
	return c == SameSiteAbsolute || c == OffSite
}

// Link is the classifier's output for one reference.
type Link struct {
	URL   string
	Class LinkClass
}

// Counts tallies classified links.
type Counts struct {
	Relative    int `json:"relative"`
	Absolute    int `json:"absolute"`
	Blacklisted int `json:"blacklisted"`
}

// Add records one link in the tally.
func (c *Counts) Add(class LinkClass) {
	switch {
	case class == SameSiteRelative:
		c.Relative++
	case class.IsAbsolute():
		c.Absolute++
	case class == Blacklisted:
		c.Blacklisted++
	}
}
