// Package news provides market-news aggregation for notification digests.
package news

import "time"

// Article is one market-news item. Articles are transient values: they have
// no persisted identity beyond the run that collected them.
//
// For deduplication purposes two articles are the same when either their
// URLs or their headlines match.
type Article struct {
	URL         string    `json:"url"`
	Headline    string    `json:"headline"`
	Summary     string    `json:"summary"`
	Publisher   string    `json:"publisher,omitempty"`
	PublishedAt time.Time `json:"publishedAt"`

	// Symbol records which ticker's round-robin round selected this
	// article. Empty for general-market articles.
	Symbol string `json:"symbol,omitempty"`
}

// complete reports whether the article carries the minimum fields a digest
// entry needs.
func (a Article) complete() bool {
	return a.Headline != "" && a.Summary != "" && a.URL != ""
}

// matches reports dedup identity: same URL or same headline.
func (a Article) matches(other Article) bool {
	return a.URL == other.URL || a.Headline == other.Headline
}

// Digest is the bounded, deduplicated, recency-ranked article set produced
// per notification. At most MaxDigestArticles entries, sorted by
// PublishedAt descending.
type Digest []Article

// MaxDigestArticles bounds the digest size.
const MaxDigestArticles = 6

// Headlines returns the digest's headlines in order.
func (d Digest) Headlines() []string {
	out := make([]string, len(d))
	for i, a := range d {
		out[i] = a.Headline
	}
	return out
}
