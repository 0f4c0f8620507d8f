package indexer

import (
	"strings"
	"time"
)

// Query is one logical search request. It is immutable for the duration of a
// dispatch: expansion happens before the fan-out starts.
type Query struct {
	Term       string `json:"query,omitempty"`
	Categories []int  `json:"categories,omitempty"`
	// Indexer restricts the dispatch to a single indexer ID when non-empty.
	Indexer string `json:"indexer,omitempty"`
}

// Keywords returns the free-text search term in site-friendly form.
func (q *Query) Keywords() string {
	return strings.TrimSpace(q.Term)
}

// ExpandCategories widens the requested category set so that asking for a
// parent category also matches results mapped to any of its subcategories.
func (q *Query) ExpandCategories() {
	q.Categories = ExpandCategories(q.Categories)
}

// ReleaseResult is one normalized search hit. After an indexer returns it,
// only the cache's link rewriting touches it, and that operates on copies.
type ReleaseResult struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	GUID        string    `json:"guid,omitempty"`
	PublishDate time.Time `json:"publishDate"`
	Size        int64     `json:"size"`
	Seeders     int       `json:"seeders"`
	// Peers is reported by origin sites inclusive of seeders; the dispatcher
	// re-exposes it as the leecher count before results leave the system.
	Peers int `json:"peers"`
	// Category is the resolved universal category ID.
	Category int `json:"category"`

	Comments      string `json:"comments,omitempty"`
	Link          string `json:"link"`
	BlackholeLink string `json:"blackholeLink,omitempty"`

	MinimumRatio    float64 `json:"minimumRatio,omitempty"`
	MinimumSeedTime int64   `json:"minimumSeedTime,omitempty"` // seconds

	// Originating indexer, set by the dispatcher and the cache.
	Tracker   string `json:"tracker,omitempty"`
	TrackerID string `json:"trackerId,omitempty"`
}

// IsMagnet reports whether the download link is a magnet URI.
func (r *ReleaseResult) IsMagnet() bool {
	return strings.HasPrefix(strings.ToLower(r.Link), "magnet:")
}
