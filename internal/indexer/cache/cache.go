// Package cache retains the most recent result set per indexer and rewrites
// result links into self-hosted proxy links at read time.
package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Appsum/JackettCore/internal/indexer"
)

// Cache holds one entry per indexer. Writes replace the entry wholesale so
// readers never observe a partially updated set.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	signer  *LinkSigner
}

type entry struct {
	tracker string
	results []indexer.ReleaseResult
	created time.Time
}

// New creates an empty cache. Rewritten links are signed with the given
// signer so the download proxy only serves links this instance produced.
func New(signer *LinkSigner) *Cache {
	return &Cache{
		entries: make(map[string]entry),
		signer:  signer,
	}
}

// Put replaces the cached result set for an indexer. The results are copied
// and annotated with the indexer's identity; later link rewriting never
// mutates the stored entry.
func (c *Cache) Put(indexerID, displayName string, results []indexer.ReleaseResult) {
	stored := make([]indexer.ReleaseResult, len(results))
	copy(stored, results)
	for i := range stored {
		stored[i].Tracker = displayName
		stored[i].TrackerID = indexerID
	}

	c.mu.Lock()
	c.entries[indexerID] = entry{
		tracker: displayName,
		results: stored,
		created: time.Now(),
	}
	c.mu.Unlock()
}

// GetAll returns every indexer's most recent cached results flattened,
// newest entries first.
func (c *Cache) GetAll() []indexer.ReleaseResult {
	c.mu.RLock()
	entries := make([]entry, 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, e)
	}
	c.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].created.After(entries[j].created)
	})

	var out []indexer.ReleaseResult
	for _, e := range entries {
		out = append(out, e.results...)
	}
	return out
}

// Len returns the number of indexers with a cached entry.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Has reports whether an indexer has a cached entry.
func (c *Cache) Has(indexerID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[indexerID]
	return ok
}

// RewriteLinks replaces each result's download link with a proxy link under
// baseURL, and synthesizes a blackhole link when a blackhole directory is
// configured and the original link is not a magnet URI. The input results are
// not modified, so the same cached entry can be rewritten under different
// base URLs.
func (c *Cache) RewriteLinks(results []indexer.ReleaseResult, baseURL, blackholeDir string) []indexer.ReleaseResult {
	base := strings.TrimRight(baseURL, "/")

	out := make([]indexer.ReleaseResult, len(results))
	copy(out, results)

	for i := range out {
		r := &out[i]
		if r.Link == "" {
			continue
		}
		origin := r.Link
		magnet := r.IsMagnet()

		filename := sanitizeFilename(r.Title) + ".torrent"

		if token, err := c.signer.Sign(r.TrackerID, ActionDownload, origin, filename); err == nil {
			r.Link = fmt.Sprintf("%s/dl/%s/%s/%s", base, r.TrackerID, token, url.PathEscape(filename))
		}

		if blackholeDir != "" && !magnet {
			if token, err := c.signer.Sign(r.TrackerID, ActionBlackhole, origin, filename); err == nil {
				r.BlackholeLink = fmt.Sprintf("%s/bh/%s/%s/%s", base, r.TrackerID, token, url.PathEscape(filename))
			}
		}
	}

	return out
}

// sanitizeFilename strips path separators from a title used as a filename.
func sanitizeFilename(title string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_")
	name := replacer.Replace(strings.TrimSpace(title))
	if name == "" {
		name = "download"
	}
	return name
}
