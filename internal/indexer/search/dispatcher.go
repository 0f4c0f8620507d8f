// Package search fans one query out across the configured indexers and
// aggregates their results.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Appsum/JackettCore/internal/indexer"
	"github.com/Appsum/JackettCore/internal/indexer/cache"
)

// indexerTimeout bounds how long one site may take before its part of the
// dispatch is abandoned.
const indexerTimeout = 30 * time.Second

// NoIndexers is the sentinel source string for a dispatch that had no
// configured indexer to query.
const NoIndexers = "None"

// Broadcaster pushes real-time events to connected clients.
type Broadcaster interface {
	Broadcast(msgType string, payload any) error
}

// Recorder persists completed searches.
type Recorder interface {
	Record(ctx context.Context, term string, categories []int, indexers []string, hits int) error
}

// Dispatcher orchestrates concurrent searches across the registry.
type Dispatcher struct {
	registry    *indexer.Registry
	cache       *cache.Cache
	broadcaster Broadcaster
	recorder    Recorder
	logger      zerolog.Logger
}

func NewDispatcher(registry *indexer.Registry, resultCache *cache.Cache, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		cache:    resultCache,
		logger:   logger.With().Str("component", "search").Logger(),
	}
}

// SetBroadcaster sets the WebSocket broadcaster for real-time events.
func (d *Dispatcher) SetBroadcaster(b Broadcaster) {
	d.broadcaster = b
}

// SetRecorder sets the search history recorder.
func (d *Dispatcher) SetRecorder(r Recorder) {
	d.recorder = r
}

// Response is the aggregated outcome of one dispatch.
type Response struct {
	Results []indexer.ReleaseResult `json:"results"`
	// Indexers names the sites that were queried, or "None".
	Indexers string         `json:"indexers"`
	Total    int            `json:"total"`
	Errors   []IndexerError `json:"errors,omitempty"`
}

// IndexerError reports one site's failure without failing the dispatch.
type IndexerError struct {
	IndexerID   string `json:"indexerId"`
	IndexerName string `json:"indexerName"`
	Error       string `json:"error"`
}

// taskResult is what one indexer's goroutine hands back.
type taskResult struct {
	indexerID   string
	indexerName string
	results     []indexer.ReleaseResult
	err         error
}

// Dispatch runs the query against every candidate indexer concurrently. One
// site failing, timing out, or returning garbage never affects the others;
// its error is reported alongside the merged results.
func (d *Dispatcher) Dispatch(ctx context.Context, query *indexer.Query) (*Response, error) {
	started := time.Now()
	query.ExpandCategories()

	candidates, err := d.candidates(query)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return &Response{Results: []indexer.ReleaseResult{}, Indexers: NoIndexers}, nil
	}

	names := make([]string, len(candidates))
	for i, ix := range candidates {
		names[i] = ix.DisplayName()
	}
	d.broadcastStarted(query, names)

	d.logger.Info().
		Int("indexerCount", len(candidates)).
		Str("query", query.Term).
		Ints("categories", query.Categories).
		Msg("Starting search across indexers")

	response := d.fanOut(ctx, candidates, query)
	response.Indexers = strings.Join(names, ", ")

	elapsed := time.Since(started)
	d.broadcastCompleted(query, response, elapsed)
	d.record(ctx, query, names, response.Total)

	d.logger.Info().
		Int("totalResults", response.Total).
		Int("errors", len(response.Errors)).
		Dur("elapsed", elapsed).
		Msg("Search completed")

	return response, nil
}

// candidates resolves which indexers this query targets. A query pinned to a
// specific indexer fails fast when that indexer is unknown or unconfigured;
// an open query simply skips unconfigured ones. Either way, an indexer whose
// category table maps none of the requested categories is not queried at
// all: it could only answer with results the filter would drop, and its
// unrelated browse set would clobber its cache entry.
func (d *Dispatcher) candidates(query *indexer.Query) ([]indexer.Indexer, error) {
	if query.Indexer != "" && query.Indexer != "all" {
		ix, err := d.registry.Get(query.Indexer)
		if err != nil {
			return nil, err
		}
		if !ix.IsConfigured() {
			return nil, fmt.Errorf("indexer %s is not configured", query.Indexer)
		}
		if !supportsAny(ix, query.Categories) {
			return nil, nil
		}
		return []indexer.Indexer{ix}, nil
	}

	configured := d.registry.Configured()
	out := make([]indexer.Indexer, 0, len(configured))
	for _, ix := range configured {
		if supportsAny(ix, query.Categories) {
			out = append(out, ix)
		}
	}
	return out, nil
}

// supportsAny reports whether the indexer serves at least one of the
// requested categories. An unfiltered query matches every indexer.
func supportsAny(ix indexer.Indexer, categories []int) bool {
	if len(categories) == 0 {
		return true
	}
	for _, c := range categories {
		if ix.Categories().Supports(c) {
			return true
		}
	}
	return false
}

// fanOut runs the per-indexer searches in parallel and aggregates.
func (d *Dispatcher) fanOut(ctx context.Context, candidates []indexer.Indexer, query *indexer.Query) *Response {
	var wg sync.WaitGroup
	resultsChan := make(chan taskResult, len(candidates))

	searchCtx, cancel := context.WithTimeout(ctx, indexerTimeout)
	defer cancel()

	for _, ix := range candidates {
		wg.Add(1)
		go func(ix indexer.Indexer) {
			defer wg.Done()
			resultsChan <- d.searchOne(searchCtx, ix, query)
		}(ix)
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	return d.aggregate(resultsChan)
}

// searchOne queries a single indexer and runs its results through the
// post-processing pipeline: clean links, cache the cleaned set, then filter
// to the query's categories and stamp the origin.
func (d *Dispatcher) searchOne(ctx context.Context, ix indexer.Indexer, query *indexer.Query) taskResult {
	task := taskResult{indexerID: ix.ID(), indexerName: ix.DisplayName()}

	start := time.Now()
	results, err := ix.PerformQuery(ctx, query)
	elapsed := time.Since(start)

	if err != nil {
		task.err = err
		d.logger.Error().
			Err(err).
			Str("indexer", ix.ID()).
			Dur("elapsed", elapsed).
			Msg("Search failed")
		return task
	}

	results = ix.CleanLinks(results)
	d.cache.Put(ix.ID(), ix.DisplayName(), results)

	results = ix.FilterResults(query, results)
	for i := range results {
		results[i].Tracker = ix.DisplayName()
		results[i].TrackerID = ix.ID()
	}

	task.results = results
	d.logger.Debug().
		Str("indexer", ix.ID()).
		Int("results", len(results)).
		Dur("elapsed", elapsed).
		Msg("Search completed for indexer")
	return task
}

// aggregate merges the per-indexer outcomes. Results are re-sorted by
// publish date only when more than one indexer contributed, so a single
// site's native ordering survives. Peer counts arrive from the sites
// inclusive of seeders and leave here as plain leecher counts.
func (d *Dispatcher) aggregate(results <-chan taskResult) *Response {
	merged := make([]indexer.ReleaseResult, 0)
	errs := make([]IndexerError, 0)
	contributed := 0

	for task := range results {
		if task.err != nil {
			errs = append(errs, IndexerError{
				IndexerID:   task.indexerID,
				IndexerName: task.indexerName,
				Error:       task.err.Error(),
			})
			continue
		}
		contributed++
		merged = append(merged, task.results...)
	}

	if contributed > 1 {
		sort.SliceStable(merged, func(i, j int) bool {
			return merged[i].PublishDate.After(merged[j].PublishDate)
		})
	}

	for i := range merged {
		merged[i].Peers -= merged[i].Seeders
		if merged[i].Peers < 0 {
			merged[i].Peers = 0
		}
	}

	return &Response{
		Results: merged,
		Total:   len(merged),
		Errors:  errs,
	}
}

func (d *Dispatcher) record(ctx context.Context, query *indexer.Query, names []string, hits int) {
	if d.recorder == nil {
		return
	}
	if err := d.recorder.Record(ctx, query.Term, query.Categories, names, hits); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to record search history")
	}
}

func (d *Dispatcher) broadcastStarted(query *indexer.Query, names []string) {
	if d.broadcaster == nil {
		return
	}
	d.broadcaster.Broadcast(EventSearchStarted, SearchStartedPayload{
		Query:      query.Term,
		Categories: query.Categories,
		Indexers:   names,
	})
}

func (d *Dispatcher) broadcastCompleted(query *indexer.Query, response *Response, elapsed time.Duration) {
	if d.broadcaster == nil {
		return
	}
	errs := make([]string, len(response.Errors))
	for i, e := range response.Errors {
		errs[i] = e.Error
	}
	d.broadcaster.Broadcast(EventSearchCompleted, SearchCompletedPayload{
		Query:        query.Term,
		TotalResults: response.Total,
		Indexers:     strings.Split(response.Indexers, ", "),
		Errors:       errs,
		ElapsedMs:    elapsed.Milliseconds(),
	})
}
