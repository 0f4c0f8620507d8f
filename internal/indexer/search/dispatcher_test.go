package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Appsum/JackettCore/internal/indexer"
	"github.com/Appsum/JackettCore/internal/indexer/cache"
	"github.com/Appsum/JackettCore/internal/indexer/schema"
)

// stubIndexer is a canned site for dispatcher tests.
type stubIndexer struct {
	id         string
	name       string
	configured bool
	results    []indexer.ReleaseResult
	err        error

	cfg  *schema.Schema
	cats *indexer.CategoryMap

	queried int
}

func newStub(id, name string, results []indexer.ReleaseResult, err error) *stubIndexer {
	return &stubIndexer{
		id:         id,
		name:       name,
		configured: true,
		results:    results,
		err:        err,
		cfg:        schema.MustNew(),
		cats:       indexer.NewCategoryMap(),
	}
}

func (s *stubIndexer) ID() string                       { return s.id }
func (s *stubIndexer) DisplayName() string              { return s.name }
func (s *stubIndexer) Description() string              { return "" }
func (s *stubIndexer) SiteLink() string                 { return "https://" + s.id + ".example/" }
func (s *stubIndexer) IsConfigured() bool               { return s.configured }
func (s *stubIndexer) Categories() *indexer.CategoryMap { return s.cats }
func (s *stubIndexer) ConfigSchema() *schema.Schema     { return s.cfg }

func (s *stubIndexer) ApplyConfiguration(ctx context.Context, payload schema.Payload) (indexer.ConfigurationStatus, error) {
	return indexer.StatusConfigured, nil
}
func (s *stubIndexer) LoadSavedConfiguration(payload schema.Payload) error { return nil }
func (s *stubIndexer) RollbackConfiguration()                              {}

func (s *stubIndexer) PerformQuery(ctx context.Context, query *indexer.Query) ([]indexer.ReleaseResult, error) {
	s.queried++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]indexer.ReleaseResult, len(s.results))
	copy(out, s.results)
	return out, nil
}

func (s *stubIndexer) CleanLinks(results []indexer.ReleaseResult) []indexer.ReleaseResult {
	return results
}

func (s *stubIndexer) FilterResults(query *indexer.Query, results []indexer.ReleaseResult) []indexer.ReleaseResult {
	if query == nil || len(query.Categories) == 0 {
		return results
	}
	want := make(map[int]bool, len(query.Categories))
	for _, c := range query.Categories {
		want[c] = true
	}
	out := make([]indexer.ReleaseResult, 0, len(results))
	for _, r := range results {
		if want[r.Category] {
			out = append(out, r)
		}
	}
	return out
}

func newTestDispatcher(t *testing.T, stubs ...*stubIndexer) (*Dispatcher, *cache.Cache) {
	t.Helper()

	factory := func() ([]indexer.Indexer, error) {
		out := make([]indexer.Indexer, len(stubs))
		for i, s := range stubs {
			out[i] = s
		}
		return out, nil
	}
	registry := indexer.NewRegistry(t.TempDir(), factory, nil, zerolog.Nop())
	if err := registry.Init(); err != nil {
		t.Fatalf("registry init failed: %v", err)
	}

	resultCache := cache.New(cache.NewLinkSigner([]byte("test-signing-key-test-signing-key")))
	return NewDispatcher(registry, resultCache, zerolog.Nop()), resultCache
}

func at(hoursAgo int) time.Time {
	return time.Now().Add(-time.Duration(hoursAgo) * time.Hour).Truncate(time.Second)
}

func TestDispatchNoConfiguredIndexers(t *testing.T) {
	unconfigured := newStub("alpha", "Alpha", nil, nil)
	unconfigured.configured = false
	d, _ := newTestDispatcher(t, unconfigured)

	resp, err := d.Dispatch(context.Background(), &indexer.Query{Term: "anything"})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if resp.Indexers != NoIndexers {
		t.Errorf("Indexers = %q, want %q", resp.Indexers, NoIndexers)
	}
	if len(resp.Results) != 0 {
		t.Errorf("got %d results, want 0", len(resp.Results))
	}
}

func TestDispatchIsolatesFailures(t *testing.T) {
	good := newStub("good", "Good", []indexer.ReleaseResult{
		{Title: "hit-1", PublishDate: at(1)},
		{Title: "hit-2", PublishDate: at(2)},
	}, nil)
	bad := newStub("bad", "Bad", nil, errors.New("connection refused"))
	d, _ := newTestDispatcher(t, good, bad)

	resp, err := d.Dispatch(context.Background(), &indexer.Query{Term: "x"})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if len(resp.Results) != 2 {
		t.Fatalf("got %d results, want 2 from the healthy indexer", len(resp.Results))
	}
	if len(resp.Errors) != 1 {
		t.Fatalf("got %d errors, want 1", len(resp.Errors))
	}
	if resp.Errors[0].IndexerID != "bad" {
		t.Errorf("error attributed to %q, want bad", resp.Errors[0].IndexerID)
	}
	// Both sites were queried even though one failed.
	if resp.Indexers != "Bad, Good" && resp.Indexers != "Good, Bad" {
		t.Errorf("Indexers = %q, want both names", resp.Indexers)
	}
}

func TestDispatchSingleContributorKeepsNativeOrder(t *testing.T) {
	// Results deliberately not in date order; a lone site's own ranking
	// must survive aggregation.
	only := newStub("only", "Only", []indexer.ReleaseResult{
		{Title: "older-but-first", PublishDate: at(10)},
		{Title: "newer-but-second", PublishDate: at(1)},
	}, nil)
	failing := newStub("failing", "Failing", nil, errors.New("boom"))
	d, _ := newTestDispatcher(t, only, failing)

	resp, err := d.Dispatch(context.Background(), &indexer.Query{})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if resp.Results[0].Title != "older-but-first" {
		t.Errorf("first result = %q, native order was not preserved", resp.Results[0].Title)
	}
}

func TestDispatchMergesByDateAcrossIndexers(t *testing.T) {
	alpha := newStub("alpha", "Alpha", []indexer.ReleaseResult{
		{Title: "alpha-old", PublishDate: at(10)},
		{Title: "alpha-new", PublishDate: at(1)},
	}, nil)
	beta := newStub("beta", "Beta", []indexer.ReleaseResult{
		{Title: "beta-mid", PublishDate: at(5)},
	}, nil)
	d, _ := newTestDispatcher(t, alpha, beta)

	resp, err := d.Dispatch(context.Background(), &indexer.Query{})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	want := []string{"alpha-new", "beta-mid", "alpha-old"}
	if len(resp.Results) != len(want) {
		t.Fatalf("got %d results, want %d", len(resp.Results), len(want))
	}
	for i, title := range want {
		if resp.Results[i].Title != title {
			t.Errorf("result[%d] = %q, want %q", i, resp.Results[i].Title, title)
		}
	}
}

func TestDispatchReportsLeechersAsPeers(t *testing.T) {
	stub := newStub("alpha", "Alpha", []indexer.ReleaseResult{
		{Title: "normal", Seeders: 5, Peers: 8, PublishDate: at(1)},
		{Title: "inconsistent", Seeders: 5, Peers: 2, PublishDate: at(2)},
	}, nil)
	d, resultCache := newTestDispatcher(t, stub)

	resp, err := d.Dispatch(context.Background(), &indexer.Query{})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if resp.Results[0].Peers != 3 {
		t.Errorf("Peers = %d, want 3 leechers", resp.Results[0].Peers)
	}
	// A site reporting fewer peers than seeders clamps to zero.
	if resp.Results[1].Peers != 0 {
		t.Errorf("Peers = %d, want 0", resp.Results[1].Peers)
	}

	// The cache keeps the site's inclusive counts.
	cached := resultCache.GetAll()
	if cached[0].Peers != 8 {
		t.Errorf("cached Peers = %d, want the inclusive 8", cached[0].Peers)
	}
}

func TestDispatchAnnotatesOriginAndCaches(t *testing.T) {
	stub := newStub("alpha", "Alpha Tracker", []indexer.ReleaseResult{
		{Title: "hit", PublishDate: at(1)},
	}, nil)
	d, resultCache := newTestDispatcher(t, stub)

	resp, err := d.Dispatch(context.Background(), &indexer.Query{})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if resp.Results[0].Tracker != "Alpha Tracker" || resp.Results[0].TrackerID != "alpha" {
		t.Errorf("origin = %q/%q", resp.Results[0].Tracker, resp.Results[0].TrackerID)
	}
	if !resultCache.Has("alpha") {
		t.Error("dispatch did not populate the result cache")
	}
}

func TestDispatchPinnedIndexer(t *testing.T) {
	alpha := newStub("alpha", "Alpha", []indexer.ReleaseResult{{Title: "from-alpha", PublishDate: at(1)}}, nil)
	beta := newStub("beta", "Beta", []indexer.ReleaseResult{{Title: "from-beta", PublishDate: at(1)}}, nil)
	d, _ := newTestDispatcher(t, alpha, beta)

	resp, err := d.Dispatch(context.Background(), &indexer.Query{Indexer: "beta"})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if resp.Indexers != "Beta" {
		t.Errorf("Indexers = %q, want Beta only", resp.Indexers)
	}
	if len(resp.Results) != 1 || resp.Results[0].Title != "from-beta" {
		t.Errorf("results = %v, want the pinned indexer's hit", resp.Results)
	}

	if _, err := d.Dispatch(context.Background(), &indexer.Query{Indexer: "nope"}); err == nil {
		t.Error("expected an error for an unknown pinned indexer")
	}

	beta.configured = false
	if _, err := d.Dispatch(context.Background(), &indexer.Query{Indexer: "beta"}); err == nil {
		t.Error("expected an error for an unconfigured pinned indexer")
	}
}

func TestDispatchFiltersByCategory(t *testing.T) {
	stub := newStub("alpha", "Alpha", []indexer.ReleaseResult{
		{Title: "movie", Category: indexer.CategoryMoviesHD, PublishDate: at(1)},
		{Title: "show", Category: indexer.CategoryTVHD, PublishDate: at(2)},
	}, nil)
	stub.cats.Add(1, indexer.CategoryMoviesHD)
	stub.cats.Add(2, indexer.CategoryTVHD)
	d, _ := newTestDispatcher(t, stub)

	// Asking for the Movies parent matches the HD subcategory.
	resp, err := d.Dispatch(context.Background(), &indexer.Query{Categories: []int{indexer.CategoryMovies}})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Title != "movie" {
		t.Errorf("results = %v, want only the movie", resp.Results)
	}
}

func TestDispatchSkipsIndexersWithoutCategory(t *testing.T) {
	movies := newStub("movies", "Movies Site", []indexer.ReleaseResult{
		{Title: "movie", Category: indexer.CategoryMoviesHD, PublishDate: at(1)},
	}, nil)
	movies.cats.Add(1, indexer.CategoryMoviesHD)
	tvOnly := newStub("tv", "TV Site", []indexer.ReleaseResult{
		{Title: "show", Category: indexer.CategoryTVHD, PublishDate: at(2)},
	}, nil)
	tvOnly.cats.Add(2, indexer.CategoryTVHD)
	d, _ := newTestDispatcher(t, movies, tvOnly)

	resp, err := d.Dispatch(context.Background(), &indexer.Query{Categories: []int{indexer.CategoryMovies}})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if tvOnly.queried != 0 {
		t.Errorf("TV-only site was queried %d times for a movie search", tvOnly.queried)
	}
	if movies.queried != 1 {
		t.Errorf("movie site was queried %d times, want 1", movies.queried)
	}
	if resp.Indexers != "Movies Site" {
		t.Errorf("Indexers = %q, want only the movie site", resp.Indexers)
	}
	if len(resp.Results) != 1 || resp.Results[0].Title != "movie" {
		t.Errorf("results = %v, want only the movie", resp.Results)
	}
}

func TestDispatchPinnedIndexerWithoutCategory(t *testing.T) {
	tvOnly := newStub("tv", "TV Site", []indexer.ReleaseResult{
		{Title: "show", Category: indexer.CategoryTVHD, PublishDate: at(1)},
	}, nil)
	tvOnly.cats.Add(2, indexer.CategoryTVHD)
	d, _ := newTestDispatcher(t, tvOnly)

	resp, err := d.Dispatch(context.Background(), &indexer.Query{
		Indexer:    "tv",
		Categories: []int{indexer.CategoryMovies},
	})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if resp.Indexers != NoIndexers {
		t.Errorf("Indexers = %q, want %q", resp.Indexers, NoIndexers)
	}
	if tvOnly.queried != 0 {
		t.Errorf("pinned site was queried %d times despite not serving movies", tvOnly.queried)
	}
}

// collectingBroadcaster records broadcast events for assertions.
type collectingBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (b *collectingBroadcaster) Broadcast(msgType string, payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, msgType)
	return nil
}

type collectingRecorder struct {
	mu   sync.Mutex
	term string
	hits int
	Hit  bool
}

func (r *collectingRecorder) Record(ctx context.Context, term string, categories []int, indexers []string, hits int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.term = term
	r.hits = hits
	r.Hit = true
	return nil
}

func TestDispatchNotifiesAndRecords(t *testing.T) {
	stub := newStub("alpha", "Alpha", []indexer.ReleaseResult{{Title: "hit", PublishDate: at(1)}}, nil)
	d, _ := newTestDispatcher(t, stub)

	broadcaster := &collectingBroadcaster{}
	recorder := &collectingRecorder{}
	d.SetBroadcaster(broadcaster)
	d.SetRecorder(recorder)

	if _, err := d.Dispatch(context.Background(), &indexer.Query{Term: "ubuntu"}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	broadcaster.mu.Lock()
	events := append([]string(nil), broadcaster.events...)
	broadcaster.mu.Unlock()
	if len(events) != 2 || events[0] != EventSearchStarted || events[1] != EventSearchCompleted {
		t.Errorf("events = %v, want started then completed", events)
	}

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if !recorder.Hit {
		t.Fatal("search was not recorded")
	}
	if recorder.term != "ubuntu" || recorder.hits != 1 {
		t.Errorf("recorded %q/%d, want ubuntu/1", recorder.term, recorder.hits)
	}
}
