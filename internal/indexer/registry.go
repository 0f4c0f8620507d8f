package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Appsum/JackettCore/internal/indexer/schema"
	"github.com/Appsum/JackettCore/internal/protect"
)

// Factory constructs a fresh, unconfigured instance of every known indexer.
type Factory func() ([]Indexer, error)

// ResultStore receives the results of a successful browse test, so a test
// run primes the cache the same way a live search does.
type ResultStore interface {
	Put(indexerID, displayName string, results []ReleaseResult)
}

// Registry owns the indexer instances and their persisted configurations.
// Each indexer's configuration is one JSON file named <id>.json in the
// registry's config directory.
type Registry struct {
	configDir string
	factory   Factory
	protector protect.Protector
	results   ResultStore
	logger    zerolog.Logger

	mu          sync.RWMutex
	indexers    map[string]*managedIndexer
	initialized bool
}

// managedIndexer serializes configure/test/delete per indexer so a slow
// login on one site never blocks operations on another.
type managedIndexer struct {
	mu sync.Mutex
	ix Indexer
}

func NewRegistry(configDir string, factory Factory, protector protect.Protector, logger zerolog.Logger) *Registry {
	return &Registry{
		configDir: configDir,
		factory:   factory,
		protector: protector,
		logger:    logger.With().Str("component", "registry").Logger(),
	}
}

// SetResultStore sets the cache that browse-test results are stored into.
func (r *Registry) SetResultStore(store ResultStore) {
	r.results = store
}

// Init constructs every known indexer and loads any persisted configuration.
// A corrupt or unreadable config file leaves that one indexer unconfigured
// and never fails the whole startup. Init may only be called once.
func (r *Registry) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		return errors.New("registry already initialized")
	}

	if err := os.MkdirAll(r.configDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	list, err := r.factory()
	if err != nil {
		return err
	}

	r.indexers = make(map[string]*managedIndexer, len(list))
	for _, ix := range list {
		r.indexers[ix.ID()] = &managedIndexer{ix: ix}
		r.loadSaved(ix)
	}

	r.initialized = true
	r.logger.Info().Int("indexers", len(r.indexers)).Msg("indexer registry initialized")
	return nil
}

func (r *Registry) loadSaved(ix Indexer) {
	data, err := os.ReadFile(r.configPath(ix.ID()))
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		r.logger.Warn().Err(err).Str("indexer", ix.ID()).Msg("could not read saved configuration")
		return
	}

	var payload schema.Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		r.logger.Warn().Err(err).Str("indexer", ix.ID()).Msg("saved configuration is corrupt, starting unconfigured")
		return
	}
	if err := ix.LoadSavedConfiguration(payload); err != nil {
		r.logger.Warn().Err(err).Str("indexer", ix.ID()).Msg("saved configuration could not be applied")
	}
}

func (r *Registry) configPath(id string) string {
	return filepath.Join(r.configDir, id+".json")
}

func (r *Registry) managed(id string) (*managedIndexer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.indexers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIndexer, id)
	}
	return m, nil
}

// Get returns the indexer with the given ID.
func (r *Registry) Get(id string) (Indexer, error) {
	m, err := r.managed(id)
	if err != nil {
		return nil, err
	}
	return m.ix, nil
}

// List returns every indexer ordered by display name.
func (r *Registry) List() []Indexer {
	r.mu.RLock()
	out := make([]Indexer, 0, len(r.indexers))
	for _, m := range r.indexers {
		out = append(out, m.ix)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].DisplayName() < out[j].DisplayName()
	})
	return out
}

// Configured returns the configured indexers, ordered by display name.
func (r *Registry) Configured() []Indexer {
	all := r.List()
	out := make([]Indexer, 0, len(all))
	for _, ix := range all {
		if ix.IsConfigured() {
			out = append(out, ix)
		}
	}
	return out
}

// Configure applies a user-submitted payload to an indexer and persists it
// once it is proven good. A site-side rejection is returned as-is so the
// caller can re-render the form; any other failure rolls the indexer back to
// its last-known-good configuration.
func (r *Registry) Configure(ctx context.Context, id string, payload schema.Payload) error {
	m, err := r.managed(id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	status, err := m.ix.ApplyConfiguration(ctx, payload)
	if err != nil {
		if _, rejected := IsConfigRejected(err); !rejected {
			m.ix.RollbackConfiguration()
		}
		return err
	}

	switch status {
	case StatusConfigured:
		// Ready as-is.
	case StatusRequiresTesting:
		if err := r.browseTest(ctx, m.ix); err != nil {
			m.ix.RollbackConfiguration()
			return err
		}
	default:
		m.ix.RollbackConfiguration()
		return fmt.Errorf("indexer %s reported status %s without an error", id, status)
	}

	return r.persist(m.ix)
}

// Test runs a plain browse query against a configured indexer and verifies
// it can produce at least one result.
func (r *Registry) Test(ctx context.Context, id string) error {
	m, err := r.managed(id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return r.browseTest(ctx, m.ix)
}

func (r *Registry) browseTest(ctx context.Context, ix Indexer) error {
	results, err := ix.PerformQuery(ctx, &Query{})
	if err != nil {
		return err
	}
	results = ix.CleanLinks(results)
	if len(results) == 0 {
		return ErrNoResults
	}
	if r.results != nil {
		r.results.Put(ix.ID(), ix.DisplayName(), results)
	}
	return nil
}

// persist writes the indexer's configuration, secrets encrypted, to its
// config file. The write goes through a temp file so a crash never leaves a
// half-written config behind.
func (r *Registry) persist(ix Indexer) error {
	payload, err := ix.ConfigSchema().Payload(r.protector, false)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}

	path := r.configPath(ix.ID())
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// SetupPayload returns the indexer's configuration in display form: secrets
// masked, internal fields omitted.
func (r *Registry) SetupPayload(id string) (schema.Payload, error) {
	m, err := r.managed(id)
	if err != nil {
		return nil, err
	}
	return m.ix.ConfigSchema().Payload(nil, true)
}

// Delete removes an indexer's persisted configuration and replaces the live
// instance with a fresh unconfigured one.
func (r *Registry) Delete(id string) error {
	m, err := r.managed(id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.Remove(r.configPath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove config: %w", err)
	}

	list, err := r.factory()
	if err != nil {
		return err
	}
	for _, fresh := range list {
		if fresh.ID() == id {
			m.ix = fresh
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownIndexer, id)
}
