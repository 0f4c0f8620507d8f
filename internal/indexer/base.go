package indexer

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/Appsum/JackettCore/internal/indexer/schema"
	"github.com/Appsum/JackettCore/internal/protect"
	"github.com/Appsum/JackettCore/internal/webclient"
)

// BaseConfig carries the shared dependencies and identity of an indexer.
type BaseConfig struct {
	ID          string
	Name        string
	Description string
	SiteLink    string
	Schema      *schema.Schema
	Client      webclient.Client
	Protector   protect.Protector
	Logger      zerolog.Logger
}

// BaseIndexer implements the parts of the Indexer contract that are common to
// every site scraper: identity, schema handling, category mapping, the
// configured-state machine with last-known-good rollback, and the default
// clean/filter passes. Concrete indexers embed it and add ApplyConfiguration
// and PerformQuery.
type BaseIndexer struct {
	id          string
	name        string
	description string
	siteLink    string

	schema    *schema.Schema
	cats      *CategoryMap
	client    webclient.Client
	protector protect.Protector
	logger    zerolog.Logger

	lastGood *schema.Schema
}

// NewBase creates the embedded base for a concrete indexer.
func NewBase(cfg BaseConfig) *BaseIndexer {
	return &BaseIndexer{
		id:          cfg.ID,
		name:        cfg.Name,
		description: cfg.Description,
		siteLink:    cfg.SiteLink,
		schema:      cfg.Schema,
		cats:        NewCategoryMap(),
		client:      cfg.Client,
		protector:   cfg.Protector,
		logger:      cfg.Logger.With().Str("indexer", cfg.ID).Logger(),
	}
}

func (b *BaseIndexer) ID() string                   { return b.id }
func (b *BaseIndexer) DisplayName() string          { return b.name }
func (b *BaseIndexer) Description() string          { return b.description }
func (b *BaseIndexer) SiteLink() string             { return b.siteLink }
func (b *BaseIndexer) Categories() *CategoryMap     { return b.cats }
func (b *BaseIndexer) ConfigSchema() *schema.Schema { return b.schema }
func (b *BaseIndexer) Client() webclient.Client     { return b.client }
func (b *BaseIndexer) Logger() zerolog.Logger       { return b.logger }

// IsConfigured reports whether the indexer has a trusted configuration.
func (b *BaseIndexer) IsConfigured() bool {
	return b.lastGood != nil
}

// AddCategoryMapping maps a native site category onto one or more universal
// categories. Called from concrete indexer constructors.
func (b *BaseIndexer) AddCategoryMapping(native int, universal ...int) {
	for _, u := range universal {
		b.cats.Add(native, u)
	}
}

// LoadPayload applies a payload onto the schema through the protector.
func (b *BaseIndexer) LoadPayload(payload schema.Payload) error {
	return b.schema.Load(payload, b.protector)
}

// LoadSavedConfiguration restores a persisted payload and marks the
// configuration trusted; it was tested before it was saved.
func (b *BaseIndexer) LoadSavedConfiguration(payload schema.Payload) error {
	if err := b.schema.Load(payload, b.protector); err != nil {
		return err
	}
	b.markConfigured()
	return nil
}

// ConfigureIfOK finishes a login handshake: when the site signalled success
// the session cookies are stored and the configuration becomes the new
// last-known-good; otherwise reject is invoked to build the site-specific
// rejection error.
func (b *BaseIndexer) ConfigureIfOK(cookies string, ok bool, reject func() error) error {
	if !ok {
		return reject()
	}
	if cookies != "" {
		b.schema.CookieHeader().Value = cookies
	}
	b.markConfigured()
	return nil
}

// RollbackConfiguration restores the last-known-good configuration after an
// unexpected apply failure. An indexer that was never configured stays
// unconfigured.
func (b *BaseIndexer) RollbackConfiguration() {
	if b.lastGood != nil {
		b.schema.Restore(b.lastGood)
	}
}

func (b *BaseIndexer) markConfigured() {
	b.lastGood = b.schema.Clone()
}

// CookieHeader returns the persisted session cookie header.
func (b *BaseIndexer) CookieHeader() string {
	return b.schema.CookieHeader().Value
}

// Rejected builds the rejection error carrying the editable schema state.
func (b *BaseIndexer) Rejected(message string) error {
	return NewConfigRejected(b.schema, message)
}

// ParseError wraps a whole-response parse failure, logging the context.
func (b *BaseIndexer) ParseError(content string, cause error) error {
	err := NewBrokenError(b.id, content, cause)
	b.logger.Error().
		Err(cause).
		Str("excerpt", err.Excerpt).
		Msg("failed to parse site response")
	return err
}

// CleanLinks trims stray whitespace from result links. Concrete indexers
// override this to strip site-specific tracking parameters; every
// implementation must stay idempotent.
func (b *BaseIndexer) CleanLinks(results []ReleaseResult) []ReleaseResult {
	for i := range results {
		results[i].Link = strings.TrimSpace(results[i].Link)
		results[i].Comments = strings.TrimSpace(results[i].Comments)
	}
	return results
}

// FilterResults drops results whose category falls outside the query's
// expanded category set, when one was requested.
func (b *BaseIndexer) FilterResults(query *Query, results []ReleaseResult) []ReleaseResult {
	if query == nil || len(query.Categories) == 0 {
		return results
	}

	want := make(map[int]bool, len(query.Categories))
	for _, c := range query.Categories {
		want[c] = true
	}

	filtered := make([]ReleaseResult, 0, len(results))
	for _, r := range results {
		if want[r.Category] {
			filtered = append(filtered, r)
		}
	}
	return filtered
}
