// Package indexer defines the contract every site scraper implements and the
// registry that owns configured scraper instances.
package indexer

import (
	"context"

	"github.com/Appsum/JackettCore/internal/indexer/schema"
)

// ConfigurationStatus is the explicit outcome of applying a configuration
// payload to an indexer.
type ConfigurationStatus int

const (
	// StatusFailed means the configuration could not be applied.
	StatusFailed ConfigurationStatus = iota
	// StatusRequiresTesting means the site accepted the configuration but the
	// indexer must complete one live browse query before it is trusted.
	StatusRequiresTesting
	// StatusConfigured means the indexer is ready without further testing.
	StatusConfigured
)

func (s ConfigurationStatus) String() string {
	switch s {
	case StatusRequiresTesting:
		return "requires-testing"
	case StatusConfigured:
		return "configured"
	default:
		return "failed"
	}
}

// Indexer is one upstream torrent site behind the uniform query contract.
type Indexer interface {
	// ID is the stable short identifier, used as lookup key and filename.
	ID() string
	DisplayName() string
	Description() string
	// SiteLink is the site's base URL, with trailing slash.
	SiteLink() string

	IsConfigured() bool
	Categories() *CategoryMap
	ConfigSchema() *schema.Schema

	// ApplyConfiguration loads the payload into the schema and performs the
	// site-specific login or handshake. A site-side rejection is reported as
	// a ConfigRejectedError carrying the editable schema state; any other
	// error is a system failure and the caller rolls the indexer back to its
	// last-known-good configuration.
	ApplyConfiguration(ctx context.Context, payload schema.Payload) (ConfigurationStatus, error)

	// LoadSavedConfiguration restores a persisted configuration payload
	// without contacting the site.
	LoadSavedConfiguration(payload schema.Payload) error

	// RollbackConfiguration restores the last-known-good configuration after
	// a failed apply.
	RollbackConfiguration()

	// PerformQuery translates the query into the site's native search, runs
	// it, and parses the response into normalized results. Rows whose native
	// category has no mapping are dropped. A parse failure covering the whole
	// response is reported as a BrokenError.
	PerformQuery(ctx context.Context, query *Query) ([]ReleaseResult, error)

	// CleanLinks post-processes result links. It is idempotent.
	CleanLinks(results []ReleaseResult) []ReleaseResult

	// FilterResults removes results outside the query's expanded category
	// set. Deterministic for identical input.
	FilterResults(query *Query, results []ReleaseResult) []ReleaseResult
}
