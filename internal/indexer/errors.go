package indexer

import (
	"errors"
	"fmt"

	"github.com/Appsum/JackettCore/internal/indexer/schema"
)

var (
	// ErrUnknownIndexer is returned for lookups with an unrecognized ID.
	ErrUnknownIndexer = errors.New("unknown indexer")

	// ErrNoResults is returned when a test/browse query succeeds but yields
	// nothing. A configured indexer that cannot return anything from a plain
	// browse is considered broken, but distinctly from a parse failure.
	ErrNoResults = errors.New("found no results while trying to browse this tracker")
)

// ConfigRejectedError means the site rejected the submitted credentials or
// settings. It carries the in-progress schema payload so the caller can
// re-render the setup form with the user's partial entries preserved.
type ConfigRejectedError struct {
	Message string
	Payload schema.Payload
}

func (e *ConfigRejectedError) Error() string {
	if e.Message == "" {
		return "configuration rejected by the site"
	}
	return e.Message
}

// NewConfigRejected builds a ConfigRejectedError snapshotting the schema's
// display payload.
func NewConfigRejected(s *schema.Schema, message string) *ConfigRejectedError {
	payload, _ := s.Payload(nil, true)
	return &ConfigRejectedError{Message: message, Payload: payload}
}

// BrokenError means an indexer's response could not be parsed at all. The
// excerpt keeps enough of the raw response around for diagnosis.
type BrokenError struct {
	IndexerID string
	Excerpt   string
	Cause     error
}

func (e *BrokenError) Error() string {
	return fmt.Sprintf("indexer %s returned an unparseable response: %v", e.IndexerID, e.Cause)
}

func (e *BrokenError) Unwrap() error {
	return e.Cause
}

// responseExcerptLen bounds how much raw content a BrokenError retains.
const responseExcerptLen = 512

// NewBrokenError builds a BrokenError with a bounded response excerpt.
func NewBrokenError(indexerID, content string, cause error) *BrokenError {
	if len(content) > responseExcerptLen {
		content = content[:responseExcerptLen]
	}
	return &BrokenError{IndexerID: indexerID, Excerpt: content, Cause: cause}
}

// IsConfigRejected reports whether err is a site-side configuration
// rejection, as opposed to an unexpected system failure.
func IsConfigRejected(err error) (*ConfigRejectedError, bool) {
	var rejected *ConfigRejectedError
	if errors.As(err, &rejected) {
		return rejected, true
	}
	return nil, false
}
