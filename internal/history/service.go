// Package history records completed searches so users can revisit what was
// asked and which sites answered.
package history

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Entry is one recorded search.
type Entry struct {
	ID         int64     `json:"id"`
	Term       string    `json:"term"`
	Categories []int     `json:"categories,omitempty"`
	Indexers   []string  `json:"indexers,omitempty"`
	Hits       int       `json:"hits"`
	SearchedAt time.Time `json:"searchedAt"`
}

// Service provides search history storage.
type Service struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewService(db *sql.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "history").Logger(),
	}
}

// Record stores one completed search.
func (s *Service) Record(ctx context.Context, term string, categories []int, indexers []string, hits int) error {
	cats := make([]string, len(categories))
	for i, c := range categories {
		cats[i] = strconv.Itoa(c)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO search_history (term, categories, indexers, hits, searched_at) VALUES (?, ?, ?, ?, ?)`,
		term, strings.Join(cats, ","), strings.Join(indexers, ","), hits, time.Now().UTC())
	return err
}

// List returns the most recent searches, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, term, categories, indexers, hits, searched_at
		 FROM search_history ORDER BY searched_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var cats, indexers string
		if err := rows.Scan(&e.ID, &e.Term, &cats, &indexers, &e.Hits, &e.SearchedAt); err != nil {
			return nil, err
		}
		e.Categories = splitInts(cats)
		if indexers != "" {
			e.Indexers = strings.Split(indexers, ",")
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// historyRetention is how long recorded searches are kept.
const historyRetention = 30 * 24 * time.Hour

// CleanupOldEntries deletes searches older than the retention period.
func (s *Service) CleanupOldEntries(ctx context.Context) error {
	cutoff := time.Now().Add(-historyRetention)
	res, err := s.db.ExecContext(ctx, `DELETE FROM search_history WHERE searched_at < ?`, cutoff)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.logger.Info().Int64("deleted", n).Msg("Pruned old search history entries")
	}
	return nil
}

// Clear removes every recorded search.
func (s *Service) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM search_history`)
	return err
}

func splitInts(csv string) []int {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		if n, err := strconv.Atoi(p); err == nil {
			out = append(out, n)
		}
	}
	return out
}
