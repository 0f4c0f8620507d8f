// Package tasks wires the recurring jobs into the scheduler.
package tasks

import (
	"context"
	"time"

	"github.com/Appsum/JackettCore/internal/indexer"
	"github.com/Appsum/JackettCore/internal/indexer/cache"
	"github.com/Appsum/JackettCore/internal/scheduler"
)

const CacheRefreshTaskID = "cache-refresh"

const refreshTimeout = 60 * time.Second

// RegisterCacheRefreshTask registers the periodic browse that keeps each
// configured indexer's cached result set fresh. One site failing only leaves
// its old entry in place.
func RegisterCacheRefreshTask(sched *scheduler.Scheduler, registry *indexer.Registry, resultCache *cache.Cache) error {
	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          CacheRefreshTaskID,
		Name:        "Cache Refresh",
		Description: "Browses every configured indexer and refreshes its cached results",
		Cron:        "*/30 * * * *",
		RunOnStart:  true,
		Func: func(ctx context.Context) error {
			var firstErr error
			for _, ix := range registry.Configured() {
				browseCtx, cancel := context.WithTimeout(ctx, refreshTimeout)
				results, err := ix.PerformQuery(browseCtx, &indexer.Query{})
				cancel()
				if err != nil {
					if firstErr == nil {
						firstErr = err
					}
					continue
				}
				results = ix.CleanLinks(results)
				resultCache.Put(ix.ID(), ix.DisplayName(), results)
			}
			return firstErr
		},
	})
}
