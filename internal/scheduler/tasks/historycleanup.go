package tasks

import (
	"github.com/Appsum/JackettCore/internal/history"
	"github.com/Appsum/JackettCore/internal/scheduler"
)

const HistoryCleanupTaskID = "history-cleanup"

// RegisterHistoryCleanupTask registers the nightly prune of old search
// history entries.
func RegisterHistoryCleanupTask(sched *scheduler.Scheduler, historyService *history.Service) error {
	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          HistoryCleanupTaskID,
		Name:        "History Cleanup",
		Description: "Deletes search history entries older than the retention period",
		Cron:        "0 2 * * *",
		RunOnStart:  false,
		Func:        historyService.CleanupOldEntries,
	})
}
