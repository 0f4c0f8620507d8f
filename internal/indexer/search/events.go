package search

// WebSocket event types emitted during a dispatch.
const (
	EventSearchStarted   = "search:started"
	EventSearchCompleted = "search:completed"
)

// SearchStartedPayload is broadcast when a dispatch begins.
type SearchStartedPayload struct {
	Query      string   `json:"query"`
	Categories []int    `json:"categories,omitempty"`
	Indexers   []string `json:"indexers"`
}

// SearchCompletedPayload is broadcast when a dispatch finishes.
type SearchCompletedPayload struct {
	Query        string   `json:"query"`
	TotalResults int      `json:"totalResults"`
	Indexers     []string `json:"indexers"`
	Errors       []string `json:"errors,omitempty"`
	ElapsedMs    int64    `json:"elapsedMs"`
}
