package model

import "time"

// QueueStats is a point-in-time picture of the import queue's depth.
type QueueStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	// Exhausted counts failed jobs with no retry budget left.
	Exhausted     int64      `json:"exhausted"`
	OldestPending *time.Time `json:"oldestPending,omitempty"`
}
