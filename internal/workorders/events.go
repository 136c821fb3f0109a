package workorders

import "time"

// EventTypeSynced tags events emitted after a work order reaches the Client.
const EventTypeSynced = "workorder.synced"

// SyncedEvent is published once a work order has been written outbound and marked synced.
type SyncedEvent struct {
	EventID  string    `json:"event_id"`
	RunID    string    `json:"run_id"`
	Number   int64     `json:"number"`
	File     string    `json:"file"`
	SyncedAt time.Time `json:"synced_at"`
}
