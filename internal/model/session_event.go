package model

// Session change feed event types.
const (
	EventInsert = "insert"
	EventUpdate = "update"
	EventDelete = "delete"
)

// SessionEvent is a typed change notification for one user's session list.
// Every mutating operation publishes one; a single consumer applies them to
// the in-memory stores and fans them out to live subscribers.
type SessionEvent struct {
	Type    string      `json:"type"`
	UserID  uint        `json:"user_id"`
	Session SessionView `json:"session"`
}
