package realtime

import "time"

const (
	EventUnitWritten       = "lmp.written"
	EventInvocationWritten = "invocation.written"
)

// Event is the payload published after a write commits. Best-effort:
// the store never waits on, or fails because of, its delivery.
type Event struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	UnitID       string    `json:"unit_id,omitempty"`
	InvocationID string    `json:"invocation_id,omitempty"`
	Name         string    `json:"name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
