package server

// Status identifies a lifecycle transition reported to the status
// handler.
type Status string

// Lifecycle statuses
const (
	StatusStarted Status = "STARTED"
	StatusStopped Status = "STOPPED"
	StatusError   Status = "ERROR"
	StatusPaused  Status = "PAUSED"
	StatusResumed Status = "RESUMED"
)

// StatusEvent carries a lifecycle transition and an optional detail
// message.
type StatusEvent struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}
