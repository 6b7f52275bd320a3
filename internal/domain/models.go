package domain

import "time"

// Call is the persisted/published summary of one API call.
type Call struct {
	ID         string    `json:"id"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	URL        string    `json:"url"`
	Status     int       `json:"status"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
}

// Failed reports whether the call ended in a transport or HTTP error.
func (c Call) Failed() bool { return c.Error != "" }
