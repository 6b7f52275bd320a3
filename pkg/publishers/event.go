package publishers

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/samvad-hq/portaldb-go/internal/domain"
)

// Event is the message published for one completed API call.
type Event struct {
	Source      string      `json:"source"`
	Call        domain.Call `json:"call"`
	PublishedAt time.Time   `json:"published_at"`
}

// NewEvent wraps call with the publishing source and time.
func NewEvent(source string, call domain.Call) Event {
	return Event{
		Source:      source,
		Call:        call,
		PublishedAt: time.Now().UTC(),
	}
}

func (e Event) payload() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return b, nil
}

// attributes are attached to queue and topic messages so subscribers can
// filter without decoding the body.
func (e Event) attributes() map[string]string {
	attrs := map[string]string{
		"method": e.Call.Method,
		"path":   e.Call.Path,
		"status": strconv.Itoa(e.Call.Status),
	}
	if e.Source != "" {
		attrs["source"] = e.Source
	}
	return attrs
}

// messageAttributes converts event attributes into an SDK-specific value type.
func messageAttributes[T any](e Event, mk func(string) T) map[string]T {
	attrs := e.attributes()
	out := make(map[string]T, len(attrs))
	for k, v := range attrs {
		out[k] = mk(v)
	}
	return out
}
