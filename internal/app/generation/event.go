package generation

import "github.com/osa030/vibebox/internal/domain/track"

// EventType represents a coordinator event type.
type EventType int

const (
	EventPrefetchReady  EventType = iota // Background generation filled the buffer
	EventPrefetchFailed                  // Background generation failed, buffer left empty
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventPrefetchReady:
		return "prefetch_ready"
	case EventPrefetchFailed:
		return "prefetch_failed"
	default:
		return "unknown"
	}
}

// Event represents a coordinator event.
type Event struct {
	Type  EventType
	Track *track.Track // Buffered track (nil on failure)
	Err   error        // Failure cause (nil on success)
}
