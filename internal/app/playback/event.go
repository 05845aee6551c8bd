package playback

import "github.com/osa030/vibebox/internal/domain/track"

// EventType represents a playback event type.
type EventType int

const (
	EventTrackStarted EventType = iota // Track started (or restarted) playing
	EventTrackEnded                    // Track reached its natural end
	EventStateChanged                  // Playback state changed (pause/resume)
	EventError                         // Output resource failure
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackStarted:
		return "track_started"
	case EventTrackEnded:
		return "track_ended"
	case EventStateChanged:
		return "state_changed"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type  EventType
	Track *track.Track // Current track (nil for some events)
	State State        // Current playback state
	Err   error        // Set for EventError
}

// Output is the single audio resource owned by the controller. In the server
// it is backed by the notification broadcast to attached player clients.
type Output interface {
	// Load starts playing the given URL from position zero.
	Load(url string) error
	// SetVolume sets the output volume in [0.0, 1.0].
	SetVolume(v float64) error
	// Pause pauses the output without unloading the stream.
	Pause() error
	// Resume resumes a paused output.
	Resume() error
}
