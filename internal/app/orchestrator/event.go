package orchestrator

import (
	"github.com/osa030/vibebox/internal/domain/prefs"
	"github.com/osa030/vibebox/internal/domain/screen"
	"github.com/osa030/vibebox/internal/domain/track"
)

// eventType identifies an internal dispatch event.
type eventType int

const (
	eventDecisionReady eventType = iota
	eventGenerationComplete
)

func (e eventType) String() string {
	switch e {
	case eventDecisionReady:
		return "DECISION_READY"
	case eventGenerationComplete:
		return "GENERATION_COMPLETE"
	default:
		return "UNKNOWN"
	}
}

// event carries the result of asynchronous work back into the dispatch loop.
type event struct {
	Type eventType

	// DecisionReady
	Sample  screen.Sample
	Change  screen.ChangeEvent
	Summary *screen.Summary

	// GenerationComplete
	Seq   uint64
	Track *track.Track
	Fade  bool // Switch with a crossfade rather than a hard load
	Err   error
}

// commandKind identifies a user command.
type commandKind int

const (
	cmdGenerate commandKind = iota
	cmdBack
	cmdForward
	cmdPlayPause
	cmdSetPreferences
)

func (c commandKind) String() string {
	switch c {
	case cmdGenerate:
		return "generate"
	case cmdBack:
		return "back"
	case cmdForward:
		return "forward"
	case cmdPlayPause:
		return "playpause"
	case cmdSetPreferences:
		return "set_preferences"
	default:
		return "unknown"
	}
}

// command is a user request routed through the dispatch loop. The response
// channel carries the synchronous part of the outcome; long-running work
// continues asynchronously and reports through notifications.
type command struct {
	Kind  commandKind
	Prefs *prefs.Preferences
	resp  chan error
}
