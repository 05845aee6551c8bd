package orchestrator

import (
	"github.com/osa030/vibebox/internal/domain/prefs"
	"github.com/osa030/vibebox/internal/domain/screen"
	"github.com/osa030/vibebox/internal/domain/track"
)

// Status is a point-in-time snapshot of the orchestration state.
type Status struct {
	PlaybackState   string            `json:"playback_state"`
	CurrentTrack    *track.Track      `json:"current_track,omitempty"`
	HistoryDepth    int               `json:"history_depth"`
	CurrentContext  *screen.Summary   `json:"current_context,omitempty"`
	PreviousContext *screen.Summary   `json:"previous_context,omitempty"`
	NextBuffered    bool              `json:"next_buffered"`
	RecentGenres    []string          `json:"recent_genres,omitempty"`
	Preferences     prefs.Preferences `json:"preferences"`
}

// Status returns the latest snapshot. Safe to call from any goroutine.
func (o *Orchestrator) Status() Status {
	o.statusMu.RLock()
	defer o.statusMu.RUnlock()
	return o.status
}

// updateStatus refreshes the snapshot. Called from the dispatch loop.
func (o *Orchestrator) updateStatus() {
	s := Status{
		PlaybackState:   o.playback.State().String(),
		HistoryDepth:    len(o.playback.History()),
		CurrentContext:  o.currSummary,
		PreviousContext: o.prevSummary,
		NextBuffered:    o.coordinator.HasBuffered(),
		RecentGenres:    o.coordinator.RecentGenres(),
		Preferences:     o.preferences.Clone(),
	}
	if tk, ok := o.playback.Current(); ok {
		s.CurrentTrack = tk
	}

	o.statusMu.Lock()
	o.status = s
	o.statusMu.Unlock()
}
