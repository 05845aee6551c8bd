// Package notification provides the notification manager for broadcasting
// events to connected clients.
package notification

import (
	"time"

	"github.com/osa030/vibebox/internal/domain/screen"
	"github.com/osa030/vibebox/internal/domain/track"
)

// Notification types. The music:* and context:* families inform listeners
// about orchestration activity; the player:* family carries commands for
// clients that own an audio element.
const (
	TypeMusicSwitch   = "music:switch"
	TypeMusicError    = "music:error"
	TypeContextStatus = "context:status"
	TypePlaybackState = "playback:state"

	TypePlayerLoad   = "player:load"
	TypePlayerVolume = "player:volume"
	TypePlayerPause  = "player:pause"
	TypePlayerResume = "player:resume"
)

// Notification is the wire format delivered to subscribers.
type Notification struct {
	Type       string    `json:"type"`
	SequenceNo uint64    `json:"sequence_no"`
	At         time.Time `json:"at"`

	Track    *TrackPayload   `json:"track,omitempty"`
	Context  *ContextPayload `json:"context,omitempty"`
	Playback *PlaybackState  `json:"playback,omitempty"`
	Player   *PlayerPayload  `json:"player,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// TrackPayload describes a track in a notification.
type TrackPayload struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	Title      string `json:"title,omitempty"`
	Tags       string `json:"tags,omitempty"`
	Topic      string `json:"topic,omitempty"`
	ContextTag string `json:"context_tag,omitempty"`
}

// ContextPayload describes a screen-context evaluation result.
type ContextPayload struct {
	Tag      string  `json:"tag"`
	Details  string  `json:"details,omitempty"`
	Distance float64 `json:"distance"`
	Action   string  `json:"action"`
	Code     string  `json:"code,omitempty"`
}

// PlaybackState describes the playback controller's public state.
type PlaybackState struct {
	State        string `json:"state"`
	HistoryDepth int    `json:"history_depth"`
}

// PlayerPayload carries a command for audio-owning clients.
type PlayerPayload struct {
	URL    string   `json:"url,omitempty"`
	Volume *float64 `json:"volume,omitempty"`
}

// TrackOf converts a domain track into its notification payload.
func TrackOf(tk *track.Track) *TrackPayload {
	if tk == nil {
		return nil
	}
	return &TrackPayload{
		ID:         tk.ID,
		URL:        tk.URL,
		Title:      tk.Title,
		Tags:       tk.Tags,
		Topic:      tk.Topic,
		ContextTag: tk.ContextTag,
	}
}

// ContextOf converts a screen summary and evaluation outcome into its
// notification payload.
func ContextOf(sum *screen.Summary, distance float64, action, code string) *ContextPayload {
	p := &ContextPayload{
		Distance: distance,
		Action:   action,
		Code:     code,
	}
	if sum != nil {
		p.Tag = sum.Tag
		p.Details = sum.Details
	}
	return p
}
