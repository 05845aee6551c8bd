// Package track provides the Track domain entity.
package track

import (
	"strings"
	"time"
)

// Source represents how a track was produced.
type Source string

const (
	SourceForeground Source = "FOREGROUND" // User command or context switch
	SourcePrefetch   Source = "PREFETCH"   // Speculative background generation
)

// Track represents one generated audio track.
type Track struct {
	ID          string        // Request UUID assigned by the coordinator
	URL         string        // Playable stream or audio URL
	Title       string        // Title returned by the generator, may be empty
	Tags        string        // Comma-separated style tags
	Topic       string        // Topic/description the track was generated from
	ContextTag  string        // Screen context tag that triggered generation
	Duration    time.Duration // Probed duration (zero if probing failed)
	Source      Source        // How this track was produced
	GeneratedAt time.Time     // When the generation completed
}

// PrimaryGenres extracts the leading genres from the tags string.
// The first one or two comma-separated items are treated as primary.
func (t *Track) PrimaryGenres() []string {
	var genres []string
	for _, part := range strings.Split(t.Tags, ",") {
		if g := strings.TrimSpace(part); g != "" {
			genres = append(genres, g)
		}
	}
	if len(genres) > 2 {
		genres = genres[:2]
	}
	return genres
}
