package generation

import (
	"encoding/json"
	"os"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/renameio/v2"
	zlog "github.com/rs/zerolog/log"
)

// RecentGenres tracks the primary genres of recently generated tracks,
// most-recent-first, for prompt diversity guidance. The list is persisted
// atomically so a restart within a session keeps its variety.
type RecentGenres struct {
	mu     sync.Mutex
	genres []string
	max    int
	path   string // empty disables persistence
}

type recentGenresFile struct {
	Recent []string `json:"recent"`
}

// NewRecentGenres creates a tracker capped at max entries. If path is
// non-empty, an existing state file is loaded; load failures start empty.
func NewRecentGenres(max int, path string) *RecentGenres {
	r := &RecentGenres{max: max, path: path}
	if path != "" {
		if err := r.load(); err != nil {
			zlog.Debug().Msgf("recent genres not loaded: %v", err)
		}
	}
	return r
}

// Add prepends genres, deduplicating case-insensitively and truncating to
// the cap. A zero cap disables tracking.
func (r *RecentGenres) Add(genres ...string) {
	if r.max == 0 || len(genres) == 0 {
		return
	}

	r.mu.Lock()
	for _, g := range genres {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		norm := strings.ToLower(g)
		kept := r.genres[:0]
		for _, existing := range r.genres {
			if strings.ToLower(existing) != norm {
				kept = append(kept, existing)
			}
		}
		r.genres = append([]string{g}, kept...)
	}
	if len(r.genres) > r.max {
		r.genres = r.genres[:r.max]
	}
	snapshot := append([]string(nil), r.genres...)
	r.mu.Unlock()

	if r.path != "" {
		if err := r.save(snapshot); err != nil {
			zlog.Warn().Msgf("failed to persist recent genres: %v", err)
		}
	}
}

// List returns a copy of the list, most recent first.
func (r *RecentGenres) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.genres...)
}

func (r *RecentGenres) load() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return errors.Wrap(err, "read recent genres file")
	}
	var f recentGenresFile
	if err := json.Unmarshal(data, &f); err != nil {
		return errors.Wrap(err, "parse recent genres file")
	}
	r.mu.Lock()
	r.genres = f.Recent
	if len(r.genres) > r.max {
		r.genres = r.genres[:r.max]
	}
	r.mu.Unlock()
	return nil
}

func (r *RecentGenres) save(genres []string) error {
	data, err := json.MarshalIndent(recentGenresFile{Recent: genres}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal recent genres")
	}
	if err := renameio.WriteFile(r.path, data, 0o644); err != nil {
		return errors.Wrap(err, "write recent genres file")
	}
	return nil
}
