package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/vibebox/internal/domain/track"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAppendAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := &track.Track{
		ID:          "t1",
		URL:         "https://cdn.example.com/t1.mp3",
		Title:       "Deep Focus",
		Tags:        "lo-fi, ambient",
		Topic:       "coding in a dark editor",
		ContextTag:  "vscode-coding",
		Duration:    3 * time.Minute,
		Source:      track.SourceForeground,
		GeneratedAt: time.Now().Add(-time.Minute),
	}
	require.NoError(t, s.Append(ctx, first))
	time.Sleep(5 * time.Millisecond)
	second := &track.Track{
		ID:     "t2",
		URL:    "https://cdn.example.com/t2.mp3",
		Source: track.SourcePrefetch,
	}
	require.NoError(t, s.Append(ctx, second))

	entries, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first.
	assert.Equal(t, "t2", entries[0].Track.ID)
	assert.Equal(t, track.SourcePrefetch, entries[0].Track.Source)
	assert.Equal(t, "t1", entries[1].Track.ID)
	assert.Equal(t, "Deep Focus", entries[1].Track.Title)
	assert.Equal(t, 3*time.Minute, entries[1].Track.Duration)
	assert.Equal(t, "vscode-coding", entries[1].Track.ContextTag)
	assert.False(t, entries[1].PlayedAt.IsZero())
}

func TestRecentLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, &track.Track{ID: "t", URL: "u"}))
	}

	entries, err := s.Recent(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestRecentEmpty(t *testing.T) {
	s := openTestStore(t)

	entries, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOpenReusesExistingDatabase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(context.Background(), &track.Track{ID: "t1", URL: "u"}))
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	entries, err := s2.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
