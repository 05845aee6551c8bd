package generation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/vibebox/internal/domain/prefs"
	"github.com/osa030/vibebox/internal/domain/screen"
	"github.com/osa030/vibebox/internal/domain/track"
)

// fakeAnalyzer returns a fixed prompt, optionally blocking until released.
type fakeAnalyzer struct {
	prompt  Prompt
	err     error
	calls   atomic.Int32
	release chan struct{} // nil means no blocking
}

func (f *fakeAnalyzer) ComposeRequest(ctx context.Context, _ screen.Sample, _ prefs.Preferences, _ []string) (*Prompt, error) {
	f.calls.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	p := f.prompt
	return &p, nil
}

type fakeGenerator struct {
	mu    sync.Mutex
	clips []Clip
	err   error
	calls int
}

func (f *fakeGenerator) GenerateAndWait(_ context.Context, _ Prompt) (*Clip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	clip := f.clips[0]
	if len(f.clips) > 1 {
		f.clips = f.clips[1:]
	}
	return &clip, nil
}

func newTestCoordinator(analyzer Analyzer, generator Generator) *Coordinator {
	return NewCoordinator(Config{RecentGenreCount: 5}, analyzer, generator, nil, nil)
}

func waitEvent(t *testing.T, c *Coordinator) Event {
	t.Helper()
	select {
	case e := <-c.Events():
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for coordinator event")
		return Event{}
	}
}

func TestRequestNow(t *testing.T) {
	analyzer := &fakeAnalyzer{prompt: Prompt{Topic: "calm focus music", Tags: "lofi, chill", ContextTag: "vscode-coding"}}
	generator := &fakeGenerator{clips: []Clip{{URL: "https://cdn.example/a.mp3", Title: "Flow"}}}
	c := newTestCoordinator(analyzer, generator)
	defer c.Close()

	tk, err := c.RequestNow(context.Background(), screen.Sample{}, prefs.Default())
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/a.mp3", tk.URL)
	assert.Equal(t, track.SourceForeground, tk.Source)
	assert.Equal(t, "lofi, chill", tk.Tags, "prompt tags used when generator returns none")
	assert.Equal(t, "vscode-coding", tk.ContextTag)
	assert.NotEmpty(t, tk.ID)
	assert.Equal(t, []string{"lofi", "chill"}, c.RecentGenres())
}

func TestRequestNow_AnalysisFailure(t *testing.T) {
	analyzer := &fakeAnalyzer{err: errors.New("vision unavailable")}
	c := newTestCoordinator(analyzer, &fakeGenerator{})
	defer c.Close()

	_, err := c.RequestNow(context.Background(), screen.Sample{}, prefs.Default())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAnalysis))
}

func TestRequestNow_GenerationFailure(t *testing.T) {
	analyzer := &fakeAnalyzer{prompt: Prompt{Topic: "x"}}
	generator := &fakeGenerator{err: errors.New("backend down")}
	c := newTestCoordinator(analyzer, generator)
	defer c.Close()

	_, err := c.RequestNow(context.Background(), screen.Sample{}, prefs.Default())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGeneration))
}

func TestEnsurePrefetch_SingleFlight(t *testing.T) {
	analyzer := &fakeAnalyzer{prompt: Prompt{Topic: "x"}, release: make(chan struct{})}
	generator := &fakeGenerator{clips: []Clip{{URL: "https://cdn.example/p.mp3"}}}
	c := newTestCoordinator(analyzer, generator)
	defer c.Close()

	// Several calls while the first is still in flight start nothing new.
	for i := 0; i < 5; i++ {
		c.EnsurePrefetch(screen.Sample{}, prefs.Default())
	}
	close(analyzer.release)

	e := waitEvent(t, c)
	require.Equal(t, EventPrefetchReady, e.Type)
	assert.Equal(t, int32(1), analyzer.calls.Load())
	assert.True(t, c.HasBuffered())

	// Buffer full: still no new generation.
	c.EnsurePrefetch(screen.Sample{}, prefs.Default())
	assert.Equal(t, int32(1), analyzer.calls.Load())
}

func TestTakeBuffered_ConsumeOnceReopensPrefetch(t *testing.T) {
	analyzer := &fakeAnalyzer{prompt: Prompt{Topic: "x"}}
	generator := &fakeGenerator{clips: []Clip{{URL: "https://cdn.example/1.mp3"}, {URL: "https://cdn.example/2.mp3"}}}
	c := newTestCoordinator(analyzer, generator)
	defer c.Close()

	c.EnsurePrefetch(screen.Sample{}, prefs.Default())
	require.Equal(t, EventPrefetchReady, waitEvent(t, c).Type)

	tk, ok := c.TakeBuffered()
	require.True(t, ok)
	assert.Equal(t, "https://cdn.example/1.mp3", tk.URL)
	assert.Equal(t, track.SourcePrefetch, tk.Source)

	// Slot cleared: a second take fails, a new prefetch may start.
	_, ok = c.TakeBuffered()
	assert.False(t, ok)

	c.EnsurePrefetch(screen.Sample{}, prefs.Default())
	require.Equal(t, EventPrefetchReady, waitEvent(t, c).Type)
	tk, ok = c.TakeBuffered()
	require.True(t, ok)
	assert.Equal(t, "https://cdn.example/2.mp3", tk.URL)
}

func TestEnsurePrefetch_FailureLeavesBufferEmpty(t *testing.T) {
	analyzer := &fakeAnalyzer{err: errors.New("vision unavailable")}
	c := newTestCoordinator(analyzer, &fakeGenerator{})
	defer c.Close()

	c.EnsurePrefetch(screen.Sample{}, prefs.Default())
	e := waitEvent(t, c)
	assert.Equal(t, EventPrefetchFailed, e.Type)
	assert.Error(t, e.Err)
	assert.False(t, c.HasBuffered())

	// No automatic retry happened; the next explicit call may retry.
	assert.Equal(t, int32(1), analyzer.calls.Load())
	c.EnsurePrefetch(screen.Sample{}, prefs.Default())
	assert.Equal(t, EventPrefetchFailed, waitEvent(t, c).Type)
	assert.Equal(t, int32(2), analyzer.calls.Load())
}

func TestRequestNow_IndependentOfRunningPrefetch(t *testing.T) {
	analyzer := &fakeAnalyzer{prompt: Prompt{Topic: "x"}, release: make(chan struct{})}
	generator := &fakeGenerator{clips: []Clip{{URL: "https://cdn.example/any.mp3"}}}
	c := newTestCoordinator(analyzer, generator)
	defer c.Close()

	c.EnsurePrefetch(screen.Sample{}, prefs.Default())

	// Foreground request proceeds while the prefetch is blocked; its result
	// is delivered first and the prefetch result is not discarded.
	fgAnalyzer := analyzer
	done := make(chan *track.Track, 1)
	go func() {
		tk, err := c.RequestNow(context.Background(), screen.Sample{}, prefs.Default())
		require.NoError(t, err)
		done <- tk
	}()

	// Release both pipeline runs.
	close(fgAnalyzer.release)

	select {
	case tk := <-done:
		assert.Equal(t, track.SourceForeground, tk.Source)
	case <-time.After(2 * time.Second):
		t.Fatal("foreground request did not complete")
	}

	assert.Equal(t, EventPrefetchReady, waitEvent(t, c).Type)
	assert.True(t, c.HasBuffered())
}
