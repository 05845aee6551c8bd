// Package generation coordinates the expensive analyze+generate pipeline,
// guaranteeing at most one background generation in flight and a single
// buffered next track.
package generation

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/vibebox/internal/domain/prefs"
	"github.com/osa030/vibebox/internal/domain/screen"
	"github.com/osa030/vibebox/internal/domain/track"
)

var (
	generationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vibebox",
			Name:      "generations_total",
			Help:      "Total generation pipeline runs by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
	prefetchBuffered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vibebox",
			Name:      "prefetch_buffered",
			Help:      "Whether a prefetched next track is currently buffered",
		},
	)
)

// Errors
var (
	ErrAnalysis   = errors.New("context analysis failed")
	ErrGeneration = errors.New("track generation failed")
)

// Prompt is the generation request composed by the analyzer.
type Prompt struct {
	Topic        string // Track description, clamped to 499 characters
	Tags         string // Style tags, clamped to 100 characters
	NegativeTags string // Styles to avoid
	Lyrics       string // Lyrics when vocals are requested, empty otherwise
	Instrumental bool
	VocalGender  string // "male" or "female" when vocals are requested
	ContextTag   string // Screen context tag the prompt was derived from
}

// Analyzer derives a generation prompt from a screen sample.
type Analyzer interface {
	ComposeRequest(ctx context.Context, sample screen.Sample, p prefs.Preferences, recentGenres []string) (*Prompt, error)
}

// Generator turns a prompt into a playable audio clip.
type Generator interface {
	GenerateAndWait(ctx context.Context, prompt Prompt) (*Clip, error)
}

// Clip is the generator's output.
type Clip struct {
	URL   string
	Title string
	Tags  string
}

// DurationProber estimates the playable duration of an audio URL.
// A probe failure is not fatal; the track keeps a zero duration.
type DurationProber interface {
	Probe(ctx context.Context, url string) (time.Duration, error)
}

// Config holds coordinator configuration.
type Config struct {
	RecentGenreCount int // Diversity list cap (0 disables tracking)
}

// Coordinator serializes generation calls. Foreground requests are unbounded
// and independent; background prefetch is limited to one in flight and one
// buffered result.
type Coordinator struct {
	mu sync.Mutex

	analyzer  Analyzer
	generator Generator
	prober    DurationProber
	recent    *RecentGenres

	prefetching bool
	buffered    *track.Track

	eventCh chan Event

	ctx    context.Context
	cancel context.CancelFunc
}

// NewCoordinator creates a generation coordinator. prober may be nil.
func NewCoordinator(cfg Config, analyzer Analyzer, generator Generator, prober DurationProber, recent *RecentGenres) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	if recent == nil {
		recent = NewRecentGenres(cfg.RecentGenreCount, "")
	}
	return &Coordinator{
		analyzer:  analyzer,
		generator: generator,
		prober:    prober,
		recent:    recent,
		eventCh:   make(chan Event, 10),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Events returns the event channel.
func (c *Coordinator) Events() <-chan Event {
	return c.eventCh
}

// RequestNow runs the analyze+generate pipeline in the foreground and blocks
// until a track is ready or the pipeline fails. It is not subject to the
// single-prefetch limit; a running prefetch continues independently.
func (c *Coordinator) RequestNow(ctx context.Context, sample screen.Sample, p prefs.Preferences) (*track.Track, error) {
	tk, err := c.generate(ctx, sample, p, track.SourceForeground)
	if err != nil {
		generationsTotal.WithLabelValues("foreground", "failure").Inc()
		return nil, err
	}
	generationsTotal.WithLabelValues("foreground", "success").Inc()
	return tk, nil
}

// EnsurePrefetch starts exactly one background generation unless one is
// already in flight or a buffered next track exists. The result is delivered
// on the event channel; failures leave the buffer empty and are not retried.
func (c *Coordinator) EnsurePrefetch(sample screen.Sample, p prefs.Preferences) {
	c.mu.Lock()
	if c.prefetching || c.buffered != nil {
		c.mu.Unlock()
		return
	}
	c.prefetching = true
	c.mu.Unlock()

	go func() {
		tk, err := c.generate(c.ctx, sample, p, track.SourcePrefetch)

		c.mu.Lock()
		c.prefetching = false
		if err == nil {
			c.buffered = tk
			prefetchBuffered.Set(1)
		}
		c.mu.Unlock()

		if err != nil {
			generationsTotal.WithLabelValues("prefetch", "failure").Inc()
			zlog.Warn().Msgf("prefetch generation failed: %v", err)
			c.sendEvent(Event{Type: EventPrefetchFailed, Err: err})
			return
		}
		generationsTotal.WithLabelValues("prefetch", "success").Inc()
		c.sendEvent(Event{Type: EventPrefetchReady, Track: tk})
	}()
}

// TakeBuffered consumes the buffered next track, clearing the slot so a
// future EnsurePrefetch can run.
func (c *Coordinator) TakeBuffered() (*track.Track, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.buffered == nil {
		return nil, false
	}
	tk := c.buffered
	c.buffered = nil
	prefetchBuffered.Set(0)
	return tk, true
}

// HasBuffered reports whether a next track is buffered.
func (c *Coordinator) HasBuffered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffered != nil
}

// RecentGenres returns the diversity list snapshot.
func (c *Coordinator) RecentGenres() []string {
	return c.recent.List()
}

// Close stops background work.
func (c *Coordinator) Close() {
	c.cancel()
}

// generate runs one analyze+generate pass with a preferences snapshot.
func (c *Coordinator) generate(ctx context.Context, sample screen.Sample, p prefs.Preferences, source track.Source) (*track.Track, error) {
	snapshot := p.Clone()

	prompt, err := c.analyzer.ComposeRequest(ctx, sample, snapshot, c.recent.List())
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "compose generation request"), ErrAnalysis)
	}

	clip, err := c.generator.GenerateAndWait(ctx, *prompt)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "generate track"), ErrGeneration)
	}

	tags := clip.Tags
	if tags == "" {
		tags = prompt.Tags
	}

	tk := &track.Track{
		ID:          uuid.New().String(),
		URL:         clip.URL,
		Title:       clip.Title,
		Tags:        tags,
		Topic:       prompt.Topic,
		ContextTag:  prompt.ContextTag,
		Source:      source,
		GeneratedAt: time.Now(),
	}

	if c.prober != nil {
		if d, err := c.prober.Probe(ctx, tk.URL); err != nil {
			zlog.Debug().Msgf("duration probe failed: url=%s err=%v", tk.URL, err)
		} else {
			tk.Duration = d
		}
	}

	c.recent.Add(tk.PrimaryGenres()...)
	zlog.Info().Msgf("generated track: id=%s source=%s tags=%s duration=%v", tk.ID, tk.Source, tk.Tags, tk.Duration)
	return tk, nil
}

// sendEvent sends an event without blocking.
func (c *Coordinator) sendEvent(e Event) {
	select {
	case c.eventCh <- e:
	case <-c.ctx.Done():
	default:
	}
}
