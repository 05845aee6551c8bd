package playback

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/vibebox/internal/domain/track"
)

// Errors
var (
	ErrNoTrack    = errors.New("no track playing")
	ErrLoadFailed = errors.New("failed to load track")
)

var fadesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "vibebox",
	Name:      "fades_total",
	Help:      "Total completed crossfades",
})

// Config holds controller configuration.
type Config struct {
	FadeSteps            int           // Discrete volume steps per fade
	FadeStepInterval     time.Duration // Delay between fade steps
	DefaultTrackDuration time.Duration // End-of-track timer when probing failed
}

// Controller owns the audio output and the playback state machine. All
// mutations are serialized through its mutex; a fade holds the lock for its
// full ramp so nothing interleaves with it.
type Controller struct {
	mu sync.Mutex

	output Output

	current *track.Track
	history []track.Track // Previously played tracks, most-recent-last
	state   State

	volume float64 // Current output volume [0,1]
	fading bool
	closed bool

	// End-of-track timer
	timerCancel   func()
	timerDuration time.Duration
	startTime     time.Time

	config Config

	eventCh chan Event

	ctx    context.Context
	cancel context.CancelFunc
}

// NewController creates a playback controller over the given output.
func NewController(config Config, output Output) *Controller {
	if config.FadeSteps <= 0 {
		config.FadeSteps = 10
	}
	if config.FadeStepInterval <= 0 {
		config.FadeStepInterval = 100 * time.Millisecond
	}
	if config.DefaultTrackDuration <= 0 {
		config.DefaultTrackDuration = 2 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		output:  output,
		history: make([]track.Track, 0),
		state:   StateEmpty,
		volume:  1.0,
		config:  config,
		eventCh: make(chan Event, 10),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Events returns the event channel.
func (c *Controller) Events() <-chan Event {
	return c.eventCh
}

// LoadAndPlay switches to the given track immediately, pushing the previous
// current track onto the history stack. Valid from any state.
func (c *Controller) LoadAndPlay(tk *track.Track) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadAndPlayLocked(tk)
}

// FadeTo ramps the volume to zero over the configured steps, switches to the
// given track, then restores the pre-fade volume. Only valid when a track is
// loaded. A natural track end firing during the ramp is ignored.
func (c *Controller) FadeTo(tk *track.Track) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return ErrNoTrack
	}

	c.fading = true
	defer func() { c.fading = false }()

	original := c.volume
	steps := c.config.FadeSteps
	for i := steps - 1; i >= 0; i-- {
		v := original * float64(i) / float64(steps)
		if err := c.output.SetVolume(v); err != nil {
			zlog.Warn().Msgf("playback: fade volume step failed: %v", err)
		}
		c.volume = v
		time.Sleep(c.config.FadeStepInterval)
	}

	if err := c.loadAndPlayLocked(tk); err != nil {
		// Load failed; bring the still-playing previous track back up.
		c.restoreVolumeLocked(original)
		return err
	}

	c.restoreVolumeLocked(original)
	fadesTotal.Inc()
	zlog.Debug().Msgf("playback: fade completed: url=%s volume=%.2f", tk.URL, c.volume)
	return nil
}

// Restart replays the current track from position zero.
func (c *Controller) Restart() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.restartLocked()
}

// Back pops the history stack and plays the popped track. With an empty
// history the current track restarts from position zero; this is a fallback,
// not an error.
func (c *Controller) Back() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.history) == 0 {
		zlog.Debug().Msg("playback: back with empty history, restarting current")
		return c.restartLocked()
	}

	popped := c.history[len(c.history)-1]
	c.history = c.history[:len(c.history)-1]
	return c.loadAndPlayLocked(&popped)
}

// PlayPause toggles Playing and Paused without touching the current track or
// the history stack.
func (c *Controller) PlayPause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StatePlaying:
		if err := c.output.Pause(); err != nil {
			c.sendEventLocked(Event{Type: EventError, Track: c.current, State: c.state, Err: err})
			return err
		}
		// Freeze the end-of-track timer at the remaining duration.
		if c.timerCancel != nil {
			c.timerCancel()
			c.timerCancel = nil
		}
		c.timerDuration = c.remainingLocked()
		c.state = StatePaused

	case StatePaused:
		if err := c.output.Resume(); err != nil {
			c.sendEventLocked(Event{Type: EventError, Track: c.current, State: c.state, Err: err})
			return err
		}
		c.state = StatePlaying
		c.startTime = toWallTime(time.Now())
		c.armEndTimerLocked(c.timerDuration)

	default:
		return ErrNoTrack
	}

	c.sendEventLocked(Event{
		Type:  EventStateChanged,
		Track: c.current,
		State: c.state,
	})
	return nil
}

// Current returns the currently loaded track.
func (c *Controller) Current() (*track.Track, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return nil, false
	}
	return c.current, true
}

// State returns the current playback state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// History returns a copy of the history stack, most-recent-last.
func (c *Controller) History() []track.Track {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]track.Track, len(c.history))
	copy(result, c.history)
	return result
}

// Volume returns the current output volume.
func (c *Controller) Volume() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume
}

// Close releases the controller. The event channel is closed under the
// mutex; a timer goroutine that was already waiting on the lock sees the
// closed flag instead of sending.
func (c *Controller) Close() {
	c.cancel()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timerCancel != nil {
		c.timerCancel()
		c.timerCancel = nil
	}
	if !c.closed {
		c.closed = true
		close(c.eventCh)
	}
}

// loadAndPlayLocked performs the switch. On output failure the controller
// stays in its previous state and an error event is emitted.
func (c *Controller) loadAndPlayLocked(tk *track.Track) error {
	if err := c.output.Load(tk.URL); err != nil {
		zlog.Error().Msgf("playback: load failed: url=%s err=%v", tk.URL, err)
		c.sendEventLocked(Event{Type: EventError, Track: tk, State: c.state, Err: err})
		return errors.Join(ErrLoadFailed, err)
	}

	if c.current != nil {
		c.history = append(c.history, *c.current)
	}
	c.current = tk
	c.state = StatePlaying

	d := c.durationOf(tk)
	c.startTime = toWallTime(time.Now())
	c.armEndTimerLocked(d)

	zlog.Info().Msgf("playback: track started: id=%s url=%s duration=%v history_depth=%d",
		tk.ID, tk.URL, d, len(c.history))

	c.sendEventLocked(Event{
		Type:  EventTrackStarted,
		Track: c.current,
		State: c.state,
	})
	return nil
}

func (c *Controller) restartLocked() error {
	if c.current == nil {
		return ErrNoTrack
	}

	if err := c.output.Load(c.current.URL); err != nil {
		c.sendEventLocked(Event{Type: EventError, Track: c.current, State: c.state, Err: err})
		return errors.Join(ErrLoadFailed, err)
	}

	c.state = StatePlaying
	c.startTime = toWallTime(time.Now())
	c.armEndTimerLocked(c.durationOf(c.current))

	c.sendEventLocked(Event{
		Type:  EventTrackStarted,
		Track: c.current,
		State: c.state,
	})
	return nil
}

func (c *Controller) restoreVolumeLocked(v float64) {
	if err := c.output.SetVolume(v); err != nil {
		zlog.Warn().Msgf("playback: volume restore failed: %v", err)
	}
	c.volume = v
}

func (c *Controller) durationOf(tk *track.Track) time.Duration {
	if tk.Duration > 0 {
		return tk.Duration
	}
	return c.config.DefaultTrackDuration
}

func (c *Controller) remainingLocked() time.Duration {
	elapsed := toWallTime(time.Now()).Sub(c.startTime)
	remaining := c.timerDuration - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// armEndTimerLocked schedules the natural end of the current track. The
// closure captures the track ID so a stale timer firing after a switch is
// ignored.
func (c *Controller) armEndTimerLocked(d time.Duration) {
	if c.timerCancel != nil {
		c.timerCancel()
	}
	c.timerDuration = d

	trackID := c.current.ID
	c.timerCancel = c.startWallClockTimer(d, func() {
		c.onTrackEnd(trackID)
	})
}

// onTrackEnd is called when the end timer for a track fires. The controller
// only reports the end; deciding what plays next (buffered track or restart)
// is the orchestrator's job.
func (c *Controller) onTrackEnd(trackID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// A fade's completion already performed a switch; the current track
	// changed and this timer is stale.
	if c.fading || c.current == nil || c.current.ID != trackID {
		return
	}
	if c.state != StatePlaying {
		return
	}

	c.timerCancel = nil
	zlog.Debug().Msgf("playback: track ended: id=%s", trackID)

	c.sendEventLocked(Event{
		Type:  EventTrackEnded,
		Track: c.current,
		State: c.state,
	})
}

// sendEventLocked sends an event without blocking.
// Must be called with lock held.
func (c *Controller) sendEventLocked(e Event) {
	if c.closed {
		return
	}
	select {
	case c.eventCh <- e:
	case <-c.ctx.Done():
	default:
	}
}

// startWallClockTimer starts a timer that triggers callback after duration,
// using wall clock. Returns a cancel function.
func (c *Controller) startWallClockTimer(duration time.Duration, callback func()) func() {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		endTime := toWallTime(time.Now()).Add(duration)
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.ctx.Done():
				return
			case <-ticker.C:
				if toWallTime(time.Now()).After(endTime) {
					callback()
					return
				}
			}
		}
	}()

	return cancel
}

// toWallTime strips the monotonic clock reading so differences are computed
// on wall time, avoiding drift between the monotonic clock and real time.
func toWallTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), int64(t.Nanosecond()))
}
