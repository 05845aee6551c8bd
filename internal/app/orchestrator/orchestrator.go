// Package orchestrator runs the dispatch loop that ties sampling, decisions,
// generation and playback together. All playback mutations happen from this
// loop; collaborators report back through events.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/vibebox/internal/app/decision"
	"github.com/osa030/vibebox/internal/app/detector"
	"github.com/osa030/vibebox/internal/app/generation"
	"github.com/osa030/vibebox/internal/app/notification"
	"github.com/osa030/vibebox/internal/app/playback"
	"github.com/osa030/vibebox/internal/domain/prefs"
	"github.com/osa030/vibebox/internal/domain/screen"
	"github.com/osa030/vibebox/internal/domain/track"
)

// ErrNoSample is returned for commands that need a screen sample before any
// sample has been observed.
var ErrNoSample = errors.New("no screen sample available yet")

// Sampler supplies the latest screen observation without blocking.
type Sampler interface {
	Sample() (screen.Sample, error)
}

// Describer produces a human-readable summary of a screen sample.
type Describer interface {
	Describe(ctx context.Context, sample screen.Sample) (*screen.Summary, error)
}

// HistoryRecorder persists every performed switch.
type HistoryRecorder interface {
	Append(ctx context.Context, tk *track.Track) error
}

// Config holds orchestrator configuration.
type Config struct {
	TickInterval time.Duration // Sampling cadence
}

// Orchestrator owns the dispatch loop.
type Orchestrator struct {
	config Config

	sampler      Sampler
	describer    Describer
	detector     *detector.Detector
	engine       *decision.Engine
	coordinator  *generation.Coordinator
	playback     *playback.Controller
	history      HistoryRecorder
	notification *notification.Manager

	eventCh chan event
	cmdCh   chan command

	// Loop-owned state, touched only from the dispatch loop.
	prevFingerprint *screen.Fingerprint
	prevSummary     *screen.Summary
	currSummary     *screen.Summary
	lastSample      *screen.Sample
	preferences     prefs.Preferences
	latestSeq       uint64
	describing      bool
	describeRerun   *event // Pending re-describe when one is already in flight

	statusMu sync.RWMutex
	status   Status

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an orchestrator. history may be nil.
func New(
	config Config,
	sampler Sampler,
	describer Describer,
	det *detector.Detector,
	engine *decision.Engine,
	coordinator *generation.Coordinator,
	pb *playback.Controller,
	history HistoryRecorder,
	nm *notification.Manager,
) *Orchestrator {
	if config.TickInterval <= 0 {
		config.TickInterval = 2 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		config:       config,
		sampler:      sampler,
		describer:    describer,
		detector:     det,
		engine:       engine,
		coordinator:  coordinator,
		playback:     pb,
		history:      history,
		notification: nm,
		eventCh:      make(chan event, 32),
		cmdCh:        make(chan command),
		preferences:  prefs.Default(),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
}

// Run starts the dispatch loop and blocks until ctx is cancelled or Close is
// called.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer close(o.done)
	o.dispatchLoop(ctx)
	return nil
}

// Close stops the orchestrator.
func (o *Orchestrator) Close() {
	o.cancel()
	<-o.done
}

// Generate requests a fresh track for the current context, switching with a
// fade once it is ready. The call returns as soon as the generation has been
// accepted; completion is reported through notifications.
func (o *Orchestrator) Generate(ctx context.Context) error {
	return o.submit(ctx, command{Kind: cmdGenerate})
}

// Back pops the playback history.
func (o *Orchestrator) Back(ctx context.Context) error {
	return o.submit(ctx, command{Kind: cmdBack})
}

// Forward skips to the buffered next track, generating one in the foreground
// when the buffer is empty.
func (o *Orchestrator) Forward(ctx context.Context) error {
	return o.submit(ctx, command{Kind: cmdForward})
}

// PlayPause toggles playback.
func (o *Orchestrator) PlayPause(ctx context.Context) error {
	return o.submit(ctx, command{Kind: cmdPlayPause})
}

// SetPreferences replaces the user preferences. Requests already submitted
// keep the snapshot they were composed with.
func (o *Orchestrator) SetPreferences(ctx context.Context, p prefs.Preferences) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return o.submit(ctx, command{Kind: cmdSetPreferences, Prefs: &p})
}

func (o *Orchestrator) submit(ctx context.Context, cmd command) error {
	cmd.resp = make(chan error, 1)
	select {
	case o.cmdCh <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-o.ctx.Done():
		return errors.New("orchestrator stopped")
	}

	select {
	case err := <-cmd.resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatchLoop is the single goroutine that mutates orchestration state.
func (o *Orchestrator) dispatchLoop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("dispatch loop panicked: %v", r)
			// Restart loop to keep the session alive
			zlog.Info().Msg("restarting dispatch loop")
			go o.dispatchLoop(ctx)
		}
	}()

	ticker := time.NewTicker(o.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.ctx.Done():
			return

		case <-ticker.C:
			o.onTick()

		case e := <-o.eventCh:
			o.handleEvent(e)

		case e := <-o.playback.Events():
			o.handlePlaybackEvent(e)

		case e := <-o.coordinator.Events():
			o.handleGenerationEvent(e)

		case cmd := <-o.cmdCh:
			cmd.resp <- o.handleCommand(cmd)
		}
	}
}

// onTick samples the screen and classifies the change. A sampling failure is
// a no-op tick; the cadence continues.
func (o *Orchestrator) onTick() {
	sample, err := o.sampler.Sample()
	if err != nil {
		zlog.Debug().Msgf("tick: no sample: %v", err)
		return
	}

	ev, err := o.detector.Classify(o.prevFingerprint, &sample.Fingerprint)
	if err != nil {
		zlog.Warn().Msgf("tick: classify failed: %v", err)
		return
	}

	first := o.prevFingerprint == nil
	o.prevFingerprint = &sample.Fingerprint
	o.lastSample = &sample
	o.updateStatus()

	if first {
		zlog.Info().Msg("baseline fingerprint established")
		o.startDescribe(sample, ev)
		return
	}

	if !ev.Exceeds {
		// Below threshold: a continue by definition. The engine counts it
		// without consulting the gates, so no cooldown is recorded here.
		o.engine.Evaluate(time.Now(), ev, o.currSummary, o.prevSummary)
		return
	}

	zlog.Info().Msgf("significant change: distance=%.3f", ev.Distance)
	o.startDescribe(sample, ev)
}

// startDescribe summarizes a sample in the background, keeping at most one
// analysis in flight. A change arriving during an analysis replaces any
// pending rerun; only the newest sample is worth describing.
func (o *Orchestrator) startDescribe(sample screen.Sample, ev screen.ChangeEvent) {
	if o.describing {
		o.describeRerun = &event{Type: eventDecisionReady, Sample: sample, Change: ev}
		return
	}
	o.describing = true

	go func() {
		summary, err := o.describer.Describe(o.ctx, sample)
		if err != nil {
			zlog.Warn().Msgf("context describe failed: %v", err)
		}
		o.send(event{Type: eventDecisionReady, Sample: sample, Change: ev, Summary: summary})
	}()
}

func (o *Orchestrator) handleEvent(e event) {
	zlog.Debug().Msgf("dispatch event: type=%s", e.Type)

	switch e.Type {
	case eventDecisionReady:
		o.onDecisionReady(e)
	case eventGenerationComplete:
		o.onGenerationComplete(e)
	}
}

// onDecisionReady runs the gate chain on the analyzed change and performs the
// switch when accepted.
func (o *Orchestrator) onDecisionReady(e event) {
	o.describing = false
	if rerun := o.describeRerun; rerun != nil {
		o.describeRerun = nil
		o.startDescribe(rerun.Sample, rerun.Change)
	}

	first := o.currSummary == nil
	d := o.engine.Evaluate(time.Now(), e.Change, e.Summary, o.currSummary)

	o.notification.Broadcast(&notification.Notification{
		Type:    notification.TypeContextStatus,
		Context: notification.ContextOf(e.Summary, e.Change.Distance, string(d.Action), d.Code),
	})

	if d.Action != decision.ActionSwitchWithFade {
		if first && e.Summary != nil {
			o.currSummary = e.Summary
			o.updateStatus()
		}
		return
	}

	o.prevSummary = o.currSummary
	if e.Summary != nil {
		o.currSummary = e.Summary
	}
	o.updateStatus()

	o.performSwitch(e.Sample, true)
}

// performSwitch starts a foreground generation for the newly observed
// context. A buffered prefetch was composed against the context being left,
// so it is discarded rather than played; only end-of-track advance and the
// forward command consume the buffer.
func (o *Orchestrator) performSwitch(sample screen.Sample, fade bool) {
	if tk, ok := o.coordinator.TakeBuffered(); ok {
		zlog.Info().Msgf("discarding buffered track from previous context: id=%s", tk.ID)
		o.updateStatus()
	}
	o.startForeground(sample, fade)
}

// startForeground spawns one foreground generation tagged with a fresh
// sequence number. A newer request supersedes older in-flight ones; their
// results are dropped on arrival.
func (o *Orchestrator) startForeground(sample screen.Sample, fade bool) {
	o.latestSeq++
	seq := o.latestSeq
	snapshot := o.preferences.Clone()

	go func() {
		tk, err := o.coordinator.RequestNow(o.ctx, sample, snapshot)
		o.send(event{Type: eventGenerationComplete, Seq: seq, Track: tk, Fade: fade, Err: err})
	}()
}

func (o *Orchestrator) onGenerationComplete(e event) {
	if e.Seq < o.latestSeq {
		zlog.Info().Msgf("dropping stale generation result: seq=%d latest=%d", e.Seq, o.latestSeq)
		return
	}

	if e.Err != nil {
		zlog.Error().Msgf("foreground generation failed: %v", e.Err)
		o.notification.Broadcast(&notification.Notification{
			Type:  notification.TypeMusicError,
			Error: e.Err.Error(),
		})
		return
	}

	o.playTrack(e.Track, e.Fade)
}

// playTrack performs the actual playback switch and its bookkeeping. The
// first track of a session always hard-loads.
func (o *Orchestrator) playTrack(tk *track.Track, fade bool) {
	var err error
	if fade && o.playback.State() != playback.StateEmpty {
		err = o.playback.FadeTo(tk)
	} else {
		err = o.playback.LoadAndPlay(tk)
	}
	if err != nil {
		zlog.Error().Msgf("switch playback failed: id=%s err=%v", tk.ID, err)
		o.notification.Broadcast(&notification.Notification{
			Type:  notification.TypeMusicError,
			Track: notification.TrackOf(tk),
			Error: err.Error(),
		})
		return
	}

	o.recordSwitch(tk)
	o.updateStatus()

	o.notification.Broadcast(&notification.Notification{
		Type:  notification.TypeMusicSwitch,
		Track: notification.TrackOf(tk),
		Playback: &notification.PlaybackState{
			State:        o.playback.State().String(),
			HistoryDepth: len(o.playback.History()),
		},
	})

	o.ensurePrefetch()
}

func (o *Orchestrator) recordSwitch(tk *track.Track) {
	if o.history == nil {
		return
	}
	go func() {
		if err := o.history.Append(o.ctx, tk); err != nil {
			zlog.Warn().Msgf("history append failed: id=%s err=%v", tk.ID, err)
		}
	}()
}

// ensurePrefetch asks the coordinator to line up the next track for the
// current context. Without a sample there is nothing to analyze.
func (o *Orchestrator) ensurePrefetch() {
	if o.lastSample == nil {
		return
	}
	o.coordinator.EnsurePrefetch(*o.lastSample, o.preferences.Clone())
}

func (o *Orchestrator) handlePlaybackEvent(e playback.Event) {
	zlog.Debug().Msgf("playback event: type=%s", e.Type)

	switch e.Type {
	case playback.EventTrackEnded:
		o.onTrackEnded()

	case playback.EventStateChanged:
		o.updateStatus()
		o.notification.Broadcast(&notification.Notification{
			Type:  notification.TypePlaybackState,
			Track: notification.TrackOf(e.Track),
			Playback: &notification.PlaybackState{
				State:        e.State.String(),
				HistoryDepth: len(o.playback.History()),
			},
		})

	case playback.EventTrackStarted:
		o.updateStatus()

	case playback.EventError:
		if e.Err != nil {
			o.notification.Broadcast(&notification.Notification{
				Type:  notification.TypeMusicError,
				Track: notification.TrackOf(e.Track),
				Error: e.Err.Error(),
			})
		}
	}
}

// onTrackEnded keeps the music going: play the buffered next track when one
// exists, otherwise loop the current track, and in both cases line up the
// next prefetch.
func (o *Orchestrator) onTrackEnded() {
	if tk, ok := o.coordinator.TakeBuffered(); ok {
		if err := o.playback.LoadAndPlay(tk); err != nil {
			zlog.Error().Msgf("buffered track failed to start, restarting current: %v", err)
			o.restartCurrent()
		} else {
			o.recordSwitch(tk)
			o.updateStatus()
			o.notification.Broadcast(&notification.Notification{
				Type:  notification.TypeMusicSwitch,
				Track: notification.TrackOf(tk),
			})
		}
	} else {
		o.restartCurrent()
	}

	o.ensurePrefetch()
}

func (o *Orchestrator) restartCurrent() {
	if err := o.playback.Restart(); err != nil {
		zlog.Error().Msgf("restart failed: %v", err)
	}
}

func (o *Orchestrator) handleGenerationEvent(e generation.Event) {
	switch e.Type {
	case generation.EventPrefetchReady:
		zlog.Info().Msgf("next track buffered: id=%s", e.Track.ID)
		o.updateStatus()

	case generation.EventPrefetchFailed:
		o.updateStatus()
		o.notification.Broadcast(&notification.Notification{
			Type:  notification.TypeMusicError,
			Error: e.Err.Error(),
		})
	}
}

func (o *Orchestrator) handleCommand(cmd command) error {
	zlog.Info().Msgf("user command: kind=%s", cmd.Kind)

	switch cmd.Kind {
	case cmdGenerate:
		if o.lastSample == nil {
			return ErrNoSample
		}
		o.startForeground(*o.lastSample, true)
		return nil

	case cmdForward:
		if tk, ok := o.coordinator.TakeBuffered(); ok {
			o.playTrack(tk, false)
			return nil
		}
		if o.lastSample == nil {
			return ErrNoSample
		}
		o.startForeground(*o.lastSample, false)
		return nil

	case cmdBack:
		err := o.playback.Back()
		o.updateStatus()
		return err

	case cmdPlayPause:
		err := o.playback.PlayPause()
		o.updateStatus()
		return err

	case cmdSetPreferences:
		o.preferences = *cmd.Prefs
		o.updateStatus()
		zlog.Info().Msgf("preferences updated: genres=%v instrumental=%v silly=%v",
			cmd.Prefs.Genres, cmd.Prefs.Instrumental, cmd.Prefs.SillyMode)
		return nil

	default:
		return errors.Newf("unknown command: %v", cmd.Kind)
	}
}

// send delivers an event to the dispatch loop without blocking forever on a
// stopped orchestrator.
func (o *Orchestrator) send(e event) {
	select {
	case o.eventCh <- e:
	case <-o.ctx.Done():
	}
}
