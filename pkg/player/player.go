// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/luxfi/vastplayer/pkg/log"
	"github.com/luxfi/vastplayer/pkg/metric"
	"github.com/luxfi/vastplayer/pkg/tracking"
	"github.com/luxfi/vastplayer/pkg/vast"
)

var (
	ErrNotReady = errors.New("player: no ad ready")
	ErrClosed   = errors.New("player: closed")
	ErrPlayback = errors.New("player: media failed to play")
)

// State is the playback state of the current ad.
type State uint8

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StatePlaying
	StatePaused
	StateCompleted
	StateStopped
	StateFailed
)

var stateNames = [...]string{"idle", "loading", "ready", "playing", "paused", "completed", "stopped", "failed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// session is one loaded ad and its tracking state.
type session struct {
	id        uuid.UUID
	model     *vast.Model
	media     vast.MediaFile
	processor *tracking.Processor
	started   bool
	completed bool
}

// Player loads a VAST ad, hands the selected media to a Renderer and
// reports the playback lifecycle to the ad's tracking URLs.
type Player struct {
	resolver   *vast.Resolver
	renderer   Renderer
	dispatcher tracking.Dispatcher
	observer   Observer
	log        log.Logger
	metrics    *metric.Metrics

	renderMu sync.Mutex

	mu      sync.Mutex
	gen     uint64
	cancel  context.CancelFunc
	state   State
	current *session
	closed  bool
	loads   sync.WaitGroup
}

// Option configures a Player.
type Option func(*Player)

// WithObserver sets the receiver of player notifications.
func WithObserver(o Observer) Option {
	return func(p *Player) {
		if o != nil {
			p.observer = o
		}
	}
}

// WithLogger sets the player logger.
func WithLogger(l log.Logger) Option {
	return func(p *Player) {
		if l != nil {
			p.log = l
		}
	}
}

// WithMetrics records session and tracking metrics.
func WithMetrics(m *metric.Metrics) Option {
	return func(p *Player) { p.metrics = m }
}

// New creates a player. Documents are resolved by resolver, media is played
// by renderer and tracking URLs go to dispatcher.
func New(resolver *vast.Resolver, renderer Renderer, dispatcher tracking.Dispatcher, opts ...Option) *Player {
	p := &Player{
		resolver:   resolver,
		renderer:   renderer,
		dispatcher: dispatcher,
		observer:   ObserverFuncs{},
		log:        log.NoLog,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Load resolves the ad at url in the background. A new Load supersedes any
// load still in flight; the superseded one is canceled and never notified.
// The outcome is reported through FinishedLoading or FailedLoading.
func (p *Player) Load(ctx context.Context, url string) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if p.cancel != nil {
		p.cancel()
	}
	prev := p.detachLocked()

	p.gen++
	gen := p.gen
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.state = StateLoading
	p.loads.Add(1)
	p.mu.Unlock()

	p.teardown(prev)

	go p.load(ctx, gen, url)
	return nil
}

func (p *Player) load(ctx context.Context, gen uint64, url string) {
	defer p.loads.Done()

	model, media, err := p.prepare(ctx, url)

	// renderMu orders renderer loads by generation: a superseded load never
	// reaches the renderer after a newer one.
	p.renderMu.Lock()
	loaded := false
	if err == nil {
		if !p.isCurrent(gen) {
			p.renderMu.Unlock()
			p.log.Debug("dropping superseded load", log.String("url", url))
			return
		}
		if rerr := p.renderer.Load(media); rerr != nil {
			err = fmt.Errorf("%w: %w", ErrPlayback, rerr)
		} else {
			loaded = true
		}
	}

	p.mu.Lock()
	if gen != p.gen || p.closed {
		p.mu.Unlock()
		if loaded {
			p.renderer.Stop()
		}
		p.renderMu.Unlock()
		p.log.Debug("dropping superseded load", log.String("url", url))
		return
	}
	p.renderMu.Unlock()
	p.cancel = nil
	if errors.Is(err, context.Canceled) {
		p.state = StateIdle
		p.mu.Unlock()
		return
	}
	if err != nil {
		p.state = StateFailed
		p.mu.Unlock()

		if errors.Is(err, ErrPlayback) {
			p.newProcessor(model, uuid.Nil).TrackError(vast.CodePlaybackError)
		}
		p.log.Info("ad failed to load",
			log.String("url", url),
			log.Stringer("kind", vast.KindOf(err)),
			log.Error(err))
		p.observer.FailedLoading(err)
		return
	}

	sess := &session{
		id:    uuid.New(),
		model: model,
		media: media,
	}
	sess.processor = p.newProcessor(model, sess.id)
	p.current = sess
	p.state = StateReady
	p.mu.Unlock()

	p.metrics.SessionOpened()
	p.log.Info("ad ready",
		log.String("session", sess.id.String()),
		log.String("media", media.URL),
		log.Int("wrappers", model.WrapperDepth()))
	p.observer.FinishedLoading(model, media)
}

// prepare resolves the ad and selects the media to play.
func (p *Player) prepare(ctx context.Context, url string) (*vast.Model, vast.MediaFile, error) {
	model, err := p.resolver.Resolve(ctx, url)
	if err != nil {
		return nil, vast.MediaFile{}, err
	}
	media, ok := vast.SelectMediaFile(model.MediaFiles(), p.resolver.Capabilities())
	if !ok {
		return nil, vast.MediaFile{}, &vast.Error{Kind: vast.KindNoCompatibleMediaFile, URL: url}
	}
	if err := ctx.Err(); err != nil {
		return nil, vast.MediaFile{}, err
	}
	return model, media, nil
}

func (p *Player) isCurrent(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return gen == p.gen && !p.closed
}

func (p *Player) newProcessor(model *vast.Model, id uuid.UUID) *tracking.Processor {
	logger := p.log
	if id != uuid.Nil {
		logger = logger.With(log.String("session", id.String()))
	}
	return tracking.NewProcessor(model, p.dispatcher,
		tracking.WithListener(p.observer.TrackedEvent),
		tracking.WithLogger(logger),
		tracking.WithMetrics(p.metrics))
}

// Play starts or resumes playback of the loaded ad.
func (p *Player) Play() error {
	p.mu.Lock()
	sess := p.current
	state := p.state
	switch {
	case p.closed:
		p.mu.Unlock()
		return ErrClosed
	case sess == nil || (state != StateReady && state != StatePaused):
		p.mu.Unlock()
		return fmt.Errorf("%w: player is %s", ErrNotReady, state)
	}
	p.state = StatePlaying
	started := sess.started
	p.mu.Unlock()

	p.renderer.Play()
	if state == StatePaused && started {
		sess.processor.Track(vast.EventResume)
	}
	return nil
}

// Pause pauses playback.
func (p *Player) Pause() error {
	p.mu.Lock()
	sess := p.current
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if sess == nil || p.state != StatePlaying {
		state := p.state
		p.mu.Unlock()
		return fmt.Errorf("%w: player is %s", ErrNotReady, state)
	}
	p.state = StatePaused
	started := sess.started
	p.mu.Unlock()

	p.renderer.Pause()
	if started {
		sess.processor.Track(vast.EventPause)
	}
	p.observer.Paused()
	return nil
}

// Stop dismisses the current ad, firing close, and cancels any load in
// flight.
func (p *Player) Stop() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
		p.gen++
	}
	sess := p.detachLocked()
	if p.state != StateIdle {
		p.state = StateStopped
	}
	p.mu.Unlock()

	p.teardown(sess)
}

// Close stops the player for good and waits for background loads to exit.
// Nothing is notified after Close returns.
func (p *Player) Close() {
	p.Stop()

	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.loads.Wait()
}

// Click fires the click tracking URLs and returns the click-through URL.
func (p *Player) Click() (string, bool) {
	sess := p.session()
	if sess == nil {
		return "", false
	}
	return sess.processor.Click()
}

// FirstFrame is called by the renderer once decoded output is shown.
func (p *Player) FirstFrame() {
	p.mu.Lock()
	sess := p.current
	if sess == nil || sess.started || p.state != StatePlaying {
		p.mu.Unlock()
		return
	}
	sess.started = true
	p.mu.Unlock()

	sess.processor.Track(vast.EventStart)
	p.observer.StartedPlaying()
}

// Progress is called by the renderer with the playback position.
func (p *Player) Progress(position, duration time.Duration) {
	p.mu.Lock()
	sess := p.current
	if sess == nil || !sess.started || sess.completed {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	sess.processor.Progress(position, duration)
}

// Ended is called by the renderer when playback reaches the end of media.
func (p *Player) Ended() {
	p.mu.Lock()
	sess := p.current
	if sess == nil || !sess.started || sess.completed {
		p.mu.Unlock()
		return
	}
	sess.completed = true
	p.state = StateCompleted
	p.mu.Unlock()

	sess.processor.Track(vast.EventComplete)
	p.observer.Completed()
}

// Failed is called by the renderer when the media cannot be played. The
// ad's error URLs are fired; the failure is reported as a load failure only
// if playback had not started.
func (p *Player) Failed(err error) {
	p.mu.Lock()
	sess := p.current
	if sess == nil || sess.completed || p.state == StateFailed {
		p.mu.Unlock()
		return
	}
	started := sess.started
	p.state = StateFailed
	p.mu.Unlock()

	sess.processor.TrackError(vast.CodePlaybackError)
	p.log.Warn("playback failed",
		log.String("session", sess.id.String()),
		log.Bool("started", started),
		log.Error(err))
	if !started {
		p.observer.FailedLoading(fmt.Errorf("%w: %w", ErrPlayback, err))
	}
}

// State returns the playback state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// SessionID returns the id of the loaded ad's tracking session.
func (p *Player) SessionID() (uuid.UUID, bool) {
	sess := p.session()
	if sess == nil {
		return uuid.Nil, false
	}
	return sess.id, true
}

// Model returns the loaded ad.
func (p *Player) Model() (*vast.Model, bool) {
	sess := p.session()
	if sess == nil {
		return nil, false
	}
	return sess.model, true
}

func (p *Player) session() *session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// detachLocked removes the current session. Callers hold p.mu and pass the
// result to teardown once unlocked.
func (p *Player) detachLocked() *session {
	sess := p.current
	p.current = nil
	return sess
}

func (p *Player) teardown(sess *session) {
	if sess == nil {
		return
	}
	p.mu.Lock()
	started := sess.started
	p.mu.Unlock()

	p.renderer.Stop()
	if started {
		sess.processor.Track(vast.EventClose)
	}
	p.metrics.SessionClosed()
	p.log.Debug("session closed", log.String("session", sess.id.String()))
}
