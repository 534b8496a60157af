// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tracking

import (
	"sync"
	"time"

	"github.com/luxfi/vastplayer/pkg/log"
	"github.com/luxfi/vastplayer/pkg/metric"
	"github.com/luxfi/vastplayer/pkg/vast"
)

// Processor maps the playback lifecycle of one ad onto its tracking URLs.
// Every one-shot event fires at most once per Processor; pause and resume
// fire on every transition. Close is terminal. A Processor is safe for
// concurrent use.
type Processor struct {
	model      *vast.Model
	dispatcher Dispatcher
	listener   func(vast.Event)
	log        log.Logger
	metrics    *metric.Metrics

	mu        sync.Mutex
	fired     map[vast.Event]bool
	closed    bool
	errorSent bool
}

// firing is one decision taken under the lock and carried out after it.
type firing struct {
	event vast.Event
	urls  []string
}

// Option configures a Processor.
type Option func(*Processor)

// WithListener registers a callback invoked for every event fired.
func WithListener(fn func(vast.Event)) Option {
	return func(p *Processor) { p.listener = fn }
}

// WithLogger sets the processor logger.
func WithLogger(l log.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.log = l
		}
	}
}

// WithMetrics counts fired events.
func WithMetrics(m *metric.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// NewProcessor starts a tracking session for model.
func NewProcessor(model *vast.Model, d Dispatcher, opts ...Option) *Processor {
	if d == nil {
		d = Discard
	}
	p := &Processor{
		model:      model,
		dispatcher: d,
		log:        log.NoLog,
		fired:      make(map[vast.Event]bool),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Track fires ev and reports whether anything was fired. Start also fires
// the impressions. Complete first fires any quartile not yet reported.
// Pause, resume, quartiles and complete are ignored until start has fired,
// and unknown events are ignored unless the ad declares URLs for them.
func (p *Processor) Track(ev vast.Event) bool {
	p.mu.Lock()
	firings := p.decide(ev)
	p.mu.Unlock()

	p.emit(firings)
	return len(firings) > 0
}

// decide records ev in the session state and returns what to fire.
// Callers hold p.mu.
func (p *Processor) decide(ev vast.Event) []firing {
	if p.closed {
		return nil
	}
	if !ev.Known() && len(p.model.TrackingURLs(ev)) == 0 {
		return nil
	}
	if afterStart(ev) && !p.fired[vast.EventStart] {
		return nil
	}
	if !ev.Repeatable() && p.fired[ev] {
		return nil
	}

	var out []firing
	switch ev {
	case vast.EventStart:
		p.fired[ev] = true
		out = append(out, firing{event: ev, urls: append(p.model.Impressions(), p.model.TrackingURLs(ev)...)})
		return out
	case vast.EventComplete:
		for _, q := range vast.Quartiles {
			out = append(out, p.decide(q)...)
		}
	case vast.EventClose:
		p.closed = true
	}

	if !ev.Repeatable() {
		p.fired[ev] = true
	}
	return append(out, firing{event: ev, urls: p.model.TrackingURLs(ev)})
}

// afterStart reports whether ev is only meaningful once playback started.
func afterStart(ev vast.Event) bool {
	if _, ok := ev.Quartile(); ok {
		return true
	}
	return ev.Repeatable() || ev == vast.EventComplete
}

// Progress samples the playback position and fires every quartile crossed
// so far, in order. A zero duration falls back to the declared one. Seeking
// backwards never re-arms a quartile.
func (p *Processor) Progress(position, duration time.Duration) []vast.Event {
	if duration <= 0 {
		duration = p.model.Duration()
	}
	if duration <= 0 || position <= 0 {
		return nil
	}
	fraction := float64(position) / float64(duration)

	p.mu.Lock()
	var firings []firing
	for _, q := range vast.Quartiles {
		mark, _ := q.Quartile()
		if fraction < mark {
			break
		}
		firings = append(firings, p.decide(q)...)
	}
	p.mu.Unlock()

	p.emit(firings)

	events := make([]vast.Event, 0, len(firings))
	for _, f := range firings {
		events = append(events, f.event)
	}
	return events
}

// SendURLs dispatches urls unless the session is closed.
func (p *Processor) SendURLs(urls []string) {
	if p.Closed() {
		return
	}
	macros := NewMacros()
	for _, u := range urls {
		p.dispatcher.Dispatch(macros.Expand(u))
	}
}

// Click fires the click tracking URLs and returns the click-through URL.
func (p *Processor) Click() (string, bool) {
	p.SendURLs(p.model.ClickTracking())
	return p.model.ClickThrough()
}

// TrackError fires the error URLs of the whole wrapper chain with code
// substituted for [ERRORCODE]. Only the first call per session fires.
func (p *Processor) TrackError(code int) {
	p.mu.Lock()
	if p.errorSent {
		p.mu.Unlock()
		return
	}
	p.errorSent = true
	p.mu.Unlock()

	macros := NewMacros()
	macros.ErrorCode = code
	for _, u := range p.model.Errors() {
		p.dispatcher.Dispatch(macros.Expand(u))
	}
	p.log.Debug("error urls fired", log.Int("code", code))
}

// Fired reports whether a one-shot event has fired in this session.
func (p *Processor) Fired(ev vast.Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fired[ev]
}

// Closed reports whether Close has been tracked.
func (p *Processor) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Model returns the ad this session tracks.
func (p *Processor) Model() *vast.Model {
	return p.model
}

func (p *Processor) emit(firings []firing) {
	if len(firings) == 0 {
		return
	}
	macros := NewMacros()
	for _, f := range firings {
		for _, u := range f.urls {
			p.dispatcher.Dispatch(macros.Expand(u))
		}
		label := f.event.String()
		if !f.event.Known() {
			label = "unknown"
		}
		p.metrics.ObserveEvent(label)
		p.log.Debug("tracking event fired",
			log.Stringer("event", f.event),
			log.Int("urls", len(f.urls)))
		if p.listener != nil {
			p.listener(f.event)
		}
	}
}
