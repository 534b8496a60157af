// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/luxfi/vastplayer/pkg/log"
	"github.com/luxfi/vastplayer/pkg/metric"
	"github.com/luxfi/vastplayer/pkg/tracking"
	"github.com/luxfi/vastplayer/pkg/vast"
)

// Session is a playback tracked on behalf of a remote player.
type Session struct {
	ID        uuid.UUID
	Model     *vast.Model
	Media     vast.MediaFile
	Processor *tracking.Processor
	Created   time.Time
}

type entry struct {
	session *Session
	expires time.Time
}

// Store keeps sessions until they are closed or idle for longer than the
// TTL.
type Store struct {
	dispatcher tracking.Dispatcher
	ttl        time.Duration
	now        func() time.Time
	log        log.Logger
	metrics    *metric.Metrics

	mu       sync.Mutex
	sessions map[uuid.UUID]*entry
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l log.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics records open sessions and fired events.
func WithMetrics(m *metric.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a store whose sessions fire tracking URLs through d.
func NewStore(d tracking.Dispatcher, ttl time.Duration, opts ...Option) *Store {
	s := &Store{
		dispatcher: d,
		ttl:        ttl,
		now:        time.Now,
		log:        log.NoLog,
		sessions:   make(map[uuid.UUID]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open starts a session for a resolved ad.
func (s *Store) Open(model *vast.Model, media vast.MediaFile) *Session {
	id := uuid.New()
	sess := &Session{
		ID:    id,
		Model: model,
		Media: media,
		Processor: tracking.NewProcessor(model, s.dispatcher,
			tracking.WithLogger(s.log.With(log.String("session", id.String()))),
			tracking.WithMetrics(s.metrics)),
		Created: s.now(),
	}

	s.mu.Lock()
	s.sessions[id] = &entry{session: sess, expires: sess.Created.Add(s.ttl)}
	s.mu.Unlock()

	s.metrics.SessionOpened()
	return sess
}

// Get returns a live session and extends its lifetime.
func (s *Store) Get(id uuid.UUID) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	now := s.now()
	if now.After(e.expires) {
		s.removeLocked(id)
		return nil, false
	}
	e.expires = now.Add(s.ttl)
	return e.session, true
}

// Close tracks close on the session and forgets it.
func (s *Store) Close(id uuid.UUID) bool {
	s.mu.Lock()
	e, ok := s.sessions[id]
	if ok {
		s.removeLocked(id)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	e.session.Processor.Track(vast.EventClose)
	return true
}

// Sweep forgets every expired session and returns how many were dropped.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var n int
	for id, e := range s.sessions {
		if now.After(e.expires) {
			s.removeLocked(id)
			n++
		}
	}
	if n > 0 {
		s.log.Debug("expired sessions swept", log.Int("count", n))
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) removeLocked(id uuid.UUID) {
	delete(s.sessions, id)
	s.metrics.SessionClosed()
}
