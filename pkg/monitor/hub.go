// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package monitor

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/luxfi/vastplayer/pkg/log"
	"github.com/luxfi/vastplayer/pkg/tracking"
)

const (
	defaultBuffer = 64
	writeWait     = 5 * time.Second
)

// Record is one tracking URL handed to the dispatcher.
type Record struct {
	URL string    `json:"url"`
	At  time.Time `json:"at"`
}

type subscriber struct {
	ch chan Record
}

// Hub forwards tracking URLs to the wrapped dispatcher and streams a copy
// of each to websocket subscribers. A subscriber that falls behind is
// disconnected.
type Hub struct {
	next     tracking.Dispatcher
	upgrader websocket.Upgrader
	origins  []string
	buffer   int
	log      log.Logger

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

// Option configures a Hub.
type Option func(*Hub)

// WithAllowedOrigins lists the browser origins allowed to subscribe besides
// the service's own. "*" allows any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(h *Hub) { h.origins = append(h.origins, origins...) }
}

// NewHub wraps next. A nil next only streams.
func NewHub(next tracking.Dispatcher, logger log.Logger, opts ...Option) *Hub {
	if next == nil {
		next = tracking.Discard
	}
	if logger == nil {
		logger = log.NoLog
	}
	h := &Hub{
		next:   next,
		buffer: defaultBuffer,
		log:    logger,
		subs:   make(map[*subscriber]struct{}),
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// checkOrigin accepts non-browser clients, the service's own origin and
// the configured origins.
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.origins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// Dispatch implements tracking.Dispatcher.
func (h *Hub) Dispatch(url string) {
	h.next.Dispatch(url)
	h.publish(Record{URL: url, At: time.Now().UTC()})
}

func (h *Hub) publish(r Record) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub.ch <- r:
		default:
			h.dropLocked(sub)
			h.log.Warn("monitor subscriber too slow, disconnecting")
		}
	}
}

// Subscribe registers a listener. The channel is closed when the
// subscriber is dropped or cancel is called.
func (h *Hub) Subscribe() (<-chan Record, func()) {
	sub := &subscriber{ch: make(chan Record, h.buffer)}

	h.mu.Lock()
	if h.closed {
		close(sub.ch)
	} else {
		h.subs[sub] = struct{}{}
	}
	h.mu.Unlock()

	return sub.ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.dropLocked(sub)
	}
}

// Subscribers returns the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for sub := range h.subs {
		h.dropLocked(sub)
	}
}

func (h *Hub) dropLocked(sub *subscriber) {
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.ch)
}

// ServeHTTP upgrades the request to a websocket and streams records as
// JSON messages until either side goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("monitor upgrade failed", log.Error(err))
		return
	}
	defer conn.Close()

	records, cancel := h.Subscribe()
	defer cancel()

	// The reader only notices the peer going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case rec, ok := <-records:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "monitor closed"),
					time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(rec); err != nil {
				return
			}
		}
	}
}
