// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vast

import "strings"

// EventKind enumerates the tracking events a linear ad reports.
type EventKind uint8

const (
	EventKindUnknown EventKind = iota
	EventKindStart
	EventKindFirstQuartile
	EventKindMidpoint
	EventKindThirdQuartile
	EventKindComplete
	EventKindPause
	EventKindResume
	EventKindClose
)

// Event is a tracking event. Known events carry only their kind; unknown
// events keep the raw name from the document so nothing is discarded.
type Event struct {
	kind EventKind
	name string
}

var (
	EventStart         = Event{kind: EventKindStart}
	EventFirstQuartile = Event{kind: EventKindFirstQuartile}
	EventMidpoint      = Event{kind: EventKindMidpoint}
	EventThirdQuartile = Event{kind: EventKindThirdQuartile}
	EventComplete      = Event{kind: EventKindComplete}
	EventPause         = Event{kind: EventKindPause}
	EventResume        = Event{kind: EventKindResume}
	EventClose         = Event{kind: EventKindClose}
)

// Quartiles lists the progress milestones in playback order.
var Quartiles = [3]Event{EventFirstQuartile, EventMidpoint, EventThirdQuartile}

var canonicalNames = map[EventKind]string{
	EventKindStart:         "start",
	EventKindFirstQuartile: "firstQuartile",
	EventKindMidpoint:      "midpoint",
	EventKindThirdQuartile: "thirdQuartile",
	EventKindComplete:      "complete",
	EventKindPause:         "pause",
	EventKindResume:        "resume",
	EventKindClose:         "close",
}

var eventsByName = func() map[string]Event {
	m := make(map[string]Event, len(canonicalNames))
	for kind, name := range canonicalNames {
		m[strings.ToLower(name)] = Event{kind: kind}
	}
	return m
}()

// UnknownEvent wraps an event name this package does not model.
func UnknownEvent(name string) Event {
	return Event{kind: EventKindUnknown, name: name}
}

// ParseEvent maps a document event name onto an Event, ignoring case and
// surrounding whitespace.
func ParseEvent(name string) Event {
	name = strings.TrimSpace(name)
	if ev, ok := eventsByName[strings.ToLower(name)]; ok {
		return ev
	}
	return UnknownEvent(name)
}

// Kind returns the event kind.
func (e Event) Kind() EventKind { return e.kind }

// Known reports whether the event is one of the modelled kinds.
func (e Event) Known() bool { return e.kind != EventKindUnknown }

// Repeatable reports whether the event may fire more than once per session.
func (e Event) Repeatable() bool {
	return e.kind == EventKindPause || e.kind == EventKindResume
}

// Quartile returns the playback fraction at which a quartile event fires.
func (e Event) Quartile() (float64, bool) {
	switch e.kind {
	case EventKindFirstQuartile:
		return 0.25, true
	case EventKindMidpoint:
		return 0.5, true
	case EventKindThirdQuartile:
		return 0.75, true
	}
	return 0, false
}

// String returns the canonical VAST event name, or the raw name for
// unknown events.
func (e Event) String() string {
	if e.kind == EventKindUnknown {
		return e.name
	}
	return canonicalNames[e.kind]
}

// MarshalText encodes the event by name so events can key JSON objects.
func (e Event) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText decodes an event name.
func (e *Event) UnmarshalText(b []byte) error {
	*e = ParseEvent(string(b))
	return nil
}
