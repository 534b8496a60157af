// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package player

import "github.com/luxfi/vastplayer/pkg/vast"

// Renderer is the playback surface. It decodes and shows the chosen media
// and reports back through the Player's FirstFrame, Progress, Ended and
// Failed methods.
type Renderer interface {
	Load(media vast.MediaFile) error
	Play()
	Pause()
	Stop()
}

// Observer receives player notifications. One-shot transitions are
// notified at most once per loaded ad.
type Observer interface {
	FinishedLoading(model *vast.Model, media vast.MediaFile)
	FailedLoading(err error)
	StartedPlaying()
	Paused()
	Completed()
	// TrackedEvent is called for every tracking event fired, after its
	// URLs were handed to the dispatcher.
	TrackedEvent(ev vast.Event)
}

// ObserverFuncs implements Observer with optional callbacks.
type ObserverFuncs struct {
	OnFinishedLoading func(model *vast.Model, media vast.MediaFile)
	OnFailedLoading   func(err error)
	OnStartedPlaying  func()
	OnPaused          func()
	OnCompleted       func()
	OnTrackedEvent    func(ev vast.Event)
}

func (o ObserverFuncs) FinishedLoading(model *vast.Model, media vast.MediaFile) {
	if o.OnFinishedLoading != nil {
		o.OnFinishedLoading(model, media)
	}
}

func (o ObserverFuncs) FailedLoading(err error) {
	if o.OnFailedLoading != nil {
		o.OnFailedLoading(err)
	}
}

func (o ObserverFuncs) StartedPlaying() {
	if o.OnStartedPlaying != nil {
		o.OnStartedPlaying()
	}
}

func (o ObserverFuncs) Paused() {
	if o.OnPaused != nil {
		o.OnPaused()
	}
}

func (o ObserverFuncs) Completed() {
	if o.OnCompleted != nil {
		o.OnCompleted()
	}
}

func (o ObserverFuncs) TrackedEvent(ev vast.Event) {
	if o.OnTrackedEvent != nil {
		o.OnTrackedEvent(ev)
	}
}
