// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tracking

// Dispatcher delivers a tracking URL. Dispatch must not block on the
// request and never reports failure.
type Dispatcher interface {
	Dispatch(url string)
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(url string)

func (f DispatcherFunc) Dispatch(url string) { f(url) }

// Discard drops every URL.
var Discard Dispatcher = DispatcherFunc(func(string) {})
