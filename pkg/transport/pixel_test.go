// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/vastplayer/pkg/log"
	"github.com/luxfi/vastplayer/pkg/metric"
)

type hitCounter struct {
	mu   sync.Mutex
	hits map[string]int
}

func (h *hitCounter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hits == nil {
		h.hits = make(map[string]int)
	}
	h.hits[r.URL.Path]++
	if r.URL.Path == "/fail" {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *hitCounter) count(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hits[path]
}

func TestPixelDispatcher_DeliversAndCounts(t *testing.T) {
	hits := &hitCounter{}
	srv := httptest.NewServer(hits)
	defer srv.Close()

	m, err := metric.NewMetrics()
	require.NoError(t, err)

	d := NewPixelDispatcher(PixelConfig{Workers: 2, QueueSize: 16, Timeout: time.Second}, srv.Client(), log.NoLog, m)
	d.Dispatch(srv.URL + "/imp")
	d.Dispatch(srv.URL + "/start")
	d.Dispatch(srv.URL + "/fail")
	d.Close()

	require.Equal(t, 1, hits.count("/imp"))
	require.Equal(t, 1, hits.count("/start"))
	require.Equal(t, 1, hits.count("/fail"))
	require.InDelta(t, 2, testutil.ToFloat64(m.Dispatches.WithLabelValues(ResultSent)), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.Dispatches.WithLabelValues(ResultFailed)), 0)
}

func TestPixelDispatcher_DropsWhenFull(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()

	m, err := metric.NewMetrics()
	require.NoError(t, err)

	d := NewPixelDispatcher(PixelConfig{Workers: 1, QueueSize: 1, Timeout: 5 * time.Second}, srv.Client(), nil, m)
	for i := 0; i < 10; i++ {
		d.Dispatch(srv.URL)
	}
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.Dispatches.WithLabelValues(ResultDropped)) >= 8
	}, time.Second, 10*time.Millisecond)

	close(release)
	d.Close()
}

func TestPixelDispatcher_DispatchAfterClose(t *testing.T) {
	d := NewPixelDispatcher(PixelConfig{}, nil, nil, nil)
	d.Close()
	d.Close()
	require.NotPanics(t, func() { d.Dispatch("http://127.0.0.1:1/never") })
}
