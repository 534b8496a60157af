// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/luxfi/vastplayer/pkg/log"
	"github.com/luxfi/vastplayer/pkg/metric"
)

// Dispatch results recorded in metrics.
const (
	ResultSent    = "sent"
	ResultFailed  = "failed"
	ResultDropped = "dropped"
)

// PixelConfig configures a PixelDispatcher.
type PixelConfig struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
	UserAgent string
}

// PixelDispatcher fires tracking URLs from a bounded queue drained by a
// fixed pool of workers. Dispatch never blocks; when the queue is full the
// URL is dropped. Delivery failures are logged and counted, never returned.
type PixelDispatcher struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
	log       log.Logger
	metrics   *metric.Metrics

	queue chan string
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPixelDispatcher starts the worker pool.
func NewPixelDispatcher(cfg PixelConfig, client *http.Client, logger log.Logger, metrics *metric.Metrics) *PixelDispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = log.NoLog
	}

	d := &PixelDispatcher{
		client:    client,
		userAgent: cfg.UserAgent,
		timeout:   cfg.Timeout,
		log:       logger,
		metrics:   metrics,
		queue:     make(chan string, cfg.QueueSize),
	}
	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.worker()
	}
	return d
}

// Dispatch queues url for delivery.
func (d *PixelDispatcher) Dispatch(url string) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.metrics.ObserveDispatch(ResultDropped)
		return
	}

	select {
	case d.queue <- url:
	default:
		d.metrics.ObserveDispatch(ResultDropped)
		d.log.Warn("tracking queue full, dropping pixel", log.String("url", url))
	}
}

// Close stops accepting URLs and waits for queued ones to be delivered.
func (d *PixelDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *PixelDispatcher) worker() {
	defer d.wg.Done()
	for url := range d.queue {
		if err := d.send(url); err != nil {
			d.metrics.ObserveDispatch(ResultFailed)
			d.log.Debug("tracking pixel failed", log.String("url", url), log.Error(err))
			continue
		}
		d.metrics.ObserveDispatch(ResultSent)
	}
}

func (d *PixelDispatcher) send(url string) error {
	ctx := context.Background()
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// StatusError is a tracking endpoint answering with a failure status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return "tracking endpoint returned " + http.StatusText(e.Code)
}
