// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vast

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/luxfi/vastplayer/pkg/log"
	"github.com/luxfi/vastplayer/pkg/metric"
)

// DefaultMaxWrapperDepth bounds how many wrappers a resolution follows.
const DefaultMaxWrapperDepth = 5

// Fetcher retrieves a VAST document body.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f(ctx, url)
}

// Resolver turns a VAST URL into a Model, following wrappers.
type Resolver struct {
	fetcher     Fetcher
	maxDepth    int
	caps        Capabilities
	minDuration time.Duration
	loadTimeout time.Duration
	log         log.Logger
	metrics     *metric.Metrics
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMaxWrapperDepth sets the number of wrappers a resolution may follow.
func WithMaxWrapperDepth(n int) Option {
	return func(r *Resolver) {
		if n >= 0 {
			r.maxDepth = n
		}
	}
}

// WithCapabilities sets the playback capabilities used for the media check.
func WithCapabilities(caps Capabilities) Option {
	return func(r *Resolver) { r.caps = caps }
}

// WithMinDuration rejects ads whose declared duration is shorter than d.
func WithMinDuration(d time.Duration) Option {
	return func(r *Resolver) { r.minDuration = d }
}

// WithLoadTimeout bounds a whole resolution, every hop included.
func WithLoadTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.loadTimeout = d }
}

// WithLogger sets the resolver logger.
func WithLogger(l log.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}

// WithMetrics sets the resolver metrics.
func WithMetrics(m *metric.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// NewResolver creates a resolver fetching documents through f.
func NewResolver(f Fetcher, opts ...Option) *Resolver {
	r := &Resolver{
		fetcher:  f,
		maxDepth: DefaultMaxWrapperDepth,
		log:      log.NoLog,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Capabilities returns the capabilities media files are checked against.
func (r *Resolver) Capabilities() Capabilities {
	return r.caps
}

// chainState accumulates what the wrappers of one resolution contribute.
type chainState struct {
	hops          int
	visited       map[string]struct{}
	errors        []string
	impressions   []string
	clickTracking []string
	clickThrough  string
	tracking      map[Event][]string
}

func newChainState() *chainState {
	return &chainState{
		visited:  make(map[string]struct{}),
		tracking: make(map[Event][]string),
	}
}

func (c *chainState) addWrapper(doc *Document) {
	c.hops++
	c.errors = append(c.errors, doc.Errors...)
	c.impressions = append(c.impressions, doc.Impressions...)
	c.clickTracking = append(c.clickTracking, doc.ClickTracking...)
	if doc.ClickThrough != "" {
		c.clickThrough = doc.ClickThrough
	}
	for ev, urls := range doc.Tracking {
		c.tracking[ev] = append(c.tracking[ev], urls...)
	}
}

func (c *chainState) finish(doc *Document) ModelData {
	data := ModelData{
		Version:        doc.Version,
		AdID:           doc.AdID,
		AdSystem:       doc.AdSystem,
		AdTitle:        doc.AdTitle,
		Errors:         append(c.errors, doc.Errors...),
		Impressions:    append(c.impressions, doc.Impressions...),
		ClickThrough:   c.clickThrough,
		ClickTracking:  append(c.clickTracking, doc.ClickTracking...),
		TrackingEvents: c.tracking,
		MediaFiles:     doc.MediaFiles,
		Duration:       doc.Duration,
		Price:          doc.Price,
		WrapperDepth:   c.hops,
	}
	if doc.ClickThrough != "" {
		data.ClickThrough = doc.ClickThrough
	}
	for ev, urls := range doc.Tracking {
		data.TrackingEvents[ev] = append(data.TrackingEvents[ev], urls...)
	}
	return data
}

// Resolve fetches and parses the document at rawURL, following wrappers
// until an inline ad is found. Hops run strictly in sequence. Any failure
// discards everything accumulated so far.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (*Model, error) {
	start := time.Now()
	if r.loadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.loadTimeout)
		defer cancel()
	}

	model, hops, err := r.resolve(ctx, rawURL)

	result := "ok"
	switch {
	case errors.Is(err, context.Canceled):
		result = "canceled"
	case err != nil:
		result = KindOf(err).String()
	}
	r.metrics.ObserveResolution(result, hops, time.Since(start))

	if err != nil {
		r.log.Debug("vast resolution failed",
			log.String("url", rawURL),
			log.Int("hops", hops),
			log.Error(err))
		return nil, err
	}

	r.log.Info("vast resolved",
		log.String("url", rawURL),
		log.String("ad", model.AdID()),
		log.Int("wrappers", hops),
		log.Duration("took", time.Since(start)))
	return model, nil
}

func (r *Resolver) resolve(ctx context.Context, rawURL string) (*Model, int, error) {
	chain := newChainState()
	current := rawURL

	for hop := 0; ; hop++ {
		if _, seen := chain.visited[current]; seen {
			return nil, chain.hops, &Error{
				Kind: KindTooManyWrappers,
				URL:  current,
				Hop:  hop,
				Err:  errors.New("wrapper chain revisits a URL"),
			}
		}
		chain.visited[current] = struct{}{}

		body, err := r.fetch(ctx, current)
		if err != nil {
			return nil, chain.hops, &Error{Kind: KindNoInternetConnection, URL: current, Hop: hop, Err: err}
		}

		doc, err := Parse(body)
		if err != nil {
			var verr *Error
			if errors.As(err, &verr) {
				verr.URL, verr.Hop = current, hop
			}
			return nil, chain.hops, err
		}

		if doc.DroppedMediaFiles > 0 {
			r.log.Warn("dropped malformed media files",
				log.String("url", current),
				log.Int("dropped", doc.DroppedMediaFiles))
		}

		if !doc.IsWrapper() {
			model, err := r.finish(chain, doc)
			if err != nil {
				err.URL, err.Hop = current, hop
				return nil, chain.hops, err
			}
			return model, chain.hops, nil
		}

		if chain.hops >= r.maxDepth {
			return nil, chain.hops, &Error{
				Kind: KindTooManyWrappers,
				URL:  current,
				Hop:  hop,
				Err:  fmt.Errorf("limit of %d wrappers reached", r.maxDepth),
			}
		}
		chain.addWrapper(doc)

		next, err := resolveReference(current, doc.RedirectURL)
		if err != nil {
			return nil, chain.hops, &Error{Kind: KindSchemaValidation, URL: current, Hop: hop, Err: err}
		}

		r.log.Debug("following vast wrapper",
			log.Int("hop", hop),
			log.String("from", current),
			log.String("to", next))
		current = next
	}
}

func (r *Resolver) fetch(ctx context.Context, target string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	body, err := r.fetcher.Fetch(ctx, target)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return nil, fmt.Errorf("%w: %w", ctxErr, err)
		}
		return nil, err
	}
	return body, nil
}

func (r *Resolver) finish(chain *chainState, doc *Document) (*Model, *Error) {
	if len(doc.MediaFiles) == 0 {
		return nil, newError(KindNoCompatibleMediaFile, errors.New("inline ad declares no usable media files"))
	}
	if _, ok := SelectMediaFile(doc.MediaFiles, r.caps); !ok {
		return nil, newError(KindNoCompatibleMediaFile,
			fmt.Errorf("none of %d media files is playable", len(doc.MediaFiles)))
	}
	if r.minDuration > 0 && doc.Duration > 0 && doc.Duration < r.minDuration {
		return nil, newError(KindMovieTooShort,
			fmt.Errorf("duration %s is below %s", doc.Duration, r.minDuration))
	}
	return NewModel(chain.finish(doc)), nil
}

func resolveReference(base, ref string) (string, error) {
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid VASTAdTagURI %q: %w", ref, err)
	}
	if refURL.IsAbs() {
		return refURL.String(), nil
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", base, err)
	}
	return baseURL.ResolveReference(refURL).String(), nil
}
