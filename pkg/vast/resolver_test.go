// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/vastplayer/pkg/metric"
)

// docServer is an in-memory Fetcher keyed by URL.
type docServer struct {
	mu      sync.Mutex
	docs    map[string][]byte
	fetched []string
}

func newDocServer() *docServer {
	return &docServer{docs: make(map[string][]byte)}
}

func (s *docServer) put(t *testing.T, url string, v *VAST) {
	t.Helper()
	body, err := v.Bytes()
	require.NoError(t, err)
	s.docs[url] = body
}

func (s *docServer) Fetch(ctx context.Context, url string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetched = append(s.fetched, url)
	body, ok := s.docs[url]
	if !ok {
		return nil, fmt.Errorf("GET %s: 404 Not Found", url)
	}
	return body, nil
}

func wrapperVAST(next, hopName string) *VAST {
	return &VAST{
		Version: "2.0",
		Ads: []Ad{{
			ID: hopName,
			Wrapper: &Wrapper{
				AdSystem:     AdSystem{Name: hopName},
				VASTAdTagURI: CDATA{URL: next},
				Error:        []CDATA{{URL: "https://" + hopName + ".example.com/error"}},
				Impression:   []Impression{{URL: "https://" + hopName + ".example.com/imp"}},
				Creatives: &Creatives{Creative: []Creative{{Linear: &Linear{
					TrackingEvents: &TrackingEvents{Tracking: []Tracking{
						{Event: "start", URL: "https://" + hopName + ".example.com/start"},
					}},
					VideoClicks: &VideoClicks{
						ClickTracking: []ClickTracking{{URL: "https://" + hopName + ".example.com/click"}},
					},
				}}}},
			},
		}},
	}
}

func inlineVAST(name string, files ...MediaFileElement) *VAST {
	if len(files) == 0 {
		files = []MediaFileElement{
			{Delivery: "progressive", Type: "video/mp4", Width: "640", Height: "360", Bitrate: "800", URL: "https://cdn.example.com/640.mp4"},
		}
	}
	return &VAST{
		Version: "3.0",
		Ads: []Ad{{
			ID: name,
			InLine: &InLine{
				AdSystem:   AdSystem{Name: name},
				AdTitle:    "Inline " + name,
				Error:      []CDATA{{URL: "https://" + name + ".example.com/error"}},
				Impression: []Impression{{URL: "https://" + name + ".example.com/imp"}},
				Creatives: Creatives{Creative: []Creative{{Linear: &Linear{
					Duration: "00:00:30",
					TrackingEvents: &TrackingEvents{Tracking: []Tracking{
						{Event: "start", URL: "https://" + name + ".example.com/start"},
						{Event: "complete", URL: "https://" + name + ".example.com/complete"},
					}},
					VideoClicks: &VideoClicks{
						ClickThrough:  &ClickThrough{URL: "https://" + name + ".example.com/landing"},
						ClickTracking: []ClickTracking{{URL: "https://" + name + ".example.com/click"}},
					},
					MediaFiles: &MediaFiles{MediaFile: files},
				}}}},
			},
		}},
	}
}

// chain installs depth wrappers in front of an inline ad and returns the
// entry URL.
func (s *docServer) chain(t *testing.T, depth int) string {
	t.Helper()
	for i := 0; i < depth; i++ {
		url := fmt.Sprintf("https://ads.example.com/w%d.xml", i)
		next := fmt.Sprintf("https://ads.example.com/w%d.xml", i+1)
		if i == depth-1 {
			next = "https://ads.example.com/inline.xml"
		}
		s.put(t, url, wrapperVAST(next, fmt.Sprintf("w%d", i)))
	}
	s.put(t, "https://ads.example.com/inline.xml", inlineVAST("inline"))
	if depth == 0 {
		return "https://ads.example.com/inline.xml"
	}
	return "https://ads.example.com/w0.xml"
}

func TestResolve_Inline(t *testing.T) {
	require := require.New(t)
	srv := newDocServer()
	entry := srv.chain(t, 0)

	model, err := NewResolver(srv).Resolve(context.Background(), entry)
	require.NoError(err)

	require.Equal("3.0", model.Version())
	require.Equal("inline", model.AdID())
	require.Equal(0, model.WrapperDepth())
	require.Equal([]string{"https://inline.example.com/imp"}, model.Impressions())
	require.Equal(30*time.Second, model.Duration())
	click, ok := model.ClickThrough()
	require.True(ok)
	require.Equal("https://inline.example.com/landing", click)
	require.Len(model.MediaFiles(), 1)
}

func TestResolve_WrapperChainAccumulates(t *testing.T) {
	require := require.New(t)
	srv := newDocServer()
	srv.put(t, "https://a.example.com/vast", wrapperVAST("https://b.example.com/vast", "a"))
	srv.put(t, "https://b.example.com/vast", wrapperVAST("https://c.example.com/vast", "b"))
	srv.put(t, "https://c.example.com/vast", inlineVAST("c"))

	model, err := NewResolver(srv).Resolve(context.Background(), "https://a.example.com/vast")
	require.NoError(err)

	require.Equal(2, model.WrapperDepth())
	require.Equal([]string{
		"https://a.example.com/imp",
		"https://b.example.com/imp",
		"https://c.example.com/imp",
	}, model.Impressions())
	require.Equal([]string{
		"https://a.example.com/error",
		"https://b.example.com/error",
		"https://c.example.com/error",
	}, model.Errors())
	require.Equal([]string{
		"https://a.example.com/click",
		"https://b.example.com/click",
		"https://c.example.com/click",
	}, model.ClickTracking())
	require.Equal([]string{
		"https://a.example.com/start",
		"https://b.example.com/start",
		"https://c.example.com/start",
	}, model.TrackingURLs(EventStart))
	require.Equal([]string{"https://c.example.com/complete"}, model.TrackingURLs(EventComplete))
	require.Equal([]string{
		"https://a.example.com/vast",
		"https://b.example.com/vast",
		"https://c.example.com/vast",
	}, srv.fetched)
}

func TestResolve_DepthBound(t *testing.T) {
	for depth := 0; depth <= DefaultMaxWrapperDepth+2; depth++ {
		t.Run(fmt.Sprintf("depth=%d", depth), func(t *testing.T) {
			srv := newDocServer()
			entry := srv.chain(t, depth)

			model, err := NewResolver(srv).Resolve(context.Background(), entry)
			if depth <= DefaultMaxWrapperDepth {
				require.NoError(t, err)
				require.Equal(t, depth, model.WrapperDepth())
				require.Len(t, model.Impressions(), depth+1)
				return
			}
			require.Nil(t, model)
			require.ErrorIs(t, err, ErrTooManyWrappers)
			require.Equal(t, KindTooManyWrappers, KindOf(err))
			// The wrapper past the limit is fetched, nothing after it.
			require.Len(t, srv.fetched, DefaultMaxWrapperDepth+1)
		})
	}
}

func TestResolve_CustomDepth(t *testing.T) {
	srv := newDocServer()
	entry := srv.chain(t, 2)

	_, err := NewResolver(srv, WithMaxWrapperDepth(1)).Resolve(context.Background(), entry)
	require.ErrorIs(t, err, ErrTooManyWrappers)

	_, err = NewResolver(srv, WithMaxWrapperDepth(2)).Resolve(context.Background(), entry)
	require.NoError(t, err)
}

func TestResolve_Cycle(t *testing.T) {
	srv := newDocServer()
	srv.put(t, "https://a.example.com/vast", wrapperVAST("https://b.example.com/vast", "a"))
	srv.put(t, "https://b.example.com/vast", wrapperVAST("https://a.example.com/vast", "b"))

	_, err := NewResolver(srv, WithMaxWrapperDepth(10)).Resolve(context.Background(), "https://a.example.com/vast")
	require.ErrorIs(t, err, ErrTooManyWrappers)
	require.Len(t, srv.fetched, 2)
}

func TestResolve_RelativeTagURI(t *testing.T) {
	srv := newDocServer()
	srv.put(t, "https://ads.example.com/path/wrapper.xml", wrapperVAST("inline.xml", "w"))
	srv.put(t, "https://ads.example.com/path/inline.xml", inlineVAST("i"))

	model, err := NewResolver(srv).Resolve(context.Background(), "https://ads.example.com/path/wrapper.xml")
	require.NoError(t, err)
	require.Equal(t, "i", model.AdID())
}

func TestResolve_ClickThroughPrecedence(t *testing.T) {
	wrapperWithClick := func(next, name, click string) *VAST {
		v := wrapperVAST(next, name)
		v.Ads[0].Wrapper.Creatives.Creative[0].Linear.VideoClicks.ClickThrough = &ClickThrough{URL: click}
		return v
	}

	t.Run("inline value wins", func(t *testing.T) {
		srv := newDocServer()
		srv.put(t, "https://a.example.com/vast", wrapperWithClick("https://b.example.com/vast", "a", "https://a.example.com/landing"))
		srv.put(t, "https://b.example.com/vast", inlineVAST("b"))

		model, err := NewResolver(srv).Resolve(context.Background(), "https://a.example.com/vast")
		require.NoError(t, err)
		click, _ := model.ClickThrough()
		require.Equal(t, "https://b.example.com/landing", click)
	})

	t.Run("nearest wrapper value inherited", func(t *testing.T) {
		inline := inlineVAST("c")
		inline.Ads[0].InLine.Creatives.Creative[0].Linear.VideoClicks.ClickThrough = nil

		srv := newDocServer()
		srv.put(t, "https://a.example.com/vast", wrapperWithClick("https://b.example.com/vast", "a", "https://a.example.com/landing"))
		srv.put(t, "https://b.example.com/vast", wrapperWithClick("https://c.example.com/vast", "b", "https://b.example.com/landing"))
		srv.put(t, "https://c.example.com/vast", inline)

		model, err := NewResolver(srv).Resolve(context.Background(), "https://a.example.com/vast")
		require.NoError(t, err)
		click, ok := model.ClickThrough()
		require.True(t, ok)
		require.Equal(t, "https://b.example.com/landing", click)
	})
}

func TestResolve_FetchFailureDiscardsChain(t *testing.T) {
	srv := newDocServer()
	srv.put(t, "https://a.example.com/vast", wrapperVAST("https://missing.example.com/vast", "a"))

	model, err := NewResolver(srv).Resolve(context.Background(), "https://a.example.com/vast")
	require.Nil(t, model)
	require.ErrorIs(t, err, ErrNoInternetConnection)

	var verr *Error
	require.True(t, errors.As(err, &verr))
	require.Equal(t, 1, verr.Hop)
	require.Equal(t, "https://missing.example.com/vast", verr.URL)
}

func TestResolve_ParseFailureAtHop(t *testing.T) {
	srv := newDocServer()
	srv.put(t, "https://a.example.com/vast", wrapperVAST("https://b.example.com/vast", "a"))
	srv.docs["https://b.example.com/vast"] = []byte(`<VAST><Ad>`)

	_, err := NewResolver(srv).Resolve(context.Background(), "https://a.example.com/vast")
	require.ErrorIs(t, err, ErrXMLParse)

	var verr *Error
	require.True(t, errors.As(err, &verr))
	require.Equal(t, 1, verr.Hop)
}

func TestResolve_LoadTimeout(t *testing.T) {
	var calls int
	slow := FetcherFunc(func(ctx context.Context, url string) ([]byte, error) {
		calls++
		<-ctx.Done()
		return nil, ctx.Err()
	})

	start := time.Now()
	_, err := NewResolver(slow, WithLoadTimeout(30*time.Millisecond)).Resolve(context.Background(), "https://slow.example.com/vast")
	require.ErrorIs(t, err, ErrNoInternetConnection)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), time.Second)
	require.Equal(t, 1, calls)
}

func TestResolve_TimeoutBoundsWholeChain(t *testing.T) {
	srv := newDocServer()
	entry := srv.chain(t, 3)
	slowHops := FetcherFunc(func(ctx context.Context, url string) ([]byte, error) {
		select {
		case <-time.After(20 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return srv.Fetch(ctx, url)
	})

	// Each hop fits in the timeout; the chain does not.
	_, err := NewResolver(slowHops, WithLoadTimeout(50*time.Millisecond)).Resolve(context.Background(), entry)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, KindNoInternetConnection, KindOf(err))
}

func TestResolve_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	srv := newDocServer()
	entry := srv.chain(t, 0)
	_, err := NewResolver(srv).Resolve(ctx, entry)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, srv.fetched)
}

func TestResolve_NoCompatibleMediaFile(t *testing.T) {
	srv := newDocServer()
	srv.put(t, "https://a.example.com/vast", inlineVAST("a",
		MediaFileElement{Delivery: "progressive", Type: "video/x-flv", URL: "https://cdn.example.com/a.flv"},
	))

	caps := Capabilities{MIMETypes: []string{"video/mp4"}}
	_, err := NewResolver(srv, WithCapabilities(caps)).Resolve(context.Background(), "https://a.example.com/vast")
	require.ErrorIs(t, err, ErrNoCompatibleMediaFile)

	srv.put(t, "https://b.example.com/vast", inlineVAST("b",
		MediaFileElement{Type: "video/mp4", Width: "bad", URL: "https://cdn.example.com/b.mp4"},
	))
	_, err = NewResolver(srv).Resolve(context.Background(), "https://b.example.com/vast")
	require.ErrorIs(t, err, ErrNoCompatibleMediaFile)
}

func TestResolve_MovieTooShort(t *testing.T) {
	srv := newDocServer()
	entry := srv.chain(t, 1)

	_, err := NewResolver(srv, WithMinDuration(45*time.Second)).Resolve(context.Background(), entry)
	require.ErrorIs(t, err, ErrMovieTooShort)
	require.Equal(t, 202, KindOf(err).Code())

	_, err = NewResolver(srv, WithMinDuration(10*time.Second)).Resolve(context.Background(), entry)
	require.NoError(t, err)
}

func TestResolve_Metrics(t *testing.T) {
	m, err := metric.NewMetrics()
	require.NoError(t, err)

	srv := newDocServer()
	entry := srv.chain(t, 1)
	_, err = NewResolver(srv, WithMetrics(m)).Resolve(context.Background(), entry)
	require.NoError(t, err)
	_, err = NewResolver(srv, WithMetrics(m)).Resolve(context.Background(), "https://nowhere.example.com/vast")
	require.Error(t, err)

	families, err := m.GetGatherer().Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}
