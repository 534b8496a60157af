// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vastserver

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/luxfi/vastplayer/pkg/vast"
)

// Inline builds an inline ad whose every tracking URL is a pixel named
// after the ad: "<name>-imp", "<name>-start", "<name>-complete" and so on.
func (s *Server) Inline(name string) *vast.VAST {
	tracking := make([]vast.Tracking, 0, 8)
	for _, ev := range []string{"start", "firstQuartile", "midpoint", "thirdQuartile", "complete", "pause", "resume", "close"} {
		tracking = append(tracking, vast.Tracking{Event: ev, URL: s.PixelURL(name + "-" + ev)})
	}

	return &vast.VAST{
		Version: "3.0",
		Ads: []vast.Ad{{
			ID: name,
			InLine: &vast.InLine{
				AdSystem:   vast.AdSystem{Name: "vastserver", Version: "1.0"},
				AdTitle:    "Fixture " + name,
				Pricing:    &vast.Pricing{Model: "CPM", Currency: "USD", Value: decimal.NewFromFloat(2.5)},
				Error:      []vast.CDATA{{URL: s.PixelURL(name+"-error") + "?code=[ERRORCODE]"}},
				Impression: []vast.Impression{{URL: s.PixelURL(name + "-imp")}},
				Creatives: vast.Creatives{Creative: []vast.Creative{{
					ID: name + "-creative",
					Linear: &vast.Linear{
						Duration:       "00:00:30",
						TrackingEvents: &vast.TrackingEvents{Tracking: tracking},
						VideoClicks: &vast.VideoClicks{
							ClickThrough:  &vast.ClickThrough{URL: "https://advertiser.example.com/" + name},
							ClickTracking: []vast.ClickTracking{{URL: s.PixelURL(name + "-click")}},
						},
						MediaFiles: &vast.MediaFiles{MediaFile: []vast.MediaFileElement{
							{Delivery: "progressive", Type: "video/mp4", Width: "640", Height: "360", Bitrate: "600", URL: "https://cdn.example.com/" + name + "/360.mp4"},
							{Delivery: "progressive", Type: "video/mp4", Width: "1280", Height: "720", Bitrate: "1800", URL: "https://cdn.example.com/" + name + "/720.mp4"},
							{Delivery: "streaming", Type: "application/x-mpegURL", Width: "1920", Height: "1080", URL: "https://cdn.example.com/" + name + "/master.m3u8"},
						}},
					},
				}}},
			},
		}},
	}
}

// Wrapper builds a wrapper redirecting to next, with an impression pixel
// "<name>-imp", an error pixel and a start pixel "<name>-start".
func (s *Server) Wrapper(name, next string) *vast.VAST {
	return &vast.VAST{
		Version: "3.0",
		Ads: []vast.Ad{{
			ID: name,
			Wrapper: &vast.Wrapper{
				AdSystem:     vast.AdSystem{Name: "vastserver"},
				VASTAdTagURI: vast.CDATA{URL: next},
				Error:        []vast.CDATA{{URL: s.PixelURL(name+"-error") + "?code=[ERRORCODE]"}},
				Impression:   []vast.Impression{{URL: s.PixelURL(name + "-imp")}},
				Creatives: &vast.Creatives{Creative: []vast.Creative{{Linear: &vast.Linear{
					TrackingEvents: &vast.TrackingEvents{Tracking: []vast.Tracking{
						{Event: "start", URL: s.PixelURL(name + "-start")},
					}},
				}}}},
			},
		}},
	}
}

// Chain serves depth wrappers named "<name>-w0".."<name>-w<depth-1>" in
// front of an inline ad called name and returns the entry URL.
func (s *Server) Chain(name string, depth int) (string, error) {
	next, err := s.Put(name, s.Inline(name))
	if err != nil {
		return "", err
	}
	for i := depth - 1; i >= 0; i-- {
		hop := fmt.Sprintf("%s-w%d", name, i)
		if next, err = s.Put(hop, s.Wrapper(hop, next)); err != nil {
			return "", err
		}
	}
	return next, nil
}
