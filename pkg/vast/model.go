// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vast

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// MediaFile is one rendition of the ad creative.
type MediaFile struct {
	ID       string `json:"id,omitempty"`
	URL      string `json:"url"`
	MIMEType string `json:"type"`
	Delivery string `json:"delivery,omitempty"`
	Bitrate  int    `json:"bitrate,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

// Price is the VAST <Pricing> of an inline ad.
type Price struct {
	Model    string          `json:"model,omitempty"`
	Currency string          `json:"currency,omitempty"`
	Value    decimal.Decimal `json:"value"`
}

// ModelData is the plain-data form of a Model.
type ModelData struct {
	Version        string             `json:"version"`
	AdID           string             `json:"ad_id,omitempty"`
	AdSystem       string             `json:"ad_system,omitempty"`
	AdTitle        string             `json:"ad_title,omitempty"`
	Errors         []string           `json:"errors,omitempty"`
	Impressions    []string           `json:"impressions,omitempty"`
	ClickThrough   string             `json:"click_through,omitempty"`
	ClickTracking  []string           `json:"click_tracking,omitempty"`
	TrackingEvents map[Event][]string `json:"tracking_events,omitempty"`
	MediaFiles     []MediaFile        `json:"media_files"`
	Duration       time.Duration      `json:"duration"`
	Price          *Price             `json:"price,omitempty"`
	WrapperDepth   int                `json:"wrapper_depth"`
}

// Model is a fully resolved ad. It is immutable: accessors return copies.
type Model struct {
	data ModelData
}

// NewModel builds a Model from a copy of data.
func NewModel(data ModelData) *Model {
	return &Model{data: data.clone()}
}

func (d ModelData) clone() ModelData {
	out := d
	out.Errors = slices.Clone(d.Errors)
	out.Impressions = slices.Clone(d.Impressions)
	out.ClickTracking = slices.Clone(d.ClickTracking)
	out.MediaFiles = slices.Clone(d.MediaFiles)
	out.TrackingEvents = cloneTracking(d.TrackingEvents)
	if d.Price != nil {
		p := *d.Price
		out.Price = &p
	}
	return out
}

func cloneTracking(in map[Event][]string) map[Event][]string {
	out := make(map[Event][]string, len(in))
	for ev, urls := range in {
		out[ev] = slices.Clone(urls)
	}
	return out
}

// Version returns the schema version declared by the terminal document.
func (m *Model) Version() string { return m.data.Version }

// AdID returns the id attribute of the terminal ad.
func (m *Model) AdID() string { return m.data.AdID }

// AdSystem returns the serving system of the terminal ad.
func (m *Model) AdSystem() string { return m.data.AdSystem }

// AdTitle returns the title of the terminal ad.
func (m *Model) AdTitle() string { return m.data.AdTitle }

// Errors returns the error URL templates of the whole wrapper chain.
func (m *Model) Errors() []string { return slices.Clone(m.data.Errors) }

// Impressions returns the impression URLs of the whole wrapper chain.
func (m *Model) Impressions() []string { return slices.Clone(m.data.Impressions) }

// ClickThrough returns the click-through URL, if any.
func (m *Model) ClickThrough() (string, bool) {
	return m.data.ClickThrough, m.data.ClickThrough != ""
}

// ClickTracking returns the click tracking URLs of the whole wrapper chain.
func (m *Model) ClickTracking() []string { return slices.Clone(m.data.ClickTracking) }

// TrackingEvents returns the tracking URLs keyed by event.
func (m *Model) TrackingEvents() map[Event][]string {
	return cloneTracking(m.data.TrackingEvents)
}

// TrackingURLs returns the URLs registered for one event.
func (m *Model) TrackingURLs(ev Event) []string {
	return slices.Clone(m.data.TrackingEvents[ev])
}

// MediaFiles returns the media files of the terminal ad in document order.
func (m *Model) MediaFiles() []MediaFile { return slices.Clone(m.data.MediaFiles) }

// Duration returns the declared linear duration, zero when unknown.
func (m *Model) Duration() time.Duration { return m.data.Duration }

// Price returns the declared pricing, if any.
func (m *Model) Price() (Price, bool) {
	if m.data.Price == nil {
		return Price{}, false
	}
	return *m.data.Price, true
}

// WrapperDepth returns the number of wrappers followed to reach the ad.
func (m *Model) WrapperDepth() int { return m.data.WrapperDepth }

// Data returns a copy of the model's contents.
func (m *Model) Data() ModelData { return m.data.clone() }

// MarshalJSON encodes the model's contents.
func (m *Model) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.data)
}
