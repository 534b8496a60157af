// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vast

import (
	"encoding/xml"

	"github.com/shopspring/decimal"
)

// The types below build VAST documents; Parse reads documents through an
// element tree instead so that it can stay lenient about malformed input.

// VAST is the document root
type VAST struct {
	XMLName xml.Name `xml:"VAST"`
	Version string   `xml:"version,attr"`
	Ads     []Ad     `xml:"Ad"`
}

// Ad represents a VAST advertisement
type Ad struct {
	ID       string   `xml:"id,attr,omitempty"`
	Sequence int      `xml:"sequence,attr,omitempty"`
	InLine   *InLine  `xml:"InLine,omitempty"`
	Wrapper  *Wrapper `xml:"Wrapper,omitempty"`
}

// InLine contains all data to display the ad
type InLine struct {
	AdSystem   AdSystem     `xml:"AdSystem"`
	AdTitle    string       `xml:"AdTitle"`
	Pricing    *Pricing     `xml:"Pricing,omitempty"`
	Error      []CDATA      `xml:"Error,omitempty"`
	Impression []Impression `xml:"Impression"`
	Creatives  Creatives    `xml:"Creatives"`
}

// Wrapper points to another VAST response
type Wrapper struct {
	AdSystem     AdSystem     `xml:"AdSystem"`
	VASTAdTagURI CDATA        `xml:"VASTAdTagURI"`
	Error        []CDATA      `xml:"Error,omitempty"`
	Impression   []Impression `xml:"Impression"`
	Creatives    *Creatives   `xml:"Creatives,omitempty"`
}

// CDATA is a URL carried as character data
type CDATA struct {
	URL string `xml:",cdata"`
}

// AdSystem info
type AdSystem struct {
	Version string `xml:"version,attr,omitempty"`
	Name    string `xml:",chardata"`
}

// Pricing information
type Pricing struct {
	Model    string          `xml:"model,attr"`
	Currency string          `xml:"currency,attr"`
	Value    decimal.Decimal `xml:",chardata"`
}

// Impression tracking pixel
type Impression struct {
	ID  string `xml:"id,attr,omitempty"`
	URL string `xml:",cdata"`
}

// Creatives container
type Creatives struct {
	Creative []Creative `xml:"Creative"`
}

// Creative element
type Creative struct {
	ID     string  `xml:"id,attr,omitempty"`
	AdID   string  `xml:"adId,attr,omitempty"`
	Linear *Linear `xml:"Linear,omitempty"`
}

// Linear video ad
type Linear struct {
	SkipOffset     string          `xml:"skipoffset,attr,omitempty"`
	Duration       string          `xml:"Duration,omitempty"`
	TrackingEvents *TrackingEvents `xml:"TrackingEvents,omitempty"`
	VideoClicks    *VideoClicks    `xml:"VideoClicks,omitempty"`
	MediaFiles     *MediaFiles     `xml:"MediaFiles,omitempty"`
}

// TrackingEvents container
type TrackingEvents struct {
	Tracking []Tracking `xml:"Tracking"`
}

// Tracking event
type Tracking struct {
	Event string `xml:"event,attr"`
	URL   string `xml:",cdata"`
}

// MediaFiles container
type MediaFiles struct {
	MediaFile []MediaFileElement `xml:"MediaFile"`
}

// MediaFileElement represents a video file. Numeric attributes are strings so
// that documents with missing or malformed values can be produced.
type MediaFileElement struct {
	ID       string `xml:"id,attr,omitempty"`
	Delivery string `xml:"delivery,attr,omitempty"`
	Type     string `xml:"type,attr,omitempty"`
	Bitrate  string `xml:"bitrate,attr,omitempty"`
	Width    string `xml:"width,attr,omitempty"`
	Height   string `xml:"height,attr,omitempty"`
	URL      string `xml:",cdata"`
}

// VideoClicks for clickthrough and tracking
type VideoClicks struct {
	ClickThrough  *ClickThrough   `xml:"ClickThrough,omitempty"`
	ClickTracking []ClickTracking `xml:"ClickTracking,omitempty"`
}

// ClickThrough URL
type ClickThrough struct {
	ID  string `xml:"id,attr,omitempty"`
	URL string `xml:",cdata"`
}

// ClickTracking URL
type ClickTracking struct {
	ID  string `xml:"id,attr,omitempty"`
	URL string `xml:",cdata"`
}

// Bytes marshals the document with an XML declaration.
func (v *VAST) Bytes() ([]byte, error) {
	body, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}
