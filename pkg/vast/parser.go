// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vast

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
)

var (
	errNoRoot       = errors.New("document has no root element")
	errMissingURL   = errors.New("media file has no URL")
	errBadAttribute = errors.New("media file has a malformed numeric attribute")
)

// Document is what one fetched VAST response contributes to a resolution:
// either a wrapper redirect plus the tracking it adds, or the terminal
// inline ad.
type Document struct {
	Version     string
	AdID        string
	AdSystem    string
	AdTitle     string
	RedirectURL string

	Errors        []string
	Impressions   []string
	ClickThrough  string
	ClickTracking []string
	Tracking      map[Event][]string
	MediaFiles    []MediaFile
	Duration      time.Duration
	Price         *Price

	// DroppedMediaFiles counts MediaFile entries skipped as malformed.
	DroppedMediaFiles int
}

// IsWrapper reports whether the document redirects to another VAST response.
func (d *Document) IsWrapper() bool {
	return d.RedirectURL != ""
}

// Parse extracts the first ad of a VAST response. Element names are matched
// case-insensitively; a single malformed media file or tracking entry is
// skipped rather than failing the document.
func Parse(body []byte) (*Document, error) {
	tree := etree.NewDocument()
	if err := tree.ReadFromBytes(body); err != nil {
		return nil, newError(KindXMLParse, err)
	}

	root := tree.Root()
	if root == nil {
		return nil, newError(KindXMLParse, errNoRoot)
	}
	if !strings.EqualFold(root.Tag, "VAST") {
		return nil, newError(KindSchemaValidation, fmt.Errorf("root element is <%s>, want <VAST>", root.Tag))
	}

	ad := child(root, "Ad")
	if ad == nil {
		return nil, newError(KindSchemaValidation, errors.New("no <Ad> element"))
	}

	doc := &Document{
		Version:  attr(root, "version"),
		AdID:     attr(ad, "id"),
		Tracking: make(map[Event][]string),
	}

	if inline := child(ad, "InLine"); inline != nil {
		if err := doc.readInline(inline); err != nil {
			return nil, newError(KindSchemaValidation, err)
		}
		return doc, nil
	}

	if wrapper := child(ad, "Wrapper"); wrapper != nil {
		if err := doc.readWrapper(wrapper); err != nil {
			return nil, newError(KindSchemaValidation, err)
		}
		return doc, nil
	}

	return nil, newError(KindSchemaValidation, errors.New("<Ad> has neither <InLine> nor <Wrapper>"))
}

func (d *Document) readInline(inline *etree.Element) error {
	d.readCommon(inline)
	d.AdTitle = text(child(inline, "AdTitle"))

	if pricing := child(inline, "Pricing"); pricing != nil {
		if value, err := decimal.NewFromString(text(pricing)); err == nil {
			d.Price = &Price{
				Model:    attr(pricing, "model"),
				Currency: attr(pricing, "currency"),
				Value:    value,
			}
		}
	}

	linear := firstLinear(inline)
	if linear == nil {
		return errors.New("inline ad has no <Linear> creative")
	}
	d.readLinear(linear)

	if mediaFiles := child(linear, "MediaFiles"); mediaFiles != nil {
		for _, el := range children(mediaFiles, "MediaFile") {
			mf, err := parseMediaFile(el)
			if err != nil {
				d.DroppedMediaFiles++
				continue
			}
			d.MediaFiles = append(d.MediaFiles, mf)
		}
	}

	if duration := text(child(linear, "Duration")); duration != "" {
		if dur, err := ParseDuration(duration); err == nil {
			d.Duration = dur
		}
	}
	return nil
}

func (d *Document) readWrapper(wrapper *etree.Element) error {
	d.readCommon(wrapper)

	d.RedirectURL = text(child(wrapper, "VASTAdTagURI"))
	if d.RedirectURL == "" {
		return errors.New("wrapper has no <VASTAdTagURI>")
	}

	// Linear creatives are optional in wrappers and only add tracking.
	if linear := firstLinear(wrapper); linear != nil {
		d.readLinear(linear)
	}
	return nil
}

func (d *Document) readCommon(el *etree.Element) {
	d.AdSystem = text(child(el, "AdSystem"))
	d.Errors = appendURLs(d.Errors, children(el, "Error"))
	d.Impressions = appendURLs(d.Impressions, children(el, "Impression"))
}

func (d *Document) readLinear(linear *etree.Element) {
	if events := child(linear, "TrackingEvents"); events != nil {
		for _, tracking := range children(events, "Tracking") {
			name := attr(tracking, "event")
			url := text(tracking)
			if strings.TrimSpace(name) == "" || url == "" {
				continue
			}
			ev := ParseEvent(name)
			d.Tracking[ev] = append(d.Tracking[ev], url)
		}
	}

	if clicks := child(linear, "VideoClicks"); clicks != nil {
		d.ClickThrough = text(child(clicks, "ClickThrough"))
		d.ClickTracking = appendURLs(d.ClickTracking, children(clicks, "ClickTracking"))
	}
}

func parseMediaFile(el *etree.Element) (MediaFile, error) {
	mf := MediaFile{
		ID:       attr(el, "id"),
		URL:      text(el),
		MIMEType: attr(el, "type"),
		Delivery: strings.ToLower(attr(el, "delivery")),
	}
	if mf.URL == "" {
		return MediaFile{}, errMissingURL
	}

	var err error
	if mf.Width, err = intAttr(el, "width"); err != nil {
		return MediaFile{}, err
	}
	if mf.Height, err = intAttr(el, "height"); err != nil {
		return MediaFile{}, err
	}
	if mf.Bitrate, err = intAttr(el, "bitrate"); err != nil {
		return MediaFile{}, err
	}
	if mf.Bitrate == 0 {
		// Adaptive streams advertise a range instead of a single bitrate.
		if mf.Bitrate, err = intAttr(el, "maxBitrate"); err != nil {
			return MediaFile{}, err
		}
	}
	return mf, nil
}

// ParseDuration parses a VAST duration of the form HH:MM:SS or HH:MM:SS.mmm.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}

	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	seconds, err := strconv.ParseFloat(parts[2], 64)
	if err != nil || seconds < 0 || seconds >= 60 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}

	return time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds*float64(time.Second)), nil
}

func firstLinear(el *etree.Element) *etree.Element {
	creatives := child(el, "Creatives")
	if creatives == nil {
		return nil
	}
	for _, creative := range children(creatives, "Creative") {
		if linear := child(creative, "Linear"); linear != nil {
			return linear
		}
	}
	return nil
}

func child(el *etree.Element, tag string) *etree.Element {
	if el == nil {
		return nil
	}
	for _, c := range el.ChildElements() {
		if strings.EqualFold(c.Tag, tag) {
			return c
		}
	}
	return nil
}

func children(el *etree.Element, tag string) []*etree.Element {
	var out []*etree.Element
	for _, c := range el.ChildElements() {
		if strings.EqualFold(c.Tag, tag) {
			out = append(out, c)
		}
	}
	return out
}

func attr(el *etree.Element, key string) string {
	for _, a := range el.Attr {
		if strings.EqualFold(a.Key, key) {
			return strings.TrimSpace(a.Value)
		}
	}
	return ""
}

func intAttr(el *etree.Element, key string) (int, error) {
	v := attr(el, key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s=%q", errBadAttribute, key, v)
	}
	return n, nil
}

func text(el *etree.Element) string {
	if el == nil {
		return ""
	}
	return strings.TrimSpace(el.Text())
}

func appendURLs(dst []string, els []*etree.Element) []string {
	for _, el := range els {
		if url := text(el); url != "" {
			dst = append(dst, url)
		}
	}
	return dst
}
