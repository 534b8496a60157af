// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vast

import (
	"slices"
	"strings"

	"github.com/prebid/openrtb/v20/adcom1"
	"github.com/prebid/openrtb/v20/openrtb2"
)

// Capabilities describes what the playback surface can handle. Zero values
// leave the corresponding dimension unconstrained.
type Capabilities struct {
	// MIMETypes the player can decode; empty accepts any type.
	MIMETypes []string
	// Deliveries accepted ("progressive", "streaming"); empty accepts any.
	Deliveries []string

	// Display size the selection tries to match.
	DisplayWidth  int
	DisplayHeight int

	// Ceilings; files exceeding them are excluded.
	MaxWidth   int
	MaxHeight  int
	MaxBitrate int // kbps
}

// Playable reports whether mf passes every capability filter.
func (c Capabilities) Playable(mf MediaFile) bool {
	if len(c.MIMETypes) > 0 && !slices.ContainsFunc(c.MIMETypes, func(t string) bool {
		return baseMIME(t) == baseMIME(mf.MIMEType)
	}) {
		return false
	}
	if len(c.Deliveries) > 0 && mf.Delivery != "" && !slices.ContainsFunc(c.Deliveries, func(d string) bool {
		return strings.EqualFold(d, mf.Delivery)
	}) {
		return false
	}
	if c.MaxBitrate > 0 && mf.Bitrate > c.MaxBitrate {
		return false
	}
	if c.MaxWidth > 0 && mf.Width > c.MaxWidth {
		return false
	}
	if c.MaxHeight > 0 && mf.Height > c.MaxHeight {
		return false
	}
	return true
}

// SelectMediaFile returns the best playable file: the one closest to the
// display size, then the highest bitrate, then the earliest in the document.
// Files with unknown dimensions rank after files with known dimensions.
func SelectMediaFile(files []MediaFile, caps Capabilities) (MediaFile, bool) {
	best := -1
	for i, mf := range files {
		if !caps.Playable(mf) {
			continue
		}
		if best < 0 || caps.better(mf, files[best]) {
			best = i
		}
	}
	if best < 0 {
		return MediaFile{}, false
	}
	return files[best], true
}

// better reports whether a strictly outranks b.
func (c Capabilities) better(a, b MediaFile) bool {
	aKnown, bKnown := a.Width > 0 && a.Height > 0, b.Width > 0 && b.Height > 0
	if aKnown != bKnown {
		return aKnown
	}
	if aKnown {
		da, db := c.distance(a), c.distance(b)
		if da != db {
			return da < db
		}
	}
	return a.Bitrate > b.Bitrate
}

func (c Capabilities) distance(mf MediaFile) int {
	var d int
	if c.DisplayWidth > 0 {
		d += abs(c.DisplayWidth - mf.Width)
	}
	if c.DisplayHeight > 0 {
		d += abs(c.DisplayHeight - mf.Height)
	}
	return d
}

// CapabilitiesFromVideo derives capabilities from an OpenRTB video object.
func CapabilitiesFromVideo(video *openrtb2.Video) Capabilities {
	if video == nil {
		return Capabilities{}
	}

	caps := Capabilities{
		MIMETypes:  slices.Clone(video.MIMEs),
		MaxBitrate: int(video.MaxBitRate),
	}
	if video.W != nil {
		caps.DisplayWidth = int(*video.W)
	}
	if video.H != nil {
		caps.DisplayHeight = int(*video.H)
	}

	for _, method := range video.Delivery {
		var name string
		switch method {
		case adcom1.DeliveryStreaming:
			name = "streaming"
		case adcom1.DeliveryProgressive, adcom1.DeliveryDownload:
			name = "progressive"
		default:
			continue
		}
		if !slices.Contains(caps.Deliveries, name) {
			caps.Deliveries = append(caps.Deliveries, name)
		}
	}
	return caps
}

func baseMIME(t string) string {
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return strings.ToLower(strings.TrimSpace(t))
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
