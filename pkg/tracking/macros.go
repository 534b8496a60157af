// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tracking

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

const (
	MacroErrorCode    = "ERRORCODE"
	MacroCacheBusting = "CACHEBUSTING"
	MacroTimestamp    = "TIMESTAMP"
)

// Macros holds the values substituted into tracking URLs. Empty values
// leave their macro untouched.
type Macros struct {
	ErrorCode    int
	CacheBusting string
	Timestamp    time.Time
}

// NewMacros returns macros for a dispatch happening now.
func NewMacros() Macros {
	return Macros{
		CacheBusting: fmt.Sprintf("%08d", rand.Intn(100_000_000)),
		Timestamp:    time.Now(),
	}
}

// Expand substitutes every known macro in url, in both its bracketed and
// percent-encoded forms.
func (m Macros) Expand(url string) string {
	if !strings.Contains(url, "[") && !strings.Contains(url, "%5") {
		return url
	}

	values := make(map[string]string, 3)
	if m.ErrorCode > 0 {
		values[MacroErrorCode] = strconv.Itoa(m.ErrorCode)
	}
	if m.CacheBusting != "" {
		values[MacroCacheBusting] = m.CacheBusting
	}
	if !m.Timestamp.IsZero() {
		values[MacroTimestamp] = m.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	}

	pairs := make([]string, 0, len(values)*6)
	for key, value := range values {
		pairs = append(pairs,
			"["+key+"]", value,
			"%5B"+key+"%5D", value,
			"%5b"+key+"%5d", value,
		)
	}
	return strings.NewReplacer(pairs...).Replace(url)
}

// ExpandErrorCode substitutes the VAST error code into url.
func ExpandErrorCode(url string, code int) string {
	return Macros{ErrorCode: code}.Expand(url)
}
