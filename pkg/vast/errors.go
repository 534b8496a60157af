// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vast

import (
	"errors"
	"fmt"
)

// Kind classifies a failed resolution.
type Kind uint8

const (
	KindNone Kind = iota
	KindXMLParse
	KindSchemaValidation
	KindTooManyWrappers
	KindNoCompatibleMediaFile
	KindNoInternetConnection
	KindMovieTooShort
)

var (
	ErrXMLParse              = errors.New("vast: malformed XML")
	ErrSchemaValidation      = errors.New("vast: schema validation failed")
	ErrTooManyWrappers       = errors.New("vast: too many wrappers")
	ErrNoCompatibleMediaFile = errors.New("vast: no compatible media file")
	ErrNoInternetConnection  = errors.New("vast: document fetch failed")
	ErrMovieTooShort         = errors.New("vast: media duration below minimum")
)

var kindSentinels = map[Kind]error{
	KindXMLParse:              ErrXMLParse,
	KindSchemaValidation:      ErrSchemaValidation,
	KindTooManyWrappers:       ErrTooManyWrappers,
	KindNoCompatibleMediaFile: ErrNoCompatibleMediaFile,
	KindNoInternetConnection:  ErrNoInternetConnection,
	KindMovieTooShort:         ErrMovieTooShort,
}

var kindNames = map[Kind]string{
	KindNone:                  "none",
	KindXMLParse:              "xml_parse",
	KindSchemaValidation:      "schema_validation",
	KindTooManyWrappers:       "too_many_wrappers",
	KindNoCompatibleMediaFile: "no_compatible_media_file",
	KindNoInternetConnection:  "no_internet_connection",
	KindMovieTooShort:         "movie_too_short",
}

// VAST 3 error codes reported through [ERRORCODE].
var kindCodes = map[Kind]int{
	KindXMLParse:              100,
	KindSchemaValidation:      101,
	KindTooManyWrappers:       302,
	KindNoCompatibleMediaFile: 403,
	KindNoInternetConnection:  301,
	KindMovieTooShort:         202,
}

// CodePlaybackError is the VAST code for a media file that failed to play.
const CodePlaybackError = 405

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Code returns the VAST error code for the kind, or 900 (undefined error).
func (k Kind) Code() int {
	if code, ok := kindCodes[k]; ok {
		return code
	}
	return 900
}

// Error is a failed resolution. It matches both its kind sentinel and its
// cause with errors.Is.
type Error struct {
	Kind Kind
	URL  string
	Hop  int
	Err  error
}

func (e *Error) Error() string {
	msg := kindSentinels[e.Kind].Error()
	if e.URL != "" {
		msg = fmt.Sprintf("%s (hop %d, %s)", msg, e.Hop, e.URL)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	errs := []error{kindSentinels[e.Kind]}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the resolution failure kind carried by err.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var verr *Error
	if errors.As(err, &verr) {
		return verr.Kind
	}
	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindNone
}
