package ingress

import (
	"bytes"
	"errors"
	"unicode/utf8"
)

const (
	// ResultMarker precedes the card token in a device payload.
	ResultMarker = "vgdecoderesult="
	// DeviceMarker follows the card token.
	DeviceMarker = "&&devicenumber"
)

var (
	ErrEmptyBody     = errors.New("ingress: empty body")
	ErrNotText       = errors.New("ingress: body is not text")
	ErrMissingMarker = errors.New("ingress: marker not found")
	ErrEmptyToken    = errors.New("ingress: empty card token")
)

// ParseCardToken extracts the card token that sits between ResultMarker and
// the first DeviceMarker of a raw device payload.
func ParseCardToken(body []byte) (string, error) {
	if len(body) == 0 {
		return "", ErrEmptyBody
	}
	if !utf8.Valid(body) {
		return "", ErrNotText
	}

	start := bytes.Index(body, []byte(ResultMarker))
	end := bytes.Index(body, []byte(DeviceMarker))
	if start < 0 || end < 0 {
		return "", ErrMissingMarker
	}

	start += len(ResultMarker)
	if end <= start {
		return "", ErrEmptyToken
	}

	return string(body[start:end]), nil
}
