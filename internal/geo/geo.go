// Package geo parses and formats RFC 5870 geo URIs
// (geo:<lat>,<lon>[;u=<alt>]).
package geo

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedLocation indicates a string that is not a valid geo URI.
var ErrMalformedLocation = errors.New("malformed geo URI")

// Point is a geographic coordinate with an optional altitude in meters.
type Point struct {
	Lat float64
	Lon float64
	Alt *float64
}

const scheme = "geo:"

// Parse decodes a geo URI. A `u=` parameter whose value does not parse as a
// number is treated as an absent altitude rather than an error, matching the
// lenient behavior clients already rely on.
func Parse(uri string) (Point, error) {
	rest, ok := strings.CutPrefix(uri, scheme)
	if !ok {
		return Point{}, fmt.Errorf("%w: %q is missing the geo scheme", ErrMalformedLocation, uri)
	}

	coords, params, _ := strings.Cut(rest, ";")
	latStr, lonStr, ok := strings.Cut(coords, ",")
	if !ok {
		return Point{}, fmt.Errorf("%w: %q has no longitude", ErrMalformedLocation, uri)
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return Point{}, fmt.Errorf("%w: bad latitude %q", ErrMalformedLocation, latStr)
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return Point{}, fmt.Errorf("%w: bad longitude %q", ErrMalformedLocation, lonStr)
	}

	p := Point{Lat: lat, Lon: lon}
	for param := range strings.SplitSeq(params, ";") {
		value, ok := strings.CutPrefix(param, "u=")
		if !ok {
			continue
		}
		alt, err := strconv.ParseFloat(value, 64)
		if err != nil {
			continue
		}
		p.Alt = &alt
	}

	return p, nil
}

// Format encodes a point as a geo URI. Parse(Format(p)) recovers p exactly.
func Format(p Point) string {
	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString(strconv.FormatFloat(p.Lat, 'f', -1, 64))
	b.WriteByte(',')
	b.WriteString(strconv.FormatFloat(p.Lon, 'f', -1, 64))
	if p.Alt != nil {
		b.WriteString(";u=")
		b.WriteString(strconv.FormatFloat(*p.Alt, 'f', -1, 64))
	}
	return b.String()
}
