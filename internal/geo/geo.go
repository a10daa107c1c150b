package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	LatMin = -90.0
	LatMax = 90.0
	LonMin = -180.0
	LonMax = 180.0
)

// Location is a point on the map a photo search is anchored to
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate reports whether the location lies inside the global lat/lon domain
func (l Location) Validate() error {
	if math.IsNaN(l.Latitude) || l.Latitude < LatMin || l.Latitude > LatMax {
		return fmt.Errorf("latitude %v out of range [%v, %v]", l.Latitude, LatMin, LatMax)
	}
	if math.IsNaN(l.Longitude) || l.Longitude < LonMin || l.Longitude > LonMax {
		return fmt.Errorf("longitude %v out of range [%v, %v]", l.Longitude, LonMin, LonMax)
	}
	return nil
}

func (l Location) String() string {
	return fmt.Sprintf("(%g, %g)", l.Latitude, l.Longitude)
}

// BoundingBox is a lon/lat rectangle clamped to the global domain
type BoundingBox struct {
	MinLon float64
	MinLat float64
	MaxLon float64
	MaxLat float64
}

// String formats the box the way the photo API expects it: "minLon,minLat,maxLon,maxLat"
func (b BoundingBox) String() string {
	parts := []string{
		formatCoord(b.MinLon),
		formatCoord(b.MinLat),
		formatCoord(b.MaxLon),
		formatCoord(b.MaxLat),
	}
	return strings.Join(parts, ",")
}

// Contains reports whether loc falls inside the box, edges included
func (b BoundingBox) Contains(loc Location) bool {
	return loc.Longitude >= b.MinLon && loc.Longitude <= b.MaxLon &&
		loc.Latitude >= b.MinLat && loc.Latitude <= b.MaxLat
}

// ComputeBoundingBox clamps a box around loc into the valid lon/lat domain.
//
// halfWidth only widens the lower longitude bound; the upper longitude bound
// and both latitude bounds use halfHeight. This matches the behaviour the
// album has always shipped with and is kept until product confirms the intent.
// Negative extents are treated as zero and an out-of-domain center is
// clamped first, so the result always satisfies min <= max.
func ComputeBoundingBox(loc Location, halfWidth, halfHeight float64) BoundingBox {
	halfWidth = math.Max(halfWidth, 0)
	halfHeight = math.Max(halfHeight, 0)
	lon := clamp(loc.Longitude, LonMin, LonMax)
	lat := clamp(loc.Latitude, LatMin, LatMax)

	return BoundingBox{
		MinLon: math.Max(lon-halfWidth, LonMin),
		MinLat: math.Max(lat-halfHeight, LatMin),
		MaxLon: math.Min(lon+halfHeight, LonMax),
		MaxLat: math.Min(lat+halfHeight, LatMax),
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
