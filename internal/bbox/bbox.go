// Package bbox accumulates the extent of node coordinates stored as
// degrees * 1e7.
package bbox

import (
	"fmt"
	"math"

	"github.com/wegman-software/osm-admin/internal/config"
	"github.com/wegman-software/osm-admin/internal/join"
)

// Box is a bounding box in scaled coordinates.
type Box struct {
	MinLon, MinLat, MaxLon, MaxLat int32
}

func (b Box) String() string {
	return fmt.Sprintf("%.7f,%.7f,%.7f,%.7f",
		float64(b.MinLon)/1e7, float64(b.MinLat)/1e7, float64(b.MaxLon)/1e7, float64(b.MaxLat)/1e7)
}

// FromConfig scales a box given in degrees.
func FromConfig(c config.BBox) Box {
	return Box{
		MinLon: scale(c.MinLon),
		MinLat: scale(c.MinLat),
		MaxLon: scale(c.MaxLon),
		MaxLat: scale(c.MaxLat),
	}
}

func scale(deg float64) int32 {
	return int32(math.Round(deg * 1e7))
}

// Accumulator grows a box one point at a time.
type Accumulator struct {
	box Box
	set bool
}

// Add expands the box to include (lat, lon).
func (a *Accumulator) Add(lat, lon int32) {
	if !a.set {
		a.box = Box{MinLon: lon, MinLat: lat, MaxLon: lon, MaxLat: lat}
		a.set = true
		return
	}
	a.box.MinLon = min(a.box.MinLon, lon)
	a.box.MaxLon = max(a.box.MaxLon, lon)
	a.box.MinLat = min(a.box.MinLat, lat)
	a.box.MaxLat = max(a.box.MaxLat, lat)
}

// Box returns the accumulated box, or false when no point was added.
func (a *Accumulator) Box() (Box, bool) {
	return a.box, a.set
}

// Point is what a scan needs to know about one element.
type Point struct {
	IsNode  bool
	Visible bool
	Lat     int32
	Lon     int32
}

// Calculate scans s for visible nodes. Nodes precede ways and relations in
// an element stream, so the scan stops at the first element that is not a
// node. The result is nil when there was no visible node.
func Calculate[T any](s join.Stream[T], point func(T) Point) (*Box, int64, error) {
	var acc Accumulator
	var scanned int64
	for s.Next() {
		p := point(s.Value())
		if !p.IsNode {
			break
		}
		scanned++
		if p.Visible {
			acc.Add(p.Lat, p.Lon)
		}
	}
	if err := s.Err(); err != nil {
		return nil, scanned, err
	}
	if b, ok := acc.Box(); ok {
		return &b, scanned, nil
	}
	return nil, scanned, nil
}
