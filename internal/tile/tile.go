// Package tile computes the apidb quadtile index of a coordinate.
package tile

import "math"

// Scale maps degrees to 16 bit grid coordinates.
func Scale(lat, lon float64) (x, y uint32) {
	x = uint32(math.Round((lon + 180) * 65535 / 360))
	y = uint32(math.Round((lat + 90) * 65535 / 180))
	return x, y
}

// Interleave merges the low 16 bits of x and y, most significant bit
// first, x before y.
func Interleave(x, y uint32) int64 {
	var t uint64
	for i := 15; i >= 0; i-- {
		t = (t << 1) | uint64((x>>i)&1)
		t = (t << 1) | uint64((y>>i)&1)
	}
	return int64(t)
}

// For returns the tile of a coordinate in degrees.
func For(lat, lon float64) int64 {
	return Interleave(Scale(lat, lon))
}
