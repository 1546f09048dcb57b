// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

// Package geo provides the spherical geometry used by the detectors:
// great-circle distance, bearings, polygon containment and a proximity grid.
package geo

import "math"

const (
	earthRadiusKm = 6371.0

	// CoordinateEpsilon is the tolerance below which a coordinate is treated
	// as zero. Capture tools write (0,0) when no fix is available.
	CoordinateEpsilon = 1e-7
)

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// IsUnknownLocation reports whether p is the (0,0) placeholder.
func IsUnknownLocation(p Point) bool {
	return math.Abs(p.Lat) < CoordinateEpsilon && math.Abs(p.Lon) < CoordinateEpsilon
}

// Valid reports whether p lies within WGS84 bounds.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180 &&
		!math.IsNaN(p.Lat) && !math.IsNaN(p.Lon)
}

// HaversineKm returns the great-circle distance between a and b.
func HaversineKm(a, b Point) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLon := toRadians(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// HaversineM returns the great-circle distance in meters.
func HaversineM(a, b Point) float64 {
	return HaversineKm(a, b) * 1000
}

// BearingDegrees returns the initial bearing from a to b in [0,360).
func BearingDegrees(a, b Point) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLon := toRadians(b.Lon - a.Lon)

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)

	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// CircularVariance returns 1 - R where R is the mean resultant length of the
// bearings. 0 means every bearing is identical, 1 means uniformly spread.
// Fewer than two bearings yield 0.
func CircularVariance(bearings []float64) float64 {
	if len(bearings) < 2 {
		return 0
	}
	var sumSin, sumCos float64
	for _, b := range bearings {
		r := toRadians(b)
		sumSin += math.Sin(r)
		sumCos += math.Cos(r)
	}
	n := float64(len(bearings))
	r := math.Sqrt(sumSin*sumSin+sumCos*sumCos) / n
	return clamp01(1 - r)
}

// Polygon is a closed ring of vertices. The closing edge is implicit.
type Polygon []Point

// Contains reports whether p lies inside the polygon using ray casting.
// Polygons with fewer than three vertices contain nothing.
func (poly Polygon) Contains(p Point) bool {
	n := len(poly)
	if n < 3 {
		return false
	}

	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		vi, vj := poly[i], poly[j]
		if (vi.Lat > p.Lat) != (vj.Lat > p.Lat) {
			crossLon := (vj.Lon-vi.Lon)*(p.Lat-vi.Lat)/(vj.Lat-vi.Lat) + vi.Lon
			if p.Lon < crossLon {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// Centroid returns the arithmetic mean of the given points.
func Centroid(points []Point) Point {
	if len(points) == 0 {
		return Point{}
	}
	var c Point
	for _, p := range points {
		c.Lat += p.Lat
		c.Lon += p.Lon
	}
	n := float64(len(points))
	return Point{Lat: c.Lat / n, Lon: c.Lon / n}
}

// Round2 rounds v to two decimals for evidence payloads.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
