// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package geo

import (
	"math"
	"time"
)

// kmPerDegree is the approximate length of one degree of latitude.
const kmPerDegree = 111.0

type cellKey struct {
	x, y int
}

// Entry is a point stored in a Grid.
type Entry[T any] struct {
	Point Point
	Time  time.Time
	Value T
}

// Grid buckets points into fixed-size cells so radius queries only visit
// neighbouring cells instead of every point. Detectors build one per run, so
// it is not safe for concurrent mutation.
type Grid[T any] struct {
	cellDeg float64
	// lonCells is the number of cells around a parallel; x indices wrap
	// at the antimeridian.
	lonCells int
	cells    map[cellKey][]*Entry[T]
	size     int
}

// NewGrid creates a grid whose cells are roughly cellSizeKm wide. Pick a
// cell size close to the typical query radius.
func NewGrid[T any](cellSizeKm float64) *Grid[T] {
	if cellSizeKm <= 0 {
		cellSizeKm = 1
	}
	cellDeg := cellSizeKm / kmPerDegree
	return &Grid[T]{
		cellDeg:  cellDeg,
		lonCells: int(math.Ceil(360 / cellDeg)),
		cells:    make(map[cellKey][]*Entry[T]),
	}
}

func (g *Grid[T]) key(p Point) cellKey {
	// Offset from the antimeridian, in [0, 360).
	lon := math.Mod(p.Lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return cellKey{
		x: g.wrapX(int(math.Floor(lon / g.cellDeg))),
		y: int(math.Floor(p.Lat / g.cellDeg)),
	}
}

func (g *Grid[T]) wrapX(x int) int {
	x %= g.lonCells
	if x < 0 {
		x += g.lonCells
	}
	return x
}

// Insert adds a point.
func (g *Grid[T]) Insert(p Point, t time.Time, value T) {
	k := g.key(p)
	g.cells[k] = append(g.cells[k], &Entry[T]{Point: p, Time: t, Value: value})
	g.size++
}

// Len returns the number of stored points.
func (g *Grid[T]) Len() int {
	return g.size
}

// QueryNearby returns entries within radiusKm of p.
func (g *Grid[T]) QueryNearby(p Point, radiusKm float64) []*Entry[T] {
	return g.query(p, radiusKm, func(*Entry[T]) bool { return true })
}

// QueryNearbyWithin returns entries within radiusKm of p whose time lies in
// [from, to].
func (g *Grid[T]) QueryNearbyWithin(p Point, radiusKm float64, from, to time.Time) []*Entry[T] {
	return g.query(p, radiusKm, func(e *Entry[T]) bool {
		return !e.Time.Before(from) && !e.Time.After(to)
	})
}

func (g *Grid[T]) query(p Point, radiusKm float64, keep func(*Entry[T]) bool) []*Entry[T] {
	// Longitude cells shrink towards the poles; widen the x span accordingly.
	spanY := int(math.Ceil(radiusKm/kmPerDegree/g.cellDeg)) + 1
	cosLat := math.Cos(toRadians(p.Lat))
	spanX := spanY
	if cosLat > 0.01 {
		spanX = int(math.Ceil(radiusKm/(kmPerDegree*cosLat)/g.cellDeg)) + 1
	}
	center := g.key(p)

	// A span covering every longitude would visit wrapped cells twice.
	fromX, toX := center.x-spanX, center.x+spanX
	if 2*spanX+1 >= g.lonCells {
		fromX, toX = 0, g.lonCells-1
	}

	var out []*Entry[T]
	for x := fromX; x <= toX; x++ {
		for dy := -spanY; dy <= spanY; dy++ {
			for _, e := range g.cells[cellKey{x: g.wrapX(x), y: center.y + dy}] {
				if !keep(e) {
					continue
				}
				if HaversineKm(p, e.Point) <= radiusKm {
					out = append(out, e)
				}
			}
		}
	}
	return out
}
