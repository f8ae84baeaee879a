// SPDX-FileCopyrightText: © 2024 Galaxygraph Authors
// SPDX-License-Identifier: BSD-2-Clause

// Package spatial answers k-nearest/radius queries over the artist point
// cloud. Built once over the Embedding Store and never mutated, it follows
// the same "New(...) returns a read-only structure with a small query
// surface" shape as the teacher engine's grid package (see
// gazed/vu/grid/grid.go), generalized from a 2D maze cell grid into a
// uniform 3D bucket grid over artist positions.
package spatial

import (
	"sort"

	"github.com/galaxygraph/engine/math/lin"
)

// Point is a single artist position as seen by the index.
type Point struct {
	ID  uint32
	Pos lin.V3
}

type cellKey struct{ x, y, z int32 }

// Index is a read-only uniform grid over a fixed set of points. The
// embedding spans roughly ±2e5 units; a cell edge in the 1-5k unit range
// (Build's cellSize argument) keeps buckets small without fragmenting queries across
// too many cells.
type Index struct {
	cellSize float64
	buckets  map[cellKey][]uint32
	points   map[uint32]lin.V3
}

// Build constructs an Index over the given points. cellSize must be > 0.
func Build(points []Point, cellSize float64) *Index {
	if cellSize <= 0 {
		cellSize = 2000
	}
	ix := &Index{
		cellSize: cellSize,
		buckets:  make(map[cellKey][]uint32, len(points)),
		points:   make(map[uint32]lin.V3, len(points)),
	}
	for _, p := range points {
		ix.points[p.ID] = p.Pos
		k := ix.keyOf(p.Pos)
		ix.buckets[k] = append(ix.buckets[k], p.ID)
	}
	return ix
}

func (ix *Index) keyOf(p lin.V3) cellKey {
	return cellKey{
		x: int32(floorDiv(p.X, ix.cellSize)),
		y: int32(floorDiv(p.Y, ix.cellSize)),
		z: int32(floorDiv(p.Z, ix.cellSize)),
	}
}

func floorDiv(v, cell float64) float64 {
	q := v / cell
	if q < 0 {
		return q - 1
	}
	return q
}

// candidate pairs an id with its squared distance to the query point,
// used for the partial sort below.
type candidate struct {
	id      uint32
	distSqr float64
}

// QueryRadius returns up to k artist ids whose distance to p is <= r,
// ordered by ascending distance and, for ties, ascending id. Candidate
// gathering (an unordered scan of nearby cells) followed by a partial
// sort is the implementation freedom the spec explicitly allows.
func (ix *Index) QueryRadius(p lin.V3, r float64, k int) []uint32 {
	if k <= 0 || r < 0 {
		return nil
	}
	rSqr := r * r
	ringRadius := int32(r/ix.cellSize) + 1
	center := ix.keyOf(p)

	var candidates []candidate
	for dx := -ringRadius; dx <= ringRadius; dx++ {
		for dy := -ringRadius; dy <= ringRadius; dy++ {
			for dz := -ringRadius; dz <= ringRadius; dz++ {
				key := cellKey{center.x + dx, center.y + dy, center.z + dz}
				for _, id := range ix.buckets[key] {
					pos := ix.points[id]
					d := pos.DistSqr(&p)
					if d <= rSqr {
						candidates = append(candidates, candidate{id: id, distSqr: d})
					}
				}
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].distSqr != candidates[j].distSqr {
			return candidates[i].distSqr < candidates[j].distSqr
		}
		return candidates[i].id < candidates[j].id
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	out := make([]uint32, len(candidates))
	for i, c := range candidates {
		out[i] = c.id
	}
	return out
}

// Nearest returns the single nearest point within radius r of p, used by
// fly-mode ray picks upstream (spec.md §4.2 "point-in-box").
func (ix *Index) Nearest(p lin.V3, r float64) (id uint32, distSqr float64, found bool) {
	ids := ix.QueryRadius(p, r, 1)
	if len(ids) == 0 {
		return 0, 0, false
	}
	pos := ix.points[ids[0]]
	return ids[0], pos.DistSqr(&p), true
}

// DistSqr returns the squared distance from id's position to p, and
// whether id is known to the index.
func (ix *Index) DistSqr(id uint32, p lin.V3) (float64, bool) {
	pos, ok := ix.points[id]
	if !ok {
		return 0, false
	}
	return pos.DistSqr(&p), true
}
