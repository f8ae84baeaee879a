// SPDX-FileCopyrightText: © 2024 Galaxygraph Authors
// SPDX-License-Identifier: BSD-2-Clause

// Package relationship decodes artist-to-artist edges and rebuilds the
// renderer-facing position/color line-segment buffers on demand. Each
// buffer is rebuilt from current state on every call rather than patched
// in place, after the teacher engine's frames.snap/drawFrame rebuild idiom
// (see gazed/vu/frame.go); a fresh slice is returned each time.
package relationship

import (
	"encoding/binary"
	"log"

	"github.com/galaxygraph/engine/errs"
	"github.com/galaxygraph/engine/scheduler"
)

// chunkHeaderSize is the fixed prefix of a relationship chunk: u32
// source_id_base, u32 source_count (spec.md §6 relationship chunk format).
const chunkHeaderSize = 4 + 4

// Edge is a decoded artist-to-artist relationship: an unweighted directed
// edge from the chunk's per-source target list.
type Edge struct {
	Source, Target uint32
}

// PositionLookup resolves an artist id to its 3D position. The scheduler's
// embedding store satisfies this.
type PositionLookup interface {
	Position(id uint32) (x, y, z float64, ok bool)
	Color(id uint32) (r, g, b float32, ok bool)
}

// Store owns the decoded edge set; the render buffers are derived from it
// on demand and not retained.
type Store struct {
	edges []Edge
	// adjacency indexes edges touching an id, used by highlight backbone
	// selection.
	adjacency map[uint32][]int
}

// New returns an empty Store ready to accept chunks via AppendChunk, for
// the case where relationship data arrives as a stream of chunks rather
// than one buffer (spec.md §6 handle_artist_relationship_data).
func New() *Store {
	return &Store{adjacency: make(map[uint32][]int)}
}

// Decode parses a single packed relationship-chunk byte buffer into a new
// Store. Edges referencing an id absent from lookup are logged and
// dropped (spec.md §7 UnknownArtistError is a recoverable condition,
// never returned here).
func Decode(data []byte, lookup PositionLookup) (*Store, error) {
	s := New()
	if err := s.AppendChunk(data, lookup); err != nil {
		return nil, err
	}
	return s, nil
}

// AppendChunk decodes one additional relationship chunk and merges its
// edges into s. Chunks may arrive out of order (spec.md §4.3); merging
// into the same adjacency index rather than replacing the Store lets late
// or re-delivered chunks simply add more edges.
//
// Chunk layout (spec.md §6): u32 source_id_base, u32 source_count, then
// for each of source_count sources (the i-th source's id is
// source_id_base+i): u16 target_count, u32 target_ids[target_count].
func (s *Store) AppendChunk(data []byte, lookup PositionLookup) error {
	if len(data) < chunkHeaderSize {
		return &errs.CorruptEmbeddingError{Reason: "relationship chunk shorter than its header"}
	}
	sourceIDBase := binary.LittleEndian.Uint32(data[0:4])
	sourceCount := binary.LittleEndian.Uint32(data[4:8])

	off := chunkHeaderSize
	for i := uint32(0); i < sourceCount; i++ {
		if off+2 > len(data) {
			return &errs.CorruptEmbeddingError{Reason: "relationship chunk truncated before a target count"}
		}
		targetCount := binary.LittleEndian.Uint16(data[off : off+2])
		off += 2

		srcID := sourceIDBase + i
		srcKnown := true
		if _, _, _, ok := lookup.Position(srcID); !ok {
			log.Printf("relationship: dropping source, %v", &errs.UnknownArtistError{ID: srcID})
			srcKnown = false
		}

		for j := uint16(0); j < targetCount; j++ {
			if off+4 > len(data) {
				return &errs.CorruptEmbeddingError{Reason: "relationship chunk truncated before a target id"}
			}
			dstID := binary.LittleEndian.Uint32(data[off : off+4])
			off += 4

			if !srcKnown {
				continue
			}
			if _, _, _, ok := lookup.Position(dstID); !ok {
				log.Printf("relationship: dropping edge, %v", &errs.UnknownArtistError{ID: dstID})
				continue
			}

			idx := len(s.edges)
			s.edges = append(s.edges, Edge{Source: srcID, Target: dstID})
			s.adjacency[srcID] = append(s.adjacency[srcID], idx)
			s.adjacency[dstID] = append(s.adjacency[dstID], idx)
		}
	}
	if off != len(data) {
		return &errs.CorruptEmbeddingError{Reason: "relationship chunk has trailing bytes past its declared sources"}
	}
	return nil
}

// Count returns the number of decoded edges.
func (s *Store) Count() int { return len(s.edges) }

// EdgesOf returns every edge touching id.
func (s *Store) EdgesOf(id uint32) []Edge {
	idxs := s.adjacency[id]
	out := make([]Edge, len(idxs))
	for i, idx := range idxs {
		out[i] = s.edges[idx]
	}
	return out
}

// Backbone returns the ids of every edge endpoint touching any member of
// highlighted, excluding ids already in highlighted: the far ends of the
// inter edges. It returns ids only; BackboneBuffer builds the intra/inter
// position buffers.
func (s *Store) Backbone(highlighted map[uint32]bool) []uint32 {
	seen := make(map[uint32]bool)
	var out []uint32
	for id := range highlighted {
		for _, idx := range s.adjacency[id] {
			e := s.edges[idx]
			other := e.Target
			if other == id {
				other = e.Source
			}
			if highlighted[other] || seen[other] {
				continue
			}
			seen[other] = true
			out = append(out, other)
		}
	}
	return out
}

// BackboneBuffer returns the flattened (x0,y0,z0,x1,y1,z1) position buffer
// for the highlighted-set backbone (spec.md §4.3, §6
// get_connections_for_artists): with intra=true, edges where both
// endpoints are in highlighted; with intra=false, edges where exactly one
// endpoint is. Always full fidelity, independent of the current quality
// stride, since the highlighted set is expected to be small.
func (s *Store) BackboneBuffer(lookup PositionLookup, highlighted map[uint32]bool, intra bool) []float32 {
	var buf []float32
	for _, e := range s.edges {
		srcIn, dstIn := highlighted[e.Source], highlighted[e.Target]
		var include bool
		if intra {
			include = srcIn && dstIn
		} else {
			include = srcIn != dstIn
		}
		if !include {
			continue
		}
		sx, sy, sz, ok1 := lookup.Position(e.Source)
		tx, ty, tz, ok2 := lookup.Position(e.Target)
		if !ok1 || !ok2 {
			continue
		}
		buf = append(buf, float32(sx), float32(sy), float32(sz), float32(tx), float32(ty), float32(tz))
	}
	return buf
}

// lerp blends two linear RGB components. The Open Question in spec.md §4.3
// over perceptual-vs-linear color blending is resolved in favor of plain
// linear blending, matching the V3 lerp idiom used throughout math/lin.
func lerp(a, b, t float32) float32 { return a + (b-a)*t }

// PositionBuffer rebuilds the flattened (x0,y0,z0,x1,y1,z1) per-edge
// position buffer at the given quality. Quality controls the edge stride
// (spec.md §4.7): only every Nth edge, by decode order, is emitted.
func (s *Store) PositionBuffer(lookup PositionLookup, quality int) []float32 {
	stride := scheduler.EdgeStride(quality)
	buf := make([]float32, 0, (len(s.edges)/stride+1)*6)
	for i := 0; i < len(s.edges); i += stride {
		e := s.edges[i]
		sx, sy, sz, ok1 := lookup.Position(e.Source)
		tx, ty, tz, ok2 := lookup.Position(e.Target)
		if !ok1 || !ok2 {
			continue
		}
		buf = append(buf, float32(sx), float32(sy), float32(sz), float32(tx), float32(ty), float32(tz))
	}
	return buf
}

// ColorBuffer rebuilds the flattened (r0,g0,b0,r1,g1,b1) per-edge color
// buffer at the given quality, blending each edge's endpoint colors
// linearly so the line itself never needs a gradient shader.
func (s *Store) ColorBuffer(lookup PositionLookup, quality int) []float32 {
	stride := scheduler.EdgeStride(quality)
	buf := make([]float32, 0, (len(s.edges)/stride+1)*6)
	for i := 0; i < len(s.edges); i += stride {
		e := s.edges[i]
		sr, sg, sb, ok1 := lookup.Color(e.Source)
		tr, tg, tb, ok2 := lookup.Color(e.Target)
		if !ok1 || !ok2 {
			continue
		}
		buf = append(buf, lerp(sr, tr, 0.5), lerp(sg, tg, 0.5), lerp(sb, tb, 0.5),
			lerp(sr, tr, 0.5), lerp(sg, tg, 0.5), lerp(sb, tb, 0.5))
	}
	return buf
}
