// SPDX-FileCopyrightText: © 2024 Galaxygraph Authors
// SPDX-License-Identifier: BSD-2-Clause

// Package embedding decodes and owns the immutable artist point cloud: one
// record per artist with a 3D position, a popularity, and a color. The
// decoded Store never mutates after construction; restart from the same
// byte buffer is always a valid recovery path.
package embedding

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/galaxygraph/engine/errs"
)

// recordSize is the per-artist byte layout: u32 id, f32 x, f32 y, f32 z,
// u32 packed popularity+color.
const recordSize = 4 + 4 + 4 + 4 + 4

// Artist is immutable once decoded.
type Artist struct {
	ID         uint32
	X, Y, Z    float64
	Popularity uint8
	R, G, B    float32
}

// Store owns the decoded artist set in decode order, plus an id -> slot
// lookup. It never mutates after Decode returns successfully.
type Store struct {
	artists []Artist
	slotOf  map[uint32]int
}

// Decode parses a packed embedding byte buffer (see spec.md §6 "Packed
// embedding format"). It fails with a *CorruptEmbeddingError if the total
// length is not a multiple of the record size, if ids are not unique, or
// if any coordinate is non-finite.
//
// Colors are unpacked from bits 8..31 of the packed field (8 bits per
// channel, normalized to 0..1) when present. mobile trims nothing about
// decode correctness; it is accepted so callers can decide to skip derived
// color computation on constrained devices without a second code path.
func Decode(data []byte, mobile bool) (*Store, error) {
	if len(data)%recordSize != 0 {
		return nil, &errs.CorruptEmbeddingError{Reason: fmt.Sprintf(
			"length %d is not a multiple of the %d-byte record size", len(data), recordSize)}
	}
	count := len(data) / recordSize
	s := &Store{
		artists: make([]Artist, 0, count),
		slotOf:  make(map[uint32]int, count),
	}
	for i := 0; i < count; i++ {
		off := i * recordSize
		rec := data[off : off+recordSize]
		id := binary.LittleEndian.Uint32(rec[0:4])
		x := math.Float32frombits(binary.LittleEndian.Uint32(rec[4:8]))
		y := math.Float32frombits(binary.LittleEndian.Uint32(rec[8:12]))
		z := math.Float32frombits(binary.LittleEndian.Uint32(rec[12:16]))
		packed := binary.LittleEndian.Uint32(rec[16:20])

		if !isFinite32(x) || !isFinite32(y) || !isFinite32(z) {
			return nil, &errs.CorruptEmbeddingError{Reason: fmt.Sprintf(
				"artist %d has a non-finite coordinate", id)}
		}
		if _, dup := s.slotOf[id]; dup {
			return nil, &errs.CorruptEmbeddingError{Reason: fmt.Sprintf(
				"duplicate artist id %d", id)}
		}

		popularity := uint8(packed & 0xff)
		r := float32((packed>>8)&0xff) / 255.0
		g := float32((packed>>16)&0xff) / 255.0
		b := float32((packed>>24)&0xff) / 255.0

		s.slotOf[id] = len(s.artists)
		s.artists = append(s.artists, Artist{
			ID: id, X: float64(x), Y: float64(y), Z: float64(z),
			Popularity: popularity, R: r, G: g, B: b,
		})
	}
	return s, nil
}

// isFinite32 rejects NaN and +/-Inf, the only non-finite states an f32 can hold.
func isFinite32(f float32) bool {
	return !math.IsNaN(float64(f)) && !math.IsInf(float64(f), 0)
}

// Count returns the number of decoded artists.
func (s *Store) Count() int { return len(s.artists) }

// Get returns the artist with the given id, and whether it was found.
func (s *Store) Get(id uint32) (Artist, bool) {
	idx, ok := s.slotOf[id]
	if !ok {
		return Artist{}, false
	}
	return s.artists[idx], true
}

// All returns every decoded artist, in decode order. The returned slice is
// owned by the Store and must not be modified.
func (s *Store) All() []Artist { return s.artists }

// Popularity returns the decoded popularity for id, and whether id is
// known. Used by the scheduler's popularity-vs-distance label threshold
// and by orbit mode's fixed top-K selection.
func (s *Store) Popularity(id uint32) (uint8, bool) {
	idx, ok := s.slotOf[id]
	if !ok {
		return 0, false
	}
	return s.artists[idx].Popularity, true
}

// Position returns the decoded position for id, and whether id is known.
// Satisfies relationship.PositionLookup.
func (s *Store) Position(id uint32) (x, y, z float64, ok bool) {
	idx, found := s.slotOf[id]
	if !found {
		return 0, 0, 0, false
	}
	a := s.artists[idx]
	return a.X, a.Y, a.Z, true
}

// Color returns the decoded linear-RGB color for id, and whether id is
// known. Satisfies relationship.PositionLookup.
func (s *Store) Color(id uint32) (r, g, b float32, ok bool) {
	idx, found := s.slotOf[id]
	if !found {
		return 0, 0, 0, false
	}
	a := s.artists[idx]
	return a.R, a.G, a.B, true
}

// ColorsView returns a concatenated buffer of (id as f32 bits, r, g, b)
// quadruples, ready for bulk transfer to the renderer, as described in
// spec.md §4.1.
func (s *Store) ColorsView() []float32 {
	view := make([]float32, 0, len(s.artists)*4)
	for _, a := range s.artists {
		view = append(view, math.Float32frombits(a.ID), a.R, a.G, a.B)
	}
	return view
}

// AllArtistData packs (id, x, y, z, popularity) per spec.md §6
// get_all_artist_data, flattened as alternating u32/f32 bit patterns for a
// single-buffer transfer: [idBits, xBits, yBits, zBits, popularityBits]*N.
func (s *Store) AllArtistData() []uint32 {
	out := make([]uint32, 0, len(s.artists)*5)
	for _, a := range s.artists {
		out = append(out,
			a.ID,
			math.Float32bits(float32(a.X)),
			math.Float32bits(float32(a.Y)),
			math.Float32bits(float32(a.Z)),
			uint32(a.Popularity),
		)
	}
	return out
}
