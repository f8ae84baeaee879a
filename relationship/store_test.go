// SPDX-FileCopyrightText: © 2024 Galaxygraph Authors
// SPDX-License-Identifier: BSD-2-Clause

package relationship

import (
	"encoding/binary"
	"testing"
)

type fakeLookup struct {
	pos map[uint32][3]float64
	col map[uint32][3]float32
}

func (f *fakeLookup) Position(id uint32) (float64, float64, float64, bool) {
	p, ok := f.pos[id]
	return p[0], p[1], p[2], ok
}

func (f *fakeLookup) Color(id uint32) (float32, float32, float32, bool) {
	c, ok := f.col[id]
	return c[0], c[1], c[2], ok
}

// packChunk builds a relationship chunk per spec.md §6's literal layout:
// u32 source_id_base, u32 source_count, then per source a u16 target_count
// followed by that many u32 target ids. The i-th entry in targetsPerSource
// is the target list for source id sourceIDBase+i.
func packChunk(sourceIDBase uint32, targetsPerSource ...[]uint32) []byte {
	buf := make([]byte, chunkHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], sourceIDBase)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(targetsPerSource)))
	for _, targets := range targetsPerSource {
		tc := make([]byte, 2)
		binary.LittleEndian.PutUint16(tc, uint16(len(targets)))
		buf = append(buf, tc...)
		for _, id := range targets {
			tb := make([]byte, 4)
			binary.LittleEndian.PutUint32(tb, id)
			buf = append(buf, tb...)
		}
	}
	return buf
}

func newLookup() *fakeLookup {
	return &fakeLookup{
		pos: map[uint32][3]float64{
			1: {0, 0, 0},
			2: {10, 0, 0},
			3: {0, 10, 0},
		},
		col: map[uint32][3]float32{
			1: {1, 0, 0},
			2: {0, 1, 0},
			3: {0, 0, 1},
		},
	}
}

func TestDecodeValidEdges(t *testing.T) {
	buf := packChunk(1, []uint32{2}, []uint32{3}) // source 1->2, source 2->3

	s, err := Decode(buf, newLookup())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Count() != 2 {
		t.Fatalf("expected 2 edges, got %d", s.Count())
	}
}

func TestDecodeDropsUnknownTarget(t *testing.T) {
	buf := packChunk(1, []uint32{999, 2}) // source 1 -> 999 (unknown), 2

	s, err := Decode(buf, newLookup())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Count() != 1 {
		t.Fatalf("expected unknown-target edge to be dropped, got count %d", s.Count())
	}
}

func TestDecodeDropsEdgesForUnknownSource(t *testing.T) {
	buf := packChunk(999, []uint32{1}) // source 999 is not a known artist

	s, err := Decode(buf, newLookup())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Count() != 0 {
		t.Fatalf("expected all edges from an unknown source dropped, got count %d", s.Count())
	}
}

func TestDecodeRejectsShortHeader(t *testing.T) {
	if _, err := Decode([]byte{1, 2, 3}, newLookup()); err == nil {
		t.Fatal("expected error for a chunk shorter than its header")
	}
}

func TestDecodeRejectsTruncatedTargetList(t *testing.T) {
	buf := packChunk(1, []uint32{2, 3})
	truncated := buf[:len(buf)-4] // cut off the last declared target id
	if _, err := Decode(truncated, newLookup()); err == nil {
		t.Fatal("expected error for a chunk truncated mid target list")
	}
}

func TestEdgesOf(t *testing.T) {
	buf := packChunk(1, []uint32{2, 3}) // source 1 -> 2, 1 -> 3
	s, _ := Decode(buf, newLookup())

	edges := s.EdgesOf(1)
	if len(edges) != 2 {
		t.Fatalf("expected 2 edges touching artist 1, got %d", len(edges))
	}
}

func TestBackboneExcludesHighlighted(t *testing.T) {
	buf := packChunk(1, []uint32{2, 3})
	s, _ := Decode(buf, newLookup())

	highlighted := map[uint32]bool{1: true}
	backbone := s.Backbone(highlighted)
	if len(backbone) != 2 {
		t.Fatalf("expected 2 backbone neighbours, got %v", backbone)
	}
}

func TestBackboneSkipsEdgesBetweenHighlighted(t *testing.T) {
	buf := packChunk(1, []uint32{2})
	s, _ := Decode(buf, newLookup())

	highlighted := map[uint32]bool{1: true, 2: true}
	backbone := s.Backbone(highlighted)
	if len(backbone) != 0 {
		t.Fatalf("expected no backbone edges when both endpoints highlighted, got %v", backbone)
	}
}

func TestEdgeColorBlend(t *testing.T) {
	buf := packChunk(1, []uint32{2})
	s, _ := Decode(buf, newLookup())

	colors := s.ColorBuffer(newLookup(), 11)
	if len(colors) != 6 {
		t.Fatalf("expected 6 color floats for 1 edge, got %d", len(colors))
	}
	// Midpoint of red (1,0,0) and green (0,1,0).
	want := []float32{0.5, 0.5, 0}
	for i, c := range colors[:3] {
		if c != want[i] {
			t.Fatalf("expected linear midpoint blend %v, got %v", want, colors[:3])
		}
	}
}

func TestAppendChunkMergesOutOfOrderChunks(t *testing.T) {
	s := New()

	// The chunk for source 2 arrives before the chunk for source 1.
	second := packChunk(2, []uint32{3})
	if err := s.AppendChunk(second, newLookup()); err != nil {
		t.Fatalf("unexpected error appending second chunk: %v", err)
	}

	first := packChunk(1, []uint32{2})
	if err := s.AppendChunk(first, newLookup()); err != nil {
		t.Fatalf("unexpected error appending first chunk: %v", err)
	}

	if s.Count() != 2 {
		t.Fatalf("expected edges from both chunks merged, got %d", s.Count())
	}
	if len(s.EdgesOf(2)) != 2 {
		t.Fatalf("expected artist 2 to have edges from both chunks, got %d", len(s.EdgesOf(2)))
	}
}

func TestAppendChunkRejectsShortHeader(t *testing.T) {
	s := New()
	if err := s.AppendChunk([]byte{1, 2, 3}, newLookup()); err == nil {
		t.Fatal("expected error for a chunk shorter than its header")
	}
}

func TestBackboneBufferIntraOnlyBothEndpointsHighlighted(t *testing.T) {
	buf := packChunk(1, []uint32{2, 3}) // edges (1,2) and (1,3)
	s, _ := Decode(buf, newLookup())

	highlighted := map[uint32]bool{1: true, 2: true}
	out := s.BackboneBuffer(newLookup(), highlighted, true)
	if len(out) != 6 {
		t.Fatalf("expected exactly 1 intra edge (6 floats), got %d floats: %v", len(out), out)
	}
	want := []float32{0, 0, 0, 10, 0, 0}
	for i, v := range want {
		if out[i] != v {
			t.Fatalf("expected intra edge positions %v, got %v", want, out)
		}
	}
}

func TestBackboneBufferInterOnlyOneEndpointHighlighted(t *testing.T) {
	buf := packChunk(1, []uint32{2, 3}) // edges (1,2) both highlighted, (1,3) one highlighted
	s, _ := Decode(buf, newLookup())

	highlighted := map[uint32]bool{1: true, 2: true}
	out := s.BackboneBuffer(newLookup(), highlighted, false)
	if len(out) != 6 {
		t.Fatalf("expected exactly 1 inter edge (6 floats), got %d floats: %v", len(out), out)
	}
	want := []float32{0, 0, 0, 0, 10, 0}
	for i, v := range want {
		if out[i] != v {
			t.Fatalf("expected inter edge positions %v, got %v", want, out)
		}
	}
}

func TestPositionBufferAppliesStride(t *testing.T) {
	targets := make([]uint32, 10)
	for i := range targets {
		targets[i] = 2
	}
	buf := packChunk(1, targets) // 10 edges, all source 1 -> 2
	s, _ := Decode(buf, newLookup())

	full := s.PositionBuffer(newLookup(), 11)
	coarse := s.PositionBuffer(newLookup(), 4)
	if len(coarse) >= len(full) {
		t.Fatalf("expected coarser quality to emit fewer edges: full=%d coarse=%d", len(full), len(coarse))
	}
}
