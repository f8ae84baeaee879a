// SPDX-FileCopyrightText: © 2024 Galaxygraph Authors
// SPDX-License-Identifier: BSD-2-Clause

// Package drawcmd encodes scheduler decisions into a dense command stream
// for the renderer. A Batch can be reset and reused across ticks rather
// than reallocated (Context builds a fresh one per call), the
// same recycling idiom the teacher engine uses for its per-frame draw list (see gazed/vu/frame.go's
// fs.snap = fs.snap[:0] reuse pattern).
package drawcmd

// Op identifies a single draw-command kind. Values are stable across
// releases since they are consumed by a renderer on the other side of the
// worker boundary. Edge/connection buffers are not part of this stream;
// they are pulled by the renderer through separate buffer getters.
type Op uint32

const (
	OpAddLabel Op = iota
	OpRemoveLabel
	OpAddGeometry
	OpRemoveGeometry
	OpFetchLabel
	OpStartPlayback
	OpStopPlayback
)

// command pairs an op with its target id for the purposes of
// add/remove cancellation before final encoding.
type command struct {
	op Op
	id uint32
}

// Batch accumulates draw commands for a single tick. Commands are
// categorized as they arrive so Encode can emit them in the strict order
// spec.md §4.4/§4.6 requires: geometry removals before geometry
// additions, labels after geometry, playback commands last and in
// emission order.
type Batch struct {
	removeGeometry []uint32
	addGeometry    []uint32
	removeLabel    []uint32
	addLabel       []uint32
	fetchLabel     []uint32
	playback       []uint32

	// pending tracks the net effect of Append calls per (op, id) so that
	// an add immediately cancelled by a remove in the same batch (or vice
	// versa) never reaches Encode. FetchLabel and playback commands are
	// never cancelled this way; they are pass-through.
	pending map[command]bool
}

// New returns an empty Batch ready for reuse across ticks via Reset.
func New() *Batch {
	return &Batch{pending: make(map[command]bool)}
}

// cancellable reports the opposite op in op's add/remove pair, or ok=false
// if op is not part of a cancellable pair (fetch/playback commands).
func cancellable(op Op) (opposite Op, ok bool) {
	switch op {
	case OpAddGeometry:
		return OpRemoveGeometry, true
	case OpRemoveGeometry:
		return OpAddGeometry, true
	case OpAddLabel:
		return OpRemoveLabel, true
	case OpRemoveLabel:
		return OpAddLabel, true
	default:
		return 0, false
	}
}

// Append records a command for this batch. If the same id was already
// queued with the opposite op in the same add/remove pair, the pair
// cancels and neither reaches Encode — a geometry add followed later in
// the same tick by its removal never needs to reach the renderer at all.
func (b *Batch) Append(op Op, id uint32) {
	opposite, ok := cancellable(op)
	if !ok {
		switch op {
		case OpFetchLabel:
			b.fetchLabel = append(b.fetchLabel, id)
		default:
			b.playback = append(b.playback, uint32(op), id)
		}
		return
	}
	if b.pending[command{op: opposite, id: id}] {
		delete(b.pending, command{op: opposite, id: id})
		return
	}
	b.pending[command{op: op, id: id}] = true
}

// Encode flattens the batch into a (op, id) pair stream in spec-mandated
// order: geometry removals, geometry additions, label removals, label
// additions, label fetches, then playback commands in emission order.
func (b *Batch) Encode() []uint32 {
	b.removeGeometry = b.removeGeometry[:0]
	b.addGeometry = b.addGeometry[:0]
	b.removeLabel = b.removeLabel[:0]
	b.addLabel = b.addLabel[:0]

	for cmd := range b.pending {
		switch cmd.op {
		case OpRemoveGeometry:
			b.removeGeometry = append(b.removeGeometry, cmd.id)
		case OpAddGeometry:
			b.addGeometry = append(b.addGeometry, cmd.id)
		case OpRemoveLabel:
			b.removeLabel = append(b.removeLabel, cmd.id)
		case OpAddLabel:
			b.addLabel = append(b.addLabel, cmd.id)
		}
	}

	out := make([]uint32, 0, 2*(len(b.removeGeometry)+len(b.addGeometry)+
		len(b.removeLabel)+len(b.addLabel)+len(b.fetchLabel))+len(b.playback))
	out = appendPairs(out, OpRemoveGeometry, b.removeGeometry)
	out = appendPairs(out, OpAddGeometry, b.addGeometry)
	out = appendPairs(out, OpRemoveLabel, b.removeLabel)
	out = appendPairs(out, OpAddLabel, b.addLabel)
	out = appendPairs(out, OpFetchLabel, b.fetchLabel)
	out = append(out, b.playback...)
	return out
}

func appendPairs(out []uint32, op Op, ids []uint32) []uint32 {
	for _, id := range ids {
		out = append(out, uint32(op), id)
	}
	return out
}

// Len reports the number of queued commands (net geometry/label commands
// after cancellation, fetches, and playback commands), used by
// callers to decide whether Split is necessary (spec.md §7
// BatchOverflow).
func (b *Batch) Len() int { return len(b.pending) + len(b.fetchLabel) + len(b.playback)/2 }

// Reset clears the batch for reuse on the next tick.
func (b *Batch) Reset() {
	for k := range b.pending {
		delete(b.pending, k)
	}
	b.fetchLabel = b.fetchLabel[:0]
	b.playback = b.playback[:0]
}

// Split divides an over-large encoded command stream into chunks of at
// most maxPairs (op, id) pairs each, per spec.md §7 BatchOverflow: split
// rather than drop or error.
func Split(encoded []uint32, maxPairs int) [][]uint32 {
	if maxPairs <= 0 {
		return [][]uint32{encoded}
	}
	pairWidth := 2
	maxLen := maxPairs * pairWidth
	var chunks [][]uint32
	for i := 0; i < len(encoded); i += maxLen {
		end := i + maxLen
		if end > len(encoded) {
			end = len(encoded)
		}
		chunks = append(chunks, encoded[i:end])
	}
	if len(chunks) == 0 {
		chunks = append(chunks, []uint32{})
	}
	return chunks
}
