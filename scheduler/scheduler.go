// SPDX-FileCopyrightText: © 2024 Galaxygraph Authors
// SPDX-License-Identifier: BSD-2-Clause

// Package scheduler drives per-tick level-of-detail decisions: which
// artists get geometry, which get labels, and when autoplay should hand
// off to the Playback Director. Mode polymorphism (fly vs orbit) is
// modeled on the teacher engine's Cull interface (see gazed/vu/culler.go's
// NewFrontCull/NewRadiusCull pair of strategies behind one interface).
package scheduler

import (
	"math"
	"sort"

	"github.com/galaxygraph/engine/drawcmd"
	"github.com/galaxygraph/engine/internal/arena"
	"github.com/galaxygraph/engine/math/lin"
	"github.com/galaxygraph/engine/playback"
	"github.com/galaxygraph/engine/spatial"
)

// Mode selects which modePolicy drives candidate selection.
type Mode int

const (
	FlyMode Mode = iota
	OrbitMode
)

// CameraSample is the camera state a single Tick is evaluated against.
// NextPos is the camera's projected position one step ahead; fly mode
// unions candidates gathered around both points so geometry streams in
// before the camera arrives (spec.md §4.4 step 1). Orbit mode ignores it.
type CameraSample struct {
	Pos     lin.V3
	NextPos lin.V3
	Mode    Mode
}

// ArtistSource resolves popularity for a candidate id. The Embedding Store
// satisfies this.
type ArtistSource interface {
	Popularity(id uint32) (uint8, bool)
}

// NameSource reports whether an artist's display name has been resolved.
// Names arrive asynchronously via an external fetch client (spec.md §4.4
// step 3); the Scheduler never blocks waiting for one.
type NameSource interface {
	HasName(id uint32) bool
}

// modePolicy selects the candidate id superset for a tick. Two
// implementations exist, fly and orbit, the same shape as the teacher's
// two Cull implementations behind one interface.
type modePolicy interface {
	Candidates(sc *Scheduler, cam CameraSample) []uint32
}

// flyModePolicy gathers every artist within the render radius (widened by
// the hysteresis factor so admitted artists aren't immediately re-queried
// at the boundary), popularity-scaled per spec.md §4.4, unioned across the
// camera's current and projected-next position.
type flyModePolicy struct{}

func (flyModePolicy) Candidates(sc *Scheduler, cam CameraSample) []uint32 {
	outer := sc.policy.RenderRadius * sc.policy.HysteresisFactor * sc.policy.PopularityRadiusScaleMax
	here := sc.index.QueryRadius(cam.Pos, outer, sc.policy.MaxCandidates)
	if cam.NextPos == cam.Pos {
		return here
	}
	ahead := sc.index.QueryRadius(cam.NextPos, outer, sc.policy.MaxCandidates)
	if len(ahead) == 0 {
		return here
	}
	seen := make(map[uint32]bool, len(here)+len(ahead))
	union := make([]uint32, 0, len(here)+len(ahead))
	for _, id := range here {
		if !seen[id] {
			seen[id] = true
			union = append(union, id)
		}
	}
	for _, id := range ahead {
		if !seen[id] {
			seen[id] = true
			union = append(union, id)
		}
	}
	return union
}

// orbitModePolicy ignores the camera entirely and returns a fixed top-K
// artist set by popularity, computed once at construction.
type orbitModePolicy struct{}

func (orbitModePolicy) Candidates(sc *Scheduler, cam CameraSample) []uint32 {
	return sc.topK
}

// Scheduler holds the admitted geometry and label sets and advances them
// one tick at a time.
type Scheduler struct {
	policy   Policy
	index    *spatial.Index
	artists  ArtistSource
	names    NameSource
	director *playback.Director

	fly   modePolicy
	orbit modePolicy
	mode  Mode

	rendered *arena.Arena
	labeled  *arena.Arena
	forced   map[uint32]bool

	// namePending holds ids eligible for a label whose name has already
	// been requested (FetchLabel emitted) but not yet known, so a tick
	// never re-requests the same name twice.
	namePending map[uint32]bool

	topK        []uint32
	highlighted map[uint32]bool
}

// New returns a Scheduler over index and artists, with orbit mode's fixed
// candidate set precomputed from allIDs.
func New(policy Policy, index *spatial.Index, artists ArtistSource, names NameSource, allIDs []uint32, director *playback.Director) *Scheduler {
	sc := &Scheduler{
		policy:      policy,
		index:       index,
		artists:     artists,
		names:       names,
		director:    director,
		fly:         flyModePolicy{},
		orbit:       orbitModePolicy{},
		rendered:    arena.New(),
		labeled:     arena.New(),
		forced:      make(map[uint32]bool),
		namePending: make(map[uint32]bool),
		highlighted: make(map[uint32]bool),
	}
	sc.topK = rankByPopularity(allIDs, artists, policy.OrbitTopK)
	return sc
}

func rankByPopularity(ids []uint32, artists ArtistSource, k int) []uint32 {
	type scored struct {
		id  uint32
		pop uint8
	}
	scoredIDs := make([]scored, 0, len(ids))
	for _, id := range ids {
		pop, ok := artists.Popularity(id)
		if !ok {
			continue
		}
		scoredIDs = append(scoredIDs, scored{id: id, pop: pop})
	}
	sort.Slice(scoredIDs, func(i, j int) bool {
		if scoredIDs[i].pop != scoredIDs[j].pop {
			return scoredIDs[i].pop > scoredIDs[j].pop
		}
		return scoredIDs[i].id < scoredIDs[j].id
	})
	if k > 0 && len(scoredIDs) > k {
		scoredIDs = scoredIDs[:k]
	}
	out := make([]uint32, len(scoredIDs))
	for i, s := range scoredIDs {
		out[i] = s.id
	}
	return out
}

// SetMode switches between fly and orbit candidate selection, relabeling
// the admitted set on the next Tick rather than immediately, matching
// spec.md §4.4's "mode transitions relabel on the following tick".
func (sc *Scheduler) SetMode(mode Mode) { sc.mode = mode }

// SetHighlighted replaces the highlighted artist set, which widens the
// admission radius for its members via PopularityRadiusScale (spec.md
// §4.4 "highlighted artists render regardless of normal popularity
// scaling").
func (sc *Scheduler) SetHighlighted(ids []uint32) {
	sc.highlighted = make(map[uint32]bool, len(ids))
	for _, id := range ids {
		sc.highlighted[id] = true
	}
}

// ForceLabel pins a label on regardless of the popularity-vs-distance
// threshold, per spec.md §6 ForceRenderArtistLabel.
func (sc *Scheduler) ForceLabel(id uint32, forced bool) {
	if forced {
		sc.forced[id] = true
	} else {
		delete(sc.forced, id)
	}
}

func (sc *Scheduler) policyFor(mode Mode) modePolicy {
	if mode == OrbitMode {
		return sc.orbit
	}
	return sc.fly
}

// Tick evaluates one camera sample, admitting and evicting geometry and
// labels into batch, and triggers autoplay when the camera enters an
// artist's autoplay radius in fly mode.
func (sc *Scheduler) Tick(cam CameraSample, batch *drawcmd.Batch) {
	sc.mode = cam.Mode
	candidates := sc.policyFor(sc.mode).Candidates(sc, cam)
	candidateSet := make(map[uint32]bool, len(candidates))

	var closest uint32
	closestDistSqr := math.Inf(1)
	for _, id := range candidates {
		candidateSet[id] = true

		if sc.mode == OrbitMode {
			if sc.rendered.Insert(id) {
				batch.Append(drawcmd.OpAddGeometry, id)
			}
			if sc.policy.OrbitHighlightLabels {
				sc.tryAdmitLabel(id, batch)
			}
			continue
		}

		distSqr, ok := sc.index.DistSqr(id, cam.Pos)
		if !ok {
			continue
		}
		sc.admitGeometry(id, distSqr, batch)
		sc.admitLabel(id, distSqr, batch)
		if distSqr < closestDistSqr || (distSqr == closestDistSqr && id < closest) {
			closest, closestDistSqr = id, distSqr
		}
	}
	if !math.IsInf(closestDistSqr, 1) {
		sc.maybeAutoplay(closest, closestDistSqr, batch)
	}

	sc.evictMissing(sc.rendered, candidateSet, drawcmd.OpRemoveGeometry, batch)
	sc.evictMissing(sc.labeled, candidateSet, drawcmd.OpRemoveLabel, batch)

	if sc.mode == FlyMode {
		sc.releaseIfOutOfRange(cam, batch)
	}
}

// releaseIfOutOfRange stops the currently Playing track, cooldown
// permitting, once it no longer has a valid position or has moved beyond
// the autoplay radius with no replacement picked this tick (spec.md §4.4
// step 4 implies the reverse transition too: a playing artist that falls
// out of range eventually releases rather than playing forever).
func (sc *Scheduler) releaseIfOutOfRange(cam CameraSample, batch *drawcmd.Batch) {
	if sc.director.State() != playback.Playing {
		return
	}
	id := sc.director.Current()
	distSqr, ok := sc.index.DistSqr(id, cam.Pos)
	if ok && distSqr <= sc.policy.AutoplayRadius*sc.policy.AutoplayRadius*sc.policy.HysteresisFactor*sc.policy.HysteresisFactor {
		return
	}
	sc.director.Release(batch)
}

func (sc *Scheduler) admitGeometry(id uint32, distSqr float64, batch *drawcmd.Batch) {
	pop, _ := sc.artists.Popularity(id)
	scale := sc.policy.PopularityRadiusScale(pop)
	if sc.highlighted[id] {
		scale = sc.policy.PopularityRadiusScaleMax
	}
	admitRadius := sc.policy.RenderRadius * scale
	evictRadius := admitRadius * sc.policy.HysteresisFactor

	member := sc.rendered.Contains(id)
	threshold := admitRadius
	if member {
		threshold = evictRadius
	}
	if distSqr <= threshold*threshold {
		if sc.rendered.Insert(id) {
			batch.Append(drawcmd.OpAddGeometry, id)
		}
	}
}

// labelEligible reports whether id qualifies for a label at the given
// squared camera distance: forced or highlighted ids always qualify;
// otherwise the popularity-vs-distance threshold from spec.md §4.4 step 3
// applies.
func (sc *Scheduler) labelEligible(id uint32, distSqr float64) bool {
	if sc.forced[id] || sc.highlighted[id] {
		return true
	}
	if distSqr > sc.policy.LabelRadius*sc.policy.LabelRadius {
		return false
	}
	pop, ok := sc.artists.Popularity(id)
	if !ok {
		return false
	}
	dist := math.Sqrt(distSqr)
	return float64(pop) >= sc.policy.LabelPopularityThreshold(dist)
}

// tryAdmitLabel admits id's label immediately if its name is already
// known, otherwise requests it exactly once via FetchLabel and waits for
// ReEvaluateNames to be called once the name arrives.
func (sc *Scheduler) tryAdmitLabel(id uint32, batch *drawcmd.Batch) {
	if sc.labeled.Contains(id) {
		return
	}
	if sc.names.HasName(id) {
		delete(sc.namePending, id)
		if sc.labeled.Insert(id) {
			batch.Append(drawcmd.OpAddLabel, id)
		}
		return
	}
	if !sc.namePending[id] {
		sc.namePending[id] = true
		batch.Append(drawcmd.OpFetchLabel, id)
	}
}

func (sc *Scheduler) admitLabel(id uint32, distSqr float64, batch *drawcmd.Batch) {
	if sc.labelEligible(id, distSqr) {
		sc.tryAdmitLabel(id, batch)
	}
}

// ReEvaluateNames re-checks label eligibility for ids whose names have
// just arrived (spec.md §4.4 step 3: "when the name later arrives ...
// re-evaluate and, if still in set, emit AddLabel").
func (sc *Scheduler) ReEvaluateNames(ids []uint32, cam CameraSample, batch *drawcmd.Batch) {
	for _, id := range ids {
		if !sc.namePending[id] {
			continue
		}
		if sc.mode == OrbitMode {
			sc.tryAdmitLabel(id, batch)
			continue
		}
		distSqr, ok := sc.index.DistSqr(id, cam.Pos)
		if !ok {
			continue
		}
		if sc.labelEligible(id, distSqr) {
			sc.tryAdmitLabel(id, batch)
		}
	}
}

func (sc *Scheduler) maybeAutoplay(id uint32, distSqr float64, batch *drawcmd.Batch) {
	if distSqr <= sc.policy.AutoplayRadius*sc.policy.AutoplayRadius {
		sc.director.AutoPlay(id, batch)
	}
}

// isPlaying reports whether id is the Playback Director's current or
// pending track. Playing artists are exempt from geometry eviction even
// once they fall outside the candidate set (spec.md §4.4 step 2: "and is
// not playing/highlighted").
func (sc *Scheduler) isPlaying(id uint32) bool {
	return (sc.director.State() == playback.Playing && sc.director.Current() == id) ||
		(sc.director.State() == playback.Pending && sc.director.Pending() == id)
}

// evictMissing removes every admitted id not in keep, except ids exempt
// from eviction on this op: a highlighted artist's geometry and label are
// never evicted while the highlight set contains its id (spec.md §3
// invariant 6), a forced id's label survives regardless of highlight or
// candidacy, and a playing/pending artist's geometry survives even once
// it falls outside the candidate set (spec.md §4.4 step 2: "and is not
// playing/highlighted").
func (sc *Scheduler) evictMissing(set *arena.Arena, keep map[uint32]bool, op drawcmd.Op, batch *drawcmd.Batch) {
	for _, id := range append([]uint32(nil), set.Ids()...) {
		if sc.highlighted[id] {
			continue
		}
		if sc.forced[id] && op == drawcmd.OpRemoveLabel {
			continue
		}
		if op == drawcmd.OpRemoveGeometry && sc.isPlaying(id) {
			continue
		}
		if !keep[id] {
			set.Remove(id)
			batch.Append(op, id)
		}
	}
}

// RenderedCount returns the number of artists currently admitted for
// geometry.
func (sc *Scheduler) RenderedCount() int { return sc.rendered.Len() }

// LabeledCount returns the number of artists currently admitted for
// labels.
func (sc *Scheduler) LabeledCount() int { return sc.labeled.Len() }
