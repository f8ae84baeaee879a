// SPDX-FileCopyrightText: © 2024 Galaxygraph Authors
// SPDX-License-Identifier: BSD-2-Clause

package scheduler

import (
	"testing"

	"github.com/galaxygraph/engine/drawcmd"
	"github.com/galaxygraph/engine/math/lin"
	"github.com/galaxygraph/engine/playback"
	"github.com/galaxygraph/engine/spatial"
)

type fakeArtists struct {
	pop map[uint32]uint8
}

func (f fakeArtists) Popularity(id uint32) (uint8, bool) {
	p, ok := f.pop[id]
	return p, ok
}

type fakeNames struct {
	known map[uint32]bool
}

func allNamesKnown() *fakeNames { return &fakeNames{known: nil} }

func (f *fakeNames) HasName(id uint32) bool {
	if f.known == nil {
		return true
	}
	return f.known[id]
}

func tightPolicy() Policy {
	p := DefaultPolicy()
	p.RenderRadius = 10
	p.LabelRadius = 10
	p.AutoplayRadius = 2
	p.HysteresisFactor = 1.1
	p.PopularityRadiusScaleMin = 1
	p.PopularityRadiusScaleMax = 1
	p.MaxCandidates = 100
	p.LabelPopularityBase = 0
	p.LabelPopularitySlope = 0
	return p
}

func TestGeometryAdmittedWithinRadius(t *testing.T) {
	pts := []spatial.Point{{ID: 1, Pos: lin.V3{X: 0, Y: 0, Z: 0}}}
	ix := spatial.Build(pts, 50)
	artists := fakeArtists{pop: map[uint32]uint8{1: 50}}
	director := playback.New(0.8)
	sc := New(tightPolicy(), ix, artists, allNamesKnown(), []uint32{1}, director)

	batch := drawcmd.New()
	sc.Tick(CameraSample{Pos: lin.V3{X: 0, Y: 0, Z: 0}, Mode: FlyMode}, batch)

	if sc.RenderedCount() != 1 {
		t.Fatalf("expected artist 1 admitted, rendered count = %d", sc.RenderedCount())
	}
}

func TestGeometryEvictedOutsideHysteresisBand(t *testing.T) {
	pts := []spatial.Point{{ID: 1, Pos: lin.V3{X: 0, Y: 0, Z: 0}}}
	ix := spatial.Build(pts, 5000)
	artists := fakeArtists{pop: map[uint32]uint8{1: 50}}
	director := playback.New(0.8)
	policy := tightPolicy()
	sc := New(policy, ix, artists, allNamesKnown(), []uint32{1}, director)

	batch := drawcmd.New()
	// Admit from inside the render radius but outside the autoplay radius,
	// so the artist is not pending playback (which would exempt it from
	// eviction).
	sc.Tick(CameraSample{Pos: lin.V3{X: 5, Y: 0, Z: 0}, NextPos: lin.V3{X: 5, Y: 0, Z: 0}, Mode: FlyMode}, batch)
	if sc.RenderedCount() != 1 {
		t.Fatalf("expected admission, got rendered count %d", sc.RenderedCount())
	}

	// Move just past admit radius but still inside the hysteresis band:
	// should remain admitted.
	batch.Reset()
	sc.Tick(CameraSample{Pos: lin.V3{X: 10.5, Y: 0, Z: 0}, NextPos: lin.V3{X: 10.5, Y: 0, Z: 0}, Mode: FlyMode}, batch)
	if sc.RenderedCount() != 1 {
		t.Fatalf("expected artist to remain admitted inside hysteresis band, got %d", sc.RenderedCount())
	}

	// Move well past the hysteresis band: should evict.
	batch.Reset()
	sc.Tick(CameraSample{Pos: lin.V3{X: 100, Y: 0, Z: 0}, NextPos: lin.V3{X: 100, Y: 0, Z: 0}, Mode: FlyMode}, batch)
	if sc.RenderedCount() != 0 {
		t.Fatalf("expected eviction beyond hysteresis band, got rendered count %d", sc.RenderedCount())
	}
}

func TestAutoplayTriggersWithinAutoplayRadius(t *testing.T) {
	pts := []spatial.Point{{ID: 1, Pos: lin.V3{X: 0, Y: 0, Z: 0}}}
	ix := spatial.Build(pts, 50)
	artists := fakeArtists{pop: map[uint32]uint8{1: 50}}
	director := playback.New(0.8)
	sc := New(tightPolicy(), ix, artists, allNamesKnown(), []uint32{1}, director)

	batch := drawcmd.New()
	sc.Tick(CameraSample{Pos: lin.V3{X: 1, Y: 0, Z: 0}, Mode: FlyMode}, batch)

	if director.State() != playback.Pending {
		t.Fatalf("expected autoplay to enter pending, got %v", director.State())
	}
}

func TestOrbitModeIgnoresCameraPosition(t *testing.T) {
	pts := []spatial.Point{
		{ID: 1, Pos: lin.V3{X: 0, Y: 0, Z: 0}},
		{ID: 2, Pos: lin.V3{X: 100000, Y: 0, Z: 0}},
	}
	ix := spatial.Build(pts, 50)
	artists := fakeArtists{pop: map[uint32]uint8{1: 10, 2: 90}}
	policy := tightPolicy()
	policy.OrbitTopK = 1
	director := playback.New(0.8)
	sc := New(policy, ix, artists, allNamesKnown(), []uint32{1, 2}, director)

	batch := drawcmd.New()
	sc.Tick(CameraSample{Pos: lin.V3{X: 0, Y: 0, Z: 0}, Mode: OrbitMode}, batch)

	if sc.RenderedCount() != 1 {
		t.Fatalf("expected orbit mode to admit exactly 1 artist, got %d", sc.RenderedCount())
	}
}

func TestForceLabelBypassesThreshold(t *testing.T) {
	pts := []spatial.Point{{ID: 1, Pos: lin.V3{X: 0, Y: 0, Z: 0}}}
	ix := spatial.Build(pts, 50)
	artists := fakeArtists{pop: map[uint32]uint8{1: 0}}
	policy := tightPolicy()
	policy.LabelPopularityBase = 100 // nothing would qualify naturally
	director := playback.New(0.8)
	sc := New(policy, ix, artists, allNamesKnown(), []uint32{1}, director)
	sc.ForceLabel(1, true)

	batch := drawcmd.New()
	sc.Tick(CameraSample{Pos: lin.V3{X: 0, Y: 0, Z: 0}, Mode: FlyMode}, batch)

	if sc.LabeledCount() != 1 {
		t.Fatalf("expected forced label to be admitted, got %d", sc.LabeledCount())
	}
}

func TestHighlightedArtistIgnoresPopularityScale(t *testing.T) {
	pts := []spatial.Point{{ID: 1, Pos: lin.V3{X: 7, Y: 0, Z: 0}}}
	ix := spatial.Build(pts, 50)
	artists := fakeArtists{pop: map[uint32]uint8{1: 0}}
	policy := tightPolicy()
	policy.PopularityRadiusScaleMin = 0.5
	policy.PopularityRadiusScaleMax = 0.8
	policy.RenderRadius = 10
	director := playback.New(0.8)
	sc := New(policy, ix, artists, allNamesKnown(), []uint32{1}, director)

	batch := drawcmd.New()
	sc.Tick(CameraSample{Pos: lin.V3{X: 0, Y: 0, Z: 0}, Mode: FlyMode}, batch)
	notHighlighted := sc.RenderedCount()

	sc2 := New(policy, ix, artists, allNamesKnown(), []uint32{1}, playback.New(0.8))
	sc2.SetHighlighted([]uint32{1})
	batch2 := drawcmd.New()
	sc2.Tick(CameraSample{Pos: lin.V3{X: 0, Y: 0, Z: 0}, Mode: FlyMode}, batch2)
	highlighted := sc2.RenderedCount()

	if notHighlighted != 0 {
		t.Fatalf("expected low-popularity artist scaled out of range, got rendered count %d", notHighlighted)
	}
	if highlighted != 1 {
		t.Fatalf("expected highlighted artist admitted at full scale, got rendered count %d", highlighted)
	}
}

func TestHighlightedArtistSurvivesEvictionBeyondCandidateRadius(t *testing.T) {
	pts := []spatial.Point{{ID: 1, Pos: lin.V3{X: 0, Y: 0, Z: 0}}}
	ix := spatial.Build(pts, 50)
	artists := fakeArtists{pop: map[uint32]uint8{1: 50}}
	director := playback.New(0.8)
	policy := tightPolicy()
	sc := New(policy, ix, artists, allNamesKnown(), []uint32{1}, director)
	sc.SetHighlighted([]uint32{1})

	// Admit from outside the autoplay radius so the artist is not pending
	// playback, which would exempt it from eviction on its own.
	batch := drawcmd.New()
	sc.Tick(CameraSample{Pos: lin.V3{X: 5, Y: 0, Z: 0}, NextPos: lin.V3{X: 5, Y: 0, Z: 0}, Mode: FlyMode}, batch)
	if sc.RenderedCount() != 1 {
		t.Fatalf("expected highlighted artist admitted, got rendered count %d", sc.RenderedCount())
	}

	// Move far beyond the candidate-gathering radius entirely (well past
	// RenderRadius*HysteresisFactor*PopularityRadiusScaleMax); a highlighted
	// artist must still survive eviction.
	batch.Reset()
	sc.Tick(CameraSample{Pos: lin.V3{X: 100000, Y: 0, Z: 0}, NextPos: lin.V3{X: 100000, Y: 0, Z: 0}, Mode: FlyMode}, batch)
	if sc.RenderedCount() != 1 {
		t.Fatalf("expected highlighted artist to survive eviction far outside candidate radius, got rendered count %d", sc.RenderedCount())
	}
	encoded := batch.Encode()
	for i := 0; i+1 < len(encoded); i += 2 {
		if encoded[i] == uint32(drawcmd.OpRemoveGeometry) && encoded[i+1] == 1 {
			t.Fatalf("expected no RemoveGeometry(1) for a highlighted artist, got %v", encoded)
		}
	}
}

func TestUnknownPopularityCandidateStillAdmitted(t *testing.T) {
	pts := []spatial.Point{{ID: 1, Pos: lin.V3{X: 0, Y: 0, Z: 0}}}
	ix := spatial.Build(pts, 50)
	artists := fakeArtists{pop: map[uint32]uint8{}} // no popularity entry for id 1
	director := playback.New(0.8)
	sc := New(tightPolicy(), ix, artists, allNamesKnown(), []uint32{1}, director)

	batch := drawcmd.New()
	sc.Tick(CameraSample{Pos: lin.V3{X: 0, Y: 0, Z: 0}, Mode: FlyMode}, batch)

	if sc.RenderedCount() != 1 {
		t.Fatalf("expected candidate with no popularity entry to still be admitted using zero-value scale, got %d", sc.RenderedCount())
	}
}

func TestUnknownNameFetchesThenAddsLabelOnReEvaluate(t *testing.T) {
	pts := []spatial.Point{{ID: 1, Pos: lin.V3{X: 0, Y: 0, Z: 0}}}
	ix := spatial.Build(pts, 50)
	artists := fakeArtists{pop: map[uint32]uint8{1: 50}}
	names := &fakeNames{known: map[uint32]bool{}}
	director := playback.New(0.8)
	sc := New(tightPolicy(), ix, artists, names, []uint32{1}, director)

	batch := drawcmd.New()
	sc.Tick(CameraSample{Pos: lin.V3{X: 0, Y: 0, Z: 0}, Mode: FlyMode}, batch)
	encoded := batch.Encode()

	foundFetch := false
	for i := 0; i+1 < len(encoded); i += 2 {
		if encoded[i] == uint32(drawcmd.OpFetchLabel) && encoded[i+1] == 1 {
			foundFetch = true
		}
		if encoded[i] == uint32(drawcmd.OpAddLabel) {
			t.Fatalf("expected no AddLabel before the name is known, got %v", encoded)
		}
	}
	if !foundFetch {
		t.Fatalf("expected a FetchLabel(1) request, got %v", encoded)
	}
	if sc.LabeledCount() != 0 {
		t.Fatalf("expected label not yet admitted, got %d", sc.LabeledCount())
	}

	names.known[1] = true
	batch.Reset()
	sc.ReEvaluateNames([]uint32{1}, CameraSample{Pos: lin.V3{X: 0, Y: 0, Z: 0}, Mode: FlyMode}, batch)

	encoded = batch.Encode()
	if len(encoded) != 2 || encoded[0] != uint32(drawcmd.OpAddLabel) || encoded[1] != 1 {
		t.Fatalf("expected AddLabel(1) after name arrives, got %v", encoded)
	}
	if sc.LabeledCount() != 1 {
		t.Fatalf("expected label admitted after re-evaluation, got %d", sc.LabeledCount())
	}
}

func TestFetchLabelRequestedOnlyOnce(t *testing.T) {
	pts := []spatial.Point{{ID: 1, Pos: lin.V3{X: 0, Y: 0, Z: 0}}}
	ix := spatial.Build(pts, 50)
	artists := fakeArtists{pop: map[uint32]uint8{1: 50}}
	names := &fakeNames{known: map[uint32]bool{}}
	director := playback.New(0.8)
	sc := New(tightPolicy(), ix, artists, names, []uint32{1}, director)

	batch := drawcmd.New()
	sc.Tick(CameraSample{Pos: lin.V3{X: 0, Y: 0, Z: 0}, Mode: FlyMode}, batch)
	batch.Reset()
	sc.Tick(CameraSample{Pos: lin.V3{X: 0, Y: 0, Z: 0}, Mode: FlyMode}, batch)

	encoded := batch.Encode()
	if len(encoded) != 0 {
		t.Fatalf("expected no repeated FetchLabel request on the following tick, got %v", encoded)
	}
}
