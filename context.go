// SPDX-FileCopyrightText: © 2024 Galaxygraph Authors
// SPDX-License-Identifier: BSD-2-Clause

// Package engine is the root package exposing the worker-side API
// described in spec.md §6: one Context per renderer session, built from
// the Embedding Store, Spatial Index, Relationship Store, LOD Scheduler,
// Playback Director, and Quality Controller. All calls are synchronous
// and intended to run on a single worker thread — the scheduling model in
// spec.md §5 rules out any shared-memory races inside a Context, so
// nothing here takes a lock, the same single-threaded-worker assumption
// the teacher engine makes for its own per-context eng.go dispatch loop.
package engine

import (
	"github.com/galaxygraph/engine/drawcmd"
	"github.com/galaxygraph/engine/embedding"
	"github.com/galaxygraph/engine/errs"
	"github.com/galaxygraph/engine/math/lin"
	"github.com/galaxygraph/engine/playback"
	"github.com/galaxygraph/engine/quality"
	"github.com/galaxygraph/engine/relationship"
	"github.com/galaxygraph/engine/scheduler"
	"github.com/galaxygraph/engine/spatial"
)

// cellSize is the uniform-grid bucket edge used to build the Spatial
// Index. spec.md §4.2 suggests 1-5k units over the ~±2e5-unit embedding
// span; 2000 sits near the low end, favoring query precision over bucket
// count for a ~70k-artist galaxy.
const cellSize = 2000.0

// nameTable owns the artist names resolved by an external fetch client.
// It satisfies scheduler.NameSource.
type nameTable struct {
	names map[uint32]string
}

func newNameTable() *nameTable { return &nameTable{names: make(map[uint32]string)} }

func (n *nameTable) HasName(id uint32) bool {
	_, ok := n.names[id]
	return ok
}

func (n *nameTable) set(id uint32, name string) { n.names[id] = name }

// Context is one renderer session's worker-side state. Create with New,
// then DecodePackedPositions before any other call — every other method
// except IsBusy panics with an InvariantViolation if called first, since there is
// nothing yet to schedule against.
type Context struct {
	cfg config

	embed *embedding.Store
	index *spatial.Index
	rel   *relationship.Store
	sched *scheduler.Scheduler

	director *playback.Director
	quality  *quality.Controller
	names    *nameTable

	highlighted map[uint32]bool
	mode        scheduler.Mode
	lastCamera  scheduler.CameraSample
	lastPlayed  uint32 // last artist id played, for PlayLastArtist

	appliedChunks map[int]bool // chunk_ix values already merged, for idempotent redelivery

	busy bool
}

// New returns a Context configured by opts. The Context holds no artist
// data until DecodePackedPositions succeeds.
func New(opts ...Option) *Context {
	cfg := configDefaults
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Context{
		cfg:           cfg,
		director:      playback.New(cfg.policy.PlaybackCooldownSeconds),
		quality:       quality.NewController(cfg.policy, cfg.initialQuality),
		names:         newNameTable(),
		highlighted:   make(map[uint32]bool),
		rel:           relationship.New(),
		appliedChunks: make(map[int]bool),
	}
}

// requireReady panics with an InvariantViolation if the Context has not
// yet decoded an embedding. Every operation past construction needs a
// Spatial Index and Scheduler to act against.
func (c *Context) requireReady() {
	if c.sched == nil {
		errs.PanicInvariant("context used before DecodePackedPositions succeeded")
	}
}

// DecodePackedPositions decodes the packed embedding buffer (spec.md §6),
// building the Spatial Index and LOD Scheduler over it, and returns the
// colors view for the renderer's initial upload.
func (c *Context) DecodePackedPositions(data []byte, isMobile bool) ([]float32, error) {
	store, err := embedding.Decode(data, isMobile)
	if err != nil {
		return nil, err
	}

	all := store.All()
	points := make([]spatial.Point, len(all))
	ids := make([]uint32, len(all))
	for i, a := range all {
		points[i] = spatial.Point{ID: a.ID, Pos: lin.V3{X: a.X, Y: a.Y, Z: a.Z}}
		ids[i] = a.ID
	}

	c.embed = store
	c.index = spatial.Build(points, cellSize)
	c.sched = scheduler.New(c.cfg.policy, c.index, store, c.names, ids, c.director)
	c.mode = scheduler.FlyMode
	return store.ColorsView(), nil
}

// GetAllArtistData returns the packed (id, x, y, z, popularity) buffer for
// every decoded artist, per spec.md §6 get_all_artist_data.
func (c *Context) GetAllArtistData() []uint32 {
	c.requireReady()
	return c.embed.AllArtistData()
}

// HandleNewPosition evaluates a camera sample and returns the resulting
// draw batch. Returns nil if a batch is already in flight and the update
// is dropped (spec.md §5 backpressure); IsBusy reports that state.
func (c *Context) HandleNewPosition(x, y, z, nx, ny, nz float64, isFlyMode bool) []uint32 {
	c.requireReady()
	if c.busy {
		return nil
	}
	c.busy = true
	defer func() { c.busy = false }()

	mode := scheduler.FlyMode
	if !isFlyMode {
		mode = scheduler.OrbitMode
	}
	cam := scheduler.CameraSample{
		Pos:     lin.V3{X: x, Y: y, Z: z},
		NextPos: lin.V3{X: nx, Y: ny, Z: nz},
		Mode:    mode,
	}
	c.lastCamera = cam
	c.mode = mode

	batch := drawcmd.New()
	c.sched.Tick(cam, batch)
	return batch.Encode()
}

// IsBusy reports whether a position update is still being processed and
// new calls to HandleNewPosition will be dropped (spec.md §5).
func (c *Context) IsBusy() bool { return c.busy }

// HandleReceivedArtistNames supplies resolved names for ids and
// re-evaluates label eligibility for each (spec.md §6
// handle_received_artist_names), returning the resulting draw batch.
func (c *Context) HandleReceivedArtistNames(ids []uint32, names []string, cx, cy, cz float64, isFlyMode bool) []uint32 {
	c.requireReady()
	for i, id := range ids {
		if i < len(names) {
			c.names.set(id, names[i])
		}
	}
	cam := c.cameraAt(cx, cy, cz, isFlyMode)
	batch := drawcmd.New()
	c.sched.ReEvaluateNames(ids, cam, batch)
	return batch.Encode()
}

// HandleArtistRelationshipData decodes one relationship chunk and merges
// it into the Relationship Store (spec.md §6
// handle_artist_relationship_data). chunkSize must match len(chunkBytes);
// it exists across the external API boundary because chunkBytes there is
// a raw pointer with no length of its own. chunkIx identifies the chunk
// so a redelivered chunk (chunks "may be delivered out of order", spec.md
// §4.3, which over an unreliable transport also means "may be retried")
// is merged at most once.
func (c *Context) HandleArtistRelationshipData(chunkBytes []byte, chunkSize int, chunkIx int) error {
	c.requireReady()
	if chunkSize != len(chunkBytes) {
		return &errs.CorruptEmbeddingError{Reason: "relationship chunk_size does not match the delivered byte count"}
	}
	if c.appliedChunks[chunkIx] {
		return nil
	}
	if err := c.rel.AppendChunk(chunkBytes, c.embed); err != nil {
		return err
	}
	c.appliedChunks[chunkIx] = true
	return nil
}

// HandleSetHighlightedArtists replaces the highlighted artist set and
// returns the resulting draw batch (spec.md §6
// handle_set_highlighted_artists). Highlighted artists are immune to
// distance-based eviction and always eligible for a label.
func (c *Context) HandleSetHighlightedArtists(ids []uint32, cx, cy, cz float64, isFlyMode bool) []uint32 {
	c.requireReady()
	c.highlighted = make(map[uint32]bool, len(ids))
	for _, id := range ids {
		c.highlighted[id] = true
	}
	c.sched.SetHighlighted(ids)

	cam := c.cameraAt(cx, cy, cz, isFlyMode)
	batch := drawcmd.New()
	c.sched.Tick(cam, batch)
	return batch.Encode()
}

// HandleArtistManualPlay forces playback to id regardless of cooldown
// (spec.md §6 handle_artist_manual_play).
func (c *Context) HandleArtistManualPlay(id uint32) []uint32 {
	c.requireReady()
	batch := drawcmd.New()
	c.director.ManualPlay(id, batch)
	c.lastPlayed = id
	return batch.Encode()
}

// OnMusicFinishedPlaying transitions the Playback Director back to Idle
// and returns the resulting draw batch (spec.md §6
// on_music_finished_playing). A finished-event for an id that is no
// longer current is a stale, superseded notification and is ignored
// (spec.md §5: "superseded requests are disambiguated by comparing the
// pending artist id at completion time"). The camera sample is accepted
// for interface parity; the Director itself needs no position data to
// finish playback.
func (c *Context) OnMusicFinishedPlaying(id uint32, cx, cy, cz float64) []uint32 {
	c.requireReady()
	if c.director.Current() != id {
		return nil
	}
	batch := drawcmd.New()
	c.director.OnFinished(batch)
	return batch.Encode()
}

// TransitionToOrbitMode switches scheduling to orbit mode and runs one
// orbit-mode tick at the last camera position. Rendered labels of artists
// outside the orbit-mode top-K are removed, except highlighted and forced
// ones; labels of top-K members are kept as they are, with no removal
// command emitted for them.
func (c *Context) TransitionToOrbitMode() []uint32 {
	c.requireReady()
	c.mode = scheduler.OrbitMode
	c.sched.SetMode(scheduler.OrbitMode)

	cam := scheduler.CameraSample{Pos: c.lastCamera.Pos, NextPos: c.lastCamera.Pos, Mode: scheduler.OrbitMode}
	c.lastCamera = cam
	batch := drawcmd.New()
	c.sched.Tick(cam, batch)
	return batch.Encode()
}

// ForceRenderArtistLabel pins or unpins a label regardless of the
// popularity-vs-distance threshold (spec.md §6 force_render_artist_label).
func (c *Context) ForceRenderArtistLabel(id uint32, forced bool) []uint32 {
	c.requireReady()
	c.sched.ForceLabel(id, forced)

	batch := drawcmd.New()
	c.sched.Tick(c.lastCamera, batch)
	return batch.Encode()
}

// SetQuality forces the Quality Controller's level and refreshes the edge
// buffers (spec.md §6 set_quality). Out-of-range values are clamped, not
// errored (spec.md §7 QualityOutOfRange).
func (c *Context) SetQuality(q int) {
	c.requireReady()
	c.quality.SetQuality(q)
}

// PlayLastArtist resumes playback of the most recently manually-played
// artist, if any (spec.md §6 play_last_artist).
func (c *Context) PlayLastArtist() []uint32 {
	c.requireReady()
	if c.lastPlayed == 0 {
		return nil
	}
	batch := drawcmd.New()
	c.director.ManualPlay(c.lastPlayed, batch)
	return batch.Encode()
}

// GetConnectionsBuffer returns the current edge position buffer at the
// active quality (spec.md §6 get_connections_buffer_ptr/length).
func (c *Context) GetConnectionsBuffer() []float32 {
	c.requireReady()
	return c.rel.PositionBuffer(c.embed, c.quality.Quality())
}

// GetConnectionsColorBuffer returns the current edge color buffer at the
// active quality (spec.md §6 get_connections_color_buffer_ptr/length).
func (c *Context) GetConnectionsColorBuffer() []float32 {
	c.requireReady()
	return c.rel.ColorBuffer(c.embed, c.quality.Quality())
}

// GetArtistColorsBuffer returns the full artist colors view, independent
// of quality (spec.md §6 get_artist_colors_buffer_ptr/length).
func (c *Context) GetArtistColorsBuffer() []float32 {
	c.requireReady()
	return c.embed.ColorsView()
}

// GetConnectionsForArtists returns the highlighted-set backbone position
// buffer: intra edges (both endpoints highlighted) when intra is true,
// inter edges (exactly one endpoint highlighted) otherwise (spec.md §6
// get_connections_for_artists).
func (c *Context) GetConnectionsForArtists(ids []uint32, intra bool) []float32 {
	c.requireReady()
	set := make(map[uint32]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return c.rel.BackboneBuffer(c.embed, set, intra)
}

// Tick advances the Quality Controller's frame clock and the Playback
// Director's cooldown clock by frameSeconds, returning true if the
// quality level changed this call. The renderer is expected to call this
// once per frame alongside HandleNewPosition.
func (c *Context) Tick(frameSeconds float64) bool {
	c.requireReady()
	c.director.Tick(frameSeconds)
	return c.quality.Tick(frameSeconds)
}

// ConfirmPendingPlayback transitions a Pending track to Playing once its
// preview URL has resolved externally (spec.md §4.5's "Preview URLs
// resolved" transition). Not a numbered External Interface entry in
// spec.md §6; the fetch client that resolves preview URLs is expected to
// call this before the Director's current-playing state is trusted.
func (c *Context) ConfirmPendingPlayback() {
	c.requireReady()
	c.director.ConfirmPending()
}

// NoPreviewAvailable transitions a Pending track back to Idle when no
// preview URL could be resolved (spec.md §4.5's "No preview URLs"
// transition), returning the resulting draw batch.
func (c *Context) NoPreviewAvailable() []uint32 {
	c.requireReady()
	batch := drawcmd.New()
	c.director.NoPreviewAvailable(batch)
	return batch.Encode()
}

func (c *Context) cameraAt(cx, cy, cz float64, isFlyMode bool) scheduler.CameraSample {
	mode := scheduler.FlyMode
	if !isFlyMode {
		mode = scheduler.OrbitMode
	}
	pos := lin.V3{X: cx, Y: cy, Z: cz}
	return scheduler.CameraSample{Pos: pos, NextPos: pos, Mode: mode}
}
