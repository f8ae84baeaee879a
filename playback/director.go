// SPDX-FileCopyrightText: © 2024 Galaxygraph Authors
// SPDX-License-Identifier: BSD-2-Clause

// Package playback drives the Idle/Pending/Playing track-selection state
// machine described in spec.md §4.5. The lifecycle shape is modeled on the
// teacher engine's sound asset states (see gazed/vu/sound.go's
// assets -> loading -> active progression); the cooldown timer reuses the
// elapsed-time bookkeeping style of gazed/vu/profile.go.
package playback

import "github.com/galaxygraph/engine/drawcmd"

// State is the Director's current lifecycle state.
type State int

const (
	Idle State = iota
	Pending
	Playing
)

// Director tracks which artist, if any, is queued or playing, and gates
// scheduler-driven switches behind a cooldown so autoplay cannot thrash
// between nearby artists. Manual, user-driven plays bypass the cooldown
// entirely, per spec.md §4.5's transition table.
type Director struct {
	state      State
	current    uint32 // valid while Playing
	pending    uint32 // valid while Pending
	cooldown   float64
	sinceStart float64 // seconds since the current Playing track started
}

// New returns an Idle Director with the given cooldown, in seconds,
// applied to scheduler-driven (autoplay) switches away from a Playing
// track.
func New(cooldownSeconds float64) *Director {
	return &Director{cooldown: cooldownSeconds}
}

// State returns the Director's current lifecycle state.
func (d *Director) State() State { return d.state }

// Current returns the artist id currently playing, or 0 if not Playing.
func (d *Director) Current() uint32 { return d.current }

// Pending returns the artist id queued to play next, or 0 if not Pending.
func (d *Director) Pending() uint32 { return d.pending }

// Tick advances the cooldown clock by dt seconds. Call once per frame
// regardless of state.
func (d *Director) Tick(dt float64) {
	if d.state == Playing {
		d.sinceStart += dt
	}
}

// onCooldown reports whether a scheduler-driven switch away from the
// current Playing track is blocked by the cooldown window.
func (d *Director) onCooldown() bool {
	return d.state == Playing && d.sinceStart < d.cooldown
}

// AutoPlay requests a scheduler-driven switch to id (spec.md §4.5's
// "Scheduler picks id X/Y" event). A no-op if id is already current or
// pending, or if the cooldown blocks switching away from a Playing track.
func (d *Director) AutoPlay(id uint32, batch *drawcmd.Batch) {
	if d.state == Playing && d.current == id {
		return
	}
	if d.state == Pending && d.pending == id {
		return
	}
	if d.onCooldown() {
		return
	}
	d.enterPending(id, batch)
}

// ManualPlay forces an immediate switch to id regardless of cooldown, per
// spec.md §4.5's "User manual-play Y" transitions, which bypass the
// cooldown unconditionally.
func (d *Director) ManualPlay(id uint32, batch *drawcmd.Batch) {
	if d.state == Playing && d.current == id {
		return
	}
	if d.state == Pending && d.pending == id {
		return
	}
	d.enterPending(id, batch)
}

// enterPending stops whatever is currently Playing (if anything), starts
// id, and moves to Pending(id). Start is emitted on entering Pending, not
// on the later Pending -> Playing confirmation, matching the literal
// transition table in spec.md §4.5.
func (d *Director) enterPending(id uint32, batch *drawcmd.Batch) {
	if d.state == Playing && batch != nil {
		batch.Append(drawcmd.OpStopPlayback, d.current)
	}
	d.pending = id
	d.current = 0
	d.state = Pending
	if batch != nil {
		batch.Append(drawcmd.OpStartPlayback, id)
	}
}

// Release stops the current Playing track with no replacement queued,
// once the cooldown has elapsed, used when the scheduler's closest
// autoplay-eligible artist leaves range without a new one taking its
// place. Returns false without effect if not Playing or still cooling
// down.
func (d *Director) Release(batch *drawcmd.Batch) bool {
	if d.state != Playing || d.onCooldown() {
		return false
	}
	id := d.current
	d.current = 0
	d.state = Idle
	d.sinceStart = 0
	if batch != nil {
		batch.Append(drawcmd.OpStopPlayback, id)
	}
	return true
}

// ConfirmPending transitions a Pending track to Playing once the preview
// URL has resolved externally (spec.md §4.5 "Preview URLs resolved").
// Emits no command.
func (d *Director) ConfirmPending() {
	if d.state != Pending {
		return
	}
	d.current = d.pending
	d.pending = 0
	d.state = Playing
	d.sinceStart = 0
}

// NoPreviewAvailable transitions a Pending track back to Idle when no
// preview URL could be resolved (spec.md §4.5 "No preview URLs").
func (d *Director) NoPreviewAvailable(batch *drawcmd.Batch) {
	if d.state != Pending {
		return
	}
	id := d.pending
	d.pending = 0
	d.state = Idle
	if batch != nil {
		batch.Append(drawcmd.OpStopPlayback, id)
	}
}

// OnFinished transitions a Playing track back to Idle (spec.md §4.5
// "Playback end event").
func (d *Director) OnFinished(batch *drawcmd.Batch) {
	if d.state != Playing {
		return
	}
	id := d.current
	d.current = 0
	d.state = Idle
	d.sinceStart = 0
	if batch != nil {
		batch.Append(drawcmd.OpStopPlayback, id)
	}
}

// Stop forces the Director back to Idle without emitting a command, used
// when the engine itself is being torn down or reset.
func (d *Director) Stop() {
	d.state = Idle
	d.current = 0
	d.pending = 0
	d.sinceStart = 0
}
