// SPDX-FileCopyrightText: © 2024 Galaxygraph Authors
// SPDX-License-Identifier: BSD-2-Clause

// Package quality tracks recent frame timings and steps the rendering
// quality level up or down to keep median FPS inside the scheduler
// policy's per-quality band. The ring buffer generalizes the teacher
// engine's single-shot, zeroed-each-update Profile struct (see
// gazed/vu/profile.go) into a fixed-size history.
package quality

import (
	"sort"

	"github.com/galaxygraph/engine/scheduler"
)

const ringSize = 120

// Sampler holds the last ringSize frame durations, in seconds, as a ring
// buffer. Record never allocates; MedianFPS copies the window to sort it.
type Sampler struct {
	samples [ringSize]float64
	count   int
	next    int
}

// NewSampler returns an empty Sampler.
func NewSampler() *Sampler { return &Sampler{} }

// Record appends a single frame duration in seconds.
func (s *Sampler) Record(seconds float64) {
	s.samples[s.next] = seconds
	s.next = (s.next + 1) % ringSize
	if s.count < ringSize {
		s.count++
	}
}

// MedianFPS returns the median FPS over the current window, or 0 if no
// samples have been recorded yet.
func (s *Sampler) MedianFPS() float64 {
	if s.count == 0 {
		return 0
	}
	durations := make([]float64, s.count)
	copy(durations, s.samples[:s.count])
	sort.Float64s(durations)
	mid := durations[s.count/2]
	if mid <= 0 {
		return 0
	}
	return 1.0 / mid
}

// Controller steps the current quality level based on sampled FPS,
// debounced so it never changes more often than the policy allows
// (spec.md §4.7 "every >= 3s").
type Controller struct {
	policy  scheduler.Policy
	quality int
	sampler *Sampler

	elapsedSinceChange float64
	suppressed         bool
}

// NewController returns a Controller starting at initialQuality, clamped
// to the policy's valid range.
func NewController(policy scheduler.Policy, initialQuality int) *Controller {
	q := initialQuality
	if q < scheduler.MinQuality {
		q = scheduler.MinQuality
	}
	if q > scheduler.MaxQuality {
		q = scheduler.MaxQuality
	}
	return &Controller{policy: policy, quality: q, sampler: NewSampler()}
}

// Quality returns the current quality level.
func (c *Controller) Quality() int { return c.quality }

// Suppress disables automatic stepping, used while the user has manually
// forced a quality level (spec.md §6 SetQuality).
func (c *Controller) Suppress(suppressed bool) { c.suppressed = suppressed }

// SetQuality forces the quality level, clamping out-of-range values rather
// than erroring (spec.md §7 QualityOutOfRange), and suppresses further
// automatic stepping until Suppress(false) is called.
func (c *Controller) SetQuality(q int) int {
	if q < scheduler.MinQuality {
		q = scheduler.MinQuality
	}
	if q > scheduler.MaxQuality {
		q = scheduler.MaxQuality
	}
	c.quality = q
	c.suppressed = true
	c.elapsedSinceChange = 0
	return c.quality
}

// Tick records a frame duration and, once the debounce interval has
// elapsed, steps quality up or down to bring median FPS back inside the
// current band. Returns true if the quality level changed this call.
func (c *Controller) Tick(frameSeconds float64) bool {
	c.sampler.Record(frameSeconds)
	c.elapsedSinceChange += frameSeconds

	if c.suppressed {
		return false
	}
	if c.elapsedSinceChange < c.policy.QualityDebounceSeconds {
		return false
	}

	band := c.policy.QualityBand(c.quality)
	fps := c.sampler.MedianFPS()
	if fps == 0 {
		return false
	}

	changed := false
	switch {
	case fps < band.Lower && c.quality > scheduler.MinQuality:
		c.quality--
		changed = true
	case fps > band.Upper && c.quality < scheduler.MaxQuality:
		c.quality++
		changed = true
	}
	if changed {
		c.elapsedSinceChange = 0
	}
	return changed
}

// EdgeStride returns the current quality's edge-culling stride.
func (c *Controller) EdgeStride() int { return scheduler.EdgeStride(c.quality) }

// EdgeOpacity returns the current quality's edge opacity.
func (c *Controller) EdgeOpacity() float32 { return scheduler.EdgeOpacity(c.quality) }

// SphereTessellation returns the current quality's sphere tessellation
// level.
func (c *Controller) SphereTessellation() int { return scheduler.SphereTessellation(c.quality) }
