// SPDX-FileCopyrightText: © 2024 Galaxygraph Authors
// SPDX-License-Identifier: BSD-2-Clause

package engine

// options.go reduces the New API footprint using functional options.
// See: http://dave.cheney.net/2014/10/17/functional-options-for-friendly-apis
//      https://commandcenter.blogspot.ca/2014/01/self-referential-functions-and-design.html

import "github.com/galaxygraph/engine/scheduler"

// config contains attributes that can be set by the caller before the
// context starts processing camera updates.
type config struct {
	isMobile      bool
	initialQuality int
	policy        scheduler.Policy
}

// configDefaults provides reasonable defaults so a context can be created
// with no options at all.
var configDefaults = config{
	isMobile:       false,
	initialQuality: 7,
	policy:         scheduler.DefaultPolicy(),
}

// Option configures a Context at creation time. For use with New.
type Option func(*config)

// Mobile marks the context as running on a mobile device and caps the
// initial quality at 6. It does not change the scheduler policy; the label
// curve is the same as on other devices.
func Mobile() Option {
	return func(c *config) {
		c.isMobile = true
		if c.initialQuality > 6 {
			c.initialQuality = 6
		}
	}
}

// InitialQuality sets the starting quality level. Out-of-range values are
// clamped by the Quality Controller itself (QualityOutOfRange, no error).
func InitialQuality(q int) Option {
	return func(c *config) { c.initialQuality = q }
}

// WithPolicy overrides the default tuning policy (radii, popularity curve,
// quality FPS bounds). Intended for tests that need deterministic, tight
// radii rather than the production-tuned defaults.
func WithPolicy(p scheduler.Policy) Option {
	return func(c *config) { c.policy = p }
}
