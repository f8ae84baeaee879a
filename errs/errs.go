// SPDX-FileCopyrightText: © 2024 Galaxygraph Authors
// SPDX-License-Identifier: BSD-2-Clause

// Package errs collects the error taxonomy shared across the embedding,
// relationship, and scheduler packages (see spec.md §7). It exists so that
// leaf packages can raise these conditions without importing the root
// engine package, which would create an import cycle.
package errs

import "fmt"

// CorruptEmbeddingError is returned when the packed embedding byte buffer
// cannot be decoded. Fatal: the engine refuses to initialize.
type CorruptEmbeddingError struct {
	Reason string
}

func (e *CorruptEmbeddingError) Error() string {
	return fmt.Sprintf("corrupt embedding: %s", e.Reason)
}

// UnknownArtistError is raised when a relationship chunk references an
// artist id absent from the Embedding Store. Recoverable: callers log and
// drop the offending edge.
type UnknownArtistError struct {
	ID uint32
}

func (e *UnknownArtistError) Error() string {
	return fmt.Sprintf("unknown artist id %d", e.ID)
}

// InvariantViolation indicates an internal bug, such as the renderer
// requesting geometry for an id with no known position. The panic value is
// expected to take down the hosting worker, which is expected to restart.
type InvariantViolation struct {
	Reason string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation: %s", e.Reason)
}

// PanicInvariant raises an InvariantViolation. Only ever called for
// conditions that indicate a programming error in the scheduler, never for
// malformed external input.
func PanicInvariant(reason string) {
	panic(&InvariantViolation{Reason: reason})
}
