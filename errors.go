// SPDX-FileCopyrightText: © 2024 Galaxygraph Authors
// SPDX-License-Identifier: BSD-2-Clause

package engine

// errors.go re-exports the shared error taxonomy (see package errs) at the
// root so callers of the public Context API never need to import an
// internal-looking package path directly.

import "github.com/galaxygraph/engine/errs"

type (
	// CorruptEmbeddingError — malformed bytes or non-finite coordinates.
	// Fatal; DecodePackedPositions refuses to initialize the Context.
	CorruptEmbeddingError = errs.CorruptEmbeddingError

	// UnknownArtistError — a non-decoded id referenced from a relationship
	// chunk. Logged and the edge dropped; never returned to callers.
	UnknownArtistError = errs.UnknownArtistError

	// InvariantViolation — internal bug. Panics; the hosting worker is
	// expected to restart.
	InvariantViolation = errs.InvariantViolation
)
