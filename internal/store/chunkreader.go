// Copyright 2025, the segstitch authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package store

import (
	"context"
	"errors"
	"io"
)

// ChunkReader is a lazy io.Reader over one object's chunk sequence.
// It probes chunks 0, 1, 2, ... with sequential point lookups and
// reports io.EOF when the store has no chunk at the next index, so
// callers never see the missing-chunk sentinel.
type ChunkReader struct {
	ctx     context.Context
	store   Store
	id      string
	nextIdx int
	buf     []byte
	done    bool
	err     error
}

// NewChunkReader returns a reader over the chunks of objectID.
// The context is checked on every chunk probe.
func NewChunkReader(ctx context.Context, s Store, objectID string) *ChunkReader {
	return &ChunkReader{ctx: ctx, store: s, id: objectID}
}

func (cr *ChunkReader) Read(p []byte) (int, error) {
	if cr.err != nil {
		return 0, cr.err
	}
	for len(cr.buf) == 0 {
		if cr.done {
			cr.err = io.EOF
			return 0, io.EOF
		}
		if err := cr.ctx.Err(); err != nil {
			cr.err = err
			return 0, err
		}
		payload, err := cr.store.Chunk(cr.ctx, cr.id, cr.nextIdx)
		switch {
		case errors.Is(err, ErrNotFound):
			cr.done = true
		case err != nil:
			cr.err = err
			return 0, err
		default:
			cr.buf = payload
			cr.nextIdx++
		}
	}
	n := copy(p, cr.buf)
	cr.buf = cr.buf[n:]
	return n, nil
}

// Chunks reports how many chunks have been fully or partially consumed.
func (cr *ChunkReader) Chunks() int {
	return cr.nextIdx
}
