// Copyright 2025, the segstitch authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package fetch resolves a video's segment set and stages segment data
// from the chunked blob store into a session workspace.
package fetch

import (
	"context"
	"errors"
	"fmt"

	"github.com/segstitch/segstitch/internal/store"
)

// Resolver finds the ordered segment set belonging to a video id.
type Resolver struct {
	store store.Store
}

func NewResolver(s store.Store) *Resolver {
	return &Resolver{store: s}
}

// Resolve returns the segments of video id, ordered by ordinal ascending.
// The id may be a group id, or the object id of a single segment; in the
// latter case the segment's group is looked up from its metadata and the
// full group is returned. An unknown id gives store.ErrNotFound.
func (r *Resolver) Resolve(ctx context.Context, id string) ([]store.ObjectMeta, error) {
	segs, err := r.store.ObjectsByGroup(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resolve group %s: %w", id, err)
	}
	if len(segs) > 0 {
		return segs, nil
	}
	// Alternate addressing: id may be one segment's own object id.
	obj, err := r.store.ObjectByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("video %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve object %s: %w", id, err)
	}
	segs, err = r.store.ObjectsByGroup(ctx, obj.GroupID)
	if err != nil {
		return nil, fmt.Errorf("resolve group %s of object %s: %w", obj.GroupID, id, err)
	}
	if len(segs) == 0 {
		// The object row exists, so its group cannot be empty.
		return nil, fmt.Errorf("group %s of object %s: %w", obj.GroupID, id, store.ErrNotFound)
	}
	return segs, nil
}
