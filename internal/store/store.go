// Copyright 2025, the segstitch authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package store provides access to the chunked blob store that holds
// video segments. An object is an ordered sequence of fixed-size chunks
// plus metadata tying it to a segment group.
package store

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when an object, group, or chunk does not exist.
var ErrNotFound = errors.New("not found")

// DefaultChunkSize is the payload size used when splitting objects into chunks.
const DefaultChunkSize = 255 * 1024

// ObjectMeta describes one stored object (a video segment).
type ObjectMeta struct {
	ObjectID   string
	GroupID    string
	Ordinal    int
	Filename   string
	SizeBytes  int64
	ChunkCount int
}

// GroupInfo summarizes one segment group (a stored video).
type GroupInfo struct {
	GroupID   string
	Segments  int
	SizeBytes int64
}

// Store is a chunked blob store. Objects are immutable once written:
// a WriteObject call either commits the full object or leaves no trace.
// Implementations must be safe for concurrent use.
type Store interface {
	// ObjectByID returns metadata for a single object, or ErrNotFound.
	ObjectByID(ctx context.Context, objectID string) (ObjectMeta, error)
	// ObjectsByGroup returns all objects of a group, ordered by
	// (ordinal, objectID) ascending. An unknown group gives an empty slice.
	ObjectsByGroup(ctx context.Context, groupID string) ([]ObjectMeta, error)
	// Groups lists all segment groups in the store.
	Groups(ctx context.Context) ([]GroupInfo, error)
	// Chunk returns the payload of chunk idx of an object.
	// ErrNotFound after chunk idx-1 exists signals end-of-object.
	Chunk(ctx context.Context, objectID string, idx int) ([]byte, error)
	// WriteObject stores the full content of r as a new object.
	WriteObject(ctx context.Context, groupID string, ordinal int, filename string, r io.Reader) (ObjectMeta, error)
	// DeleteGroup removes all objects and chunks of a group.
	DeleteGroup(ctx context.Context, groupID string) error
	// Close drains the store's connection pool.
	Close() error
}
