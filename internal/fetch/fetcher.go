// Copyright 2025, the segstitch authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package fetch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/segstitch/segstitch/internal/store"
)

// DefaultWorkers bounds how many segments are fetched in parallel per session.
const DefaultWorkers = 4

// FetchError reports a failed fetch of one segment.
type FetchError struct {
	ObjectID string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch segment %s: %s", e.ObjectID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher retrieves full segment byte streams from the blob store.
type Fetcher struct {
	store   store.Store
	workers int
}

func NewFetcher(s store.Store, workers int) *Fetcher {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Fetcher{store: s, workers: workers}
}

// FetchSegment drains the chunks of one segment in index order into dstPath.
// On any error the partial file is removed.
func (f *Fetcher) FetchSegment(ctx context.Context, meta store.ObjectMeta, dstPath string) (int64, error) {
	dst, err := os.Create(dstPath)
	if err != nil {
		return 0, &FetchError{ObjectID: meta.ObjectID, Err: err}
	}
	cr := store.NewChunkReader(ctx, f.store, meta.ObjectID)
	n, err := io.Copy(dst, cr)
	if clErr := dst.Close(); err == nil {
		err = clErr
	}
	if err != nil {
		os.Remove(dstPath)
		return 0, &FetchError{ObjectID: meta.ObjectID, Err: err}
	}
	return n, nil
}

// Stage fetches all segments into dir with bounded parallelism and returns
// the local file paths in the same (ordinal) order as segs. Each segment's
// chunk sequence is fetched strictly sequentially; only whole segments run
// in parallel. The first failure cancels the remaining fetches.
func (f *Fetcher) Stage(ctx context.Context, segs []store.ObjectMeta, dir string) ([]string, error) {
	paths := make([]string, len(segs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)
	for i, seg := range segs {
		paths[i] = filepath.Join(dir, fmt.Sprintf("seg_%05d.mp4", i))
		g.Go(func() error {
			n, err := f.FetchSegment(gctx, seg, paths[i])
			if err != nil {
				return err
			}
			if seg.SizeBytes > 0 && n != seg.SizeBytes {
				os.Remove(paths[i])
				return &FetchError{
					ObjectID: seg.ObjectID,
					Err:      fmt.Errorf("size mismatch: got %d bytes, metadata says %d", n, seg.SizeBytes),
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}
