package fetch

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/segstitch/segstitch/internal/store"
)

func TestFetchSegment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	data := make([]byte, 600*1024) // more than two chunks at the default chunk size
	_, err := rand.Read(data)
	require.NoError(t, err)
	m, err := s.WriteObject(ctx, "v1", 0, "seg.mp4", bytes.NewReader(data))
	require.NoError(t, err)
	require.Greater(t, m.ChunkCount, 2)

	f := NewFetcher(s, 0)
	dst := filepath.Join(t.TempDir(), "seg.mp4")
	n, err := f.FetchSegment(ctx, m, dst)
	require.NoError(t, err)
	require.Equal(t, m.SizeBytes, n)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestStageOrderAndContent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Three segments, 100/150/120 bytes with small chunks.
	want := make([][]byte, 3)
	for i, size := range []int{100, 150, 120} {
		want[i] = bytes.Repeat([]byte{byte('a' + i)}, size)
		_, err := s.WriteObject(ctx, "v1", i, fmt.Sprintf("seg%d.mp4", i), bytes.NewReader(want[i]))
		require.NoError(t, err)
	}
	segs, err := NewResolver(s).Resolve(ctx, "v1")
	require.NoError(t, err)

	dir := t.TempDir()
	paths, err := NewFetcher(s, 3).Stage(ctx, segs, dir)
	require.NoError(t, err)
	require.Len(t, paths, 3)

	for i, p := range paths {
		got, err := os.ReadFile(p)
		require.NoError(t, err)
		require.Equal(t, want[i], got, "staged file %d", i)
	}
}

// failingStore injects a chunk read error for one object.
type failingStore struct {
	store.Store
	failObjectID string
	failIdx      int
}

func (fs *failingStore) Chunk(ctx context.Context, objectID string, idx int) ([]byte, error) {
	if objectID == fs.failObjectID && idx == fs.failIdx {
		return nil, errors.New("store read error")
	}
	return fs.Store.Chunk(ctx, objectID, idx)
}

func TestStageFailureDiscardsPartialData(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var failing store.ObjectMeta
	for i := 0; i < 3; i++ {
		m, err := s.WriteObject(ctx, "v1", i, "seg.mp4", bytes.NewReader(bytes.Repeat([]byte("x"), 100)))
		require.NoError(t, err)
		if i == 1 {
			failing = m
		}
	}
	segs, err := NewResolver(s).Resolve(ctx, "v1")
	require.NoError(t, err)

	fs := &failingStore{Store: s, failObjectID: failing.ObjectID, failIdx: 0}
	dir := t.TempDir()
	_, err = NewFetcher(fs, 2).Stage(ctx, segs, dir)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, failing.ObjectID, fe.ObjectID)

	// The failing segment's partial file must be gone.
	_, statErr := os.Stat(filepath.Join(dir, "seg_00001.mp4"))
	require.True(t, os.IsNotExist(statErr))
}

func TestStageSizeMismatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m, err := s.WriteObject(ctx, "v1", 0, "seg.mp4", bytes.NewReader(bytes.Repeat([]byte("x"), 100)))
	require.NoError(t, err)

	// A store that silently truncates the chunk stream.
	fs := &truncatingStore{Store: s}
	dir := t.TempDir()
	_, err = NewFetcher(fs, 1).Stage(ctx, []store.ObjectMeta{m}, dir)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	require.Contains(t, fe.Error(), "size mismatch")
}

type truncatingStore struct {
	store.Store
}

func (ts *truncatingStore) Chunk(ctx context.Context, objectID string, idx int) ([]byte, error) {
	payload, err := ts.Store.Chunk(ctx, objectID, idx)
	if err != nil {
		return nil, err
	}
	return payload[:len(payload)/2], nil
}
