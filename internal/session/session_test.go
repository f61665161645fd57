package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/segstitch/segstitch/internal/store"
	"github.com/segstitch/segstitch/pkg/logging"
)

// fakeRemux understands the pipeline's argument layout and concatenates
// its inputs to stdout, like a stream-copy remux without the container
// rewrite.
const fakeRemux = `#!/bin/sh
concat=""
input=""
prev=""
for a in "$@"; do
  case "$prev" in
  -f) [ "$a" = "concat" ] && concat=1 ;;
  -i) input="$a" ;;
  esac
  prev="$a"
done
if [ -n "$concat" ]; then
  while IFS= read -r line; do
    f=${line#file \'}
    f=${f%\'}
    cat "$f"
  done <"$input"
else
  cat "$input"
fi
`

func testConfig(t *testing.T) (Config, store.Store) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	bin := filepath.Join(t.TempDir(), "fake-ffmpeg")
	require.NoError(t, os.WriteFile(bin, []byte(fakeRemux), 0o755))

	return Config{
		Store:        s,
		WorkRoot:     t.TempDir(),
		FFmpeg:       bin,
		FetchWorkers: 3,
	}, s
}

func TestServeMultiSegment(t *testing.T) {
	require.NoError(t, logging.InitSlog("INFO", logging.LogDiscard))
	cfg, s := testConfig(t)
	ctx := context.Background()

	// Three segments: 100, 150, 120 bytes.
	var want bytes.Buffer
	for i, size := range []int{100, 150, 120} {
		data := bytes.Repeat([]byte{byte('a' + i)}, size)
		want.Write(data)
		_, err := s.WriteObject(ctx, "v1", i, fmt.Sprintf("seg%d.mp4", i), bytes.NewReader(data))
		require.NoError(t, err)
	}

	sess, err := New(cfg, "v1", logging.Default())
	require.NoError(t, err)
	workDir := sess.WorkDir()
	require.DirExists(t, workDir)

	var out bytes.Buffer
	require.NoError(t, sess.Serve(ctx, &out))
	require.Equal(t, want.Bytes(), out.Bytes())
	require.Equal(t, StateCompleted, sess.State())

	// Workspace is gone after the terminal state.
	require.NoDirExists(t, workDir)
}

func TestServeSingleSegment(t *testing.T) {
	require.NoError(t, logging.InitSlog("INFO", logging.LogDiscard))
	cfg, s := testConfig(t)
	ctx := context.Background()

	data := bytes.Repeat([]byte("z"), 300)
	_, err := s.WriteObject(ctx, "v2", 0, "seg0.mp4", bytes.NewReader(data))
	require.NoError(t, err)

	sess, err := New(cfg, "v2", logging.Default())
	require.NoError(t, err)
	workDir := sess.WorkDir()

	var out bytes.Buffer
	require.NoError(t, sess.Serve(ctx, &out))
	require.Equal(t, data, out.Bytes())

	// Single input: the session never wrote a concat manifest.
	// The workspace is removed either way.
	require.NoDirExists(t, workDir)
}

func TestServeNotFoundLeavesNoWorkspace(t *testing.T) {
	require.NoError(t, logging.InitSlog("INFO", logging.LogDiscard))
	cfg, _ := testConfig(t)

	sess, err := New(cfg, "nosuch", logging.Default())
	require.NoError(t, err)
	workDir := sess.WorkDir()

	var out bytes.Buffer
	err = sess.Serve(context.Background(), &out)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.Equal(t, StateFailed, sess.State())
	require.Zero(t, out.Len())
	require.NoDirExists(t, workDir)
}

// stallingWriter blocks after the first write until released, simulating
// a client that stops consuming, then fails like a closed transport.
type stallingWriter struct {
	first   chan struct{}
	release chan struct{}
	wrote   bool
}

func (sw *stallingWriter) Write(p []byte) (int, error) {
	if !sw.wrote {
		sw.wrote = true
		close(sw.first)
	}
	<-sw.release
	return 0, io.ErrClosedPipe
}

func TestServeCancelMidStream(t *testing.T) {
	require.NoError(t, logging.InitSlog("INFO", logging.LogDiscard))
	cfg, s := testConfig(t)
	bkg := context.Background()

	data := bytes.Repeat([]byte("x"), 512*1024)
	_, err := s.WriteObject(bkg, "v1", 0, "seg0.mp4", bytes.NewReader(data))
	require.NoError(t, err)

	sess, err := New(cfg, "v1", logging.Default())
	require.NoError(t, err)
	workDir := sess.WorkDir()

	ctx, cancel := context.WithCancel(bkg)
	sw := &stallingWriter{first: make(chan struct{}), release: make(chan struct{})}

	served := make(chan error, 1)
	go func() {
		served <- sess.Serve(ctx, sw)
	}()

	<-sw.first
	cancel() // client goes away mid-stream
	close(sw.release)

	select {
	case err := <-served:
		require.Error(t, err)
		require.ErrorIs(t, Classify(ctx, err), ErrCancelled)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not terminate after cancellation")
	}
	require.Equal(t, StateCancelled, sess.State())
	require.NoDirExists(t, workDir)
}

func TestClassify(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, Classify(ctx, nil))
	require.ErrorIs(t, Classify(ctx, context.Canceled), ErrCancelled)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	require.ErrorIs(t, Classify(cancelled, io.ErrClosedPipe), ErrCancelled)

	require.ErrorIs(t, Classify(ctx, io.ErrClosedPipe), io.ErrClosedPipe)
}
