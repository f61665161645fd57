// Copyright 2025, the segstitch authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package session coordinates one video restream request: resolve the
// segment set, stage the segments, remux them, and relay the output to
// the client transport. A session owns a private scratch workspace and
// at most one remux subprocess, and tears both down exactly once.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/segstitch/segstitch/internal/fetch"
	"github.com/segstitch/segstitch/internal/remux"
	"github.com/segstitch/segstitch/internal/store"
)

// State is the session lifecycle state.
type State int

const (
	StateInitializing State = iota
	StateResolving
	StateFetching
	StateRemuxing
	StateStreaming
	StateCompleted
	StateFailed
	StateCancelled
)

func (st State) String() string {
	switch st {
	case StateInitializing:
		return "initializing"
	case StateResolving:
		return "resolving"
	case StateFetching:
		return "fetching"
	case StateRemuxing:
		return "remuxing"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", int(st))
	}
}

// ErrCancelled is reported when the client went away mid-session.
var ErrCancelled = errors.New("session cancelled by client")

// Config carries the collaborators and settings shared by all sessions.
type Config struct {
	Store        store.Store
	WorkRoot     string // parent directory for session workspaces
	FFmpeg       string // remux binary, empty means PATH lookup
	FetchWorkers int
}

// Session is one client restream request. Sessions are independent:
// they share only the store connection pool.
type Session struct {
	videoID  string
	workDir  string
	cfg      Config
	resolver *fetch.Resolver
	fetcher  *fetch.Fetcher
	log      *slog.Logger

	mu       sync.Mutex
	state    State
	pipeline *remux.Pipeline
	teardown sync.Once
}

// New creates a session for videoID with a fresh private workspace under
// cfg.WorkRoot. The caller must end the session with Close, which Serve
// already does on all paths.
func New(cfg Config, videoID string, log *slog.Logger) (*Session, error) {
	workDir := filepath.Join(cfg.WorkRoot,
		fmt.Sprintf("video-%s-%d", videoID, time.Now().UnixMilli()))
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create session workspace: %w", err)
	}
	s := &Session{
		videoID:  videoID,
		workDir:  workDir,
		cfg:      cfg,
		resolver: fetch.NewResolver(cfg.Store),
		fetcher:  fetch.NewFetcher(cfg.Store, cfg.FetchWorkers),
		log:      log.With("videoId", videoID, "workspace", filepath.Base(workDir)),
		state:    StateInitializing,
	}
	return s, nil
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// WorkDir returns the session's scratch workspace path.
func (s *Session) WorkDir() string {
	return s.workDir
}

// Serve runs the session to a terminal state, relaying remux output to w.
// It returns nil on completion, ErrCancelled if ctx was cancelled during
// fetch, remux, or streaming, and the failing component's error otherwise.
// Once Serve has written bytes to w, a later error only truncates the
// stream; the caller cannot send a structured error anymore.
func (s *Session) Serve(ctx context.Context, w io.Writer) (err error) {
	defer s.Close()
	defer func() {
		s.finish(ctx, err)
	}()

	s.setState(StateResolving)
	segs, err := s.resolver.Resolve(ctx, s.videoID)
	if err != nil {
		return err
	}
	s.log.Debug("segment set resolved", "segments", len(segs))

	s.setState(StateFetching)
	paths, err := s.fetcher.Stage(ctx, segs, s.workDir)
	if err != nil {
		return err
	}

	s.setState(StateRemuxing)
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := remux.Start(s.cfg.FFmpeg, paths, s.workDir)
	if err != nil {
		return err
	}
	s.setPipeline(p)

	// Kill the subprocess promptly when the client goes away, instead
	// of waiting for the relay to notice a dead transport.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			p.Kill()
		case <-watchDone:
		}
	}()

	s.setState(StateStreaming)
	n, cpErr := io.Copy(w, p.Output())
	waitErr := p.Wait()
	s.log.Debug("relay done", "bytes", n, "copyErr", cpErr, "waitErr", waitErr)
	if err := ctx.Err(); err != nil {
		return err
	}
	if cpErr != nil {
		return fmt.Errorf("relay output: %w", cpErr)
	}
	return waitErr
}

// Close force-terminates any running subprocess and deletes the session
// workspace. It runs its work exactly once and is safe to call multiple
// times and from any goroutine.
func (s *Session) Close() {
	s.teardown.Do(func() {
		s.mu.Lock()
		p := s.pipeline
		s.mu.Unlock()
		if p != nil {
			p.Kill()
		}
		if err := os.RemoveAll(s.workDir); err != nil {
			s.log.Error("workspace removal failed", "err", err)
		}
	})
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) setPipeline(p *remux.Pipeline) {
	s.mu.Lock()
	s.pipeline = p
	s.mu.Unlock()
}

// finish maps the Serve outcome to the terminal state. Cancellation is
// only observable from the fetching, remuxing, and streaming phases;
// earlier phases have nothing in flight to cancel.
func (s *Session) finish(ctx context.Context, err error) {
	s.mu.Lock()
	prev := s.state
	s.mu.Unlock()
	switch {
	case err == nil:
		s.setState(StateCompleted)
		s.log.Info("session completed")
	case ctx.Err() != nil && prev >= StateFetching:
		s.setState(StateCancelled)
		s.log.Info("session cancelled", "phase", prev.String())
	default:
		s.setState(StateFailed)
		s.log.Warn("session failed", "phase", prev.String(), "err", err)
	}
}

// Classify maps a Serve error onto the session error taxonomy.
// The zero cases stay as-is: store.ErrNotFound, *fetch.FetchError, and
// *remux.Error pass through errors.As/Is at the caller.
func Classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return ErrCancelled
	}
	return err
}
