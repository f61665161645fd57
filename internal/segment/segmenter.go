// Copyright 2025, the segstitch authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package segment implements the upload side: splitting a video into
// fixed-duration stream-copy segments and writing them to the blob
// store as one ordered group.
package segment

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/segstitch/segstitch/internal/store"
)

// DefaultDurationS is the target duration of one segment in seconds.
const DefaultDurationS = 8

// Segmenter splits uploaded videos into segments and stores them.
type Segmenter struct {
	FFmpeg    string // segmenting binary, empty means "ffmpeg" in PATH
	DurationS int    // segment duration, DefaultDurationS when <= 0
	Store     store.Store
	Log       *slog.Logger
}

// Result reports where the segments of a stored video ended up.
type Result struct {
	VideoID  string
	Segments int
}

// StoreSegments splits the video file at inputPath into segments without
// re-encoding, checks that the segments are mutually concatenation-safe,
// and writes them to the store under a fresh video id with increasing
// ordinals. Scratch files live in a private temp directory that is
// removed before return.
func (sg *Segmenter) StoreSegments(ctx context.Context, inputPath string) (Result, error) {
	tmpDir, err := os.MkdirTemp("", "segstitch-upload-*")
	if err != nil {
		return Result{}, fmt.Errorf("create segmenting dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	segPaths, err := sg.split(ctx, inputPath, tmpDir)
	if err != nil {
		return Result{}, err
	}
	if len(segPaths) == 0 {
		return Result{}, fmt.Errorf("segmenting produced no segments")
	}

	sigs := make([][]TrackSig, 0, len(segPaths))
	for _, p := range segPaths {
		sig, err := ProbeFile(p)
		if err != nil {
			return Result{}, fmt.Errorf("segment compatibility probe: %w", err)
		}
		sigs = append(sigs, sig)
	}
	if err := CheckUniform(sigs); err != nil {
		return Result{}, fmt.Errorf("segments are not concatenation-safe: %w", err)
	}

	videoID := strconv.FormatInt(time.Now().UnixMilli(), 10)
	for i, p := range segPaths {
		if err := sg.storeSegment(ctx, videoID, i, p); err != nil {
			return Result{}, fmt.Errorf("store segment %d: %w", i, err)
		}
	}
	sg.Log.Info("video segmented and stored", "videoId", videoID, "segments", len(segPaths))
	return Result{VideoID: videoID, Segments: len(segPaths)}, nil
}

func (sg *Segmenter) storeSegment(ctx context.Context, videoID string, ordinal int, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = sg.Store.WriteObject(ctx, videoID, ordinal, filepath.Base(path), f)
	return err
}

// split runs the segmenting subprocess: stream copy, fixed segment time.
func (sg *Segmenter) split(ctx context.Context, inputPath, outDir string) ([]string, error) {
	binary := sg.FFmpeg
	if binary == "" {
		binary = "ffmpeg"
	}
	durS := sg.DurationS
	if durS <= 0 {
		durS = DefaultDurationS
	}
	pattern := filepath.Join(outDir, "segment_%05d.mp4")
	cmd := exec.CommandContext(ctx, binary,
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-i", inputPath,
		"-c", "copy",
		"-map", "0",
		"-f", "segment",
		"-segment_time", strconv.Itoa(durS),
		pattern,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("segmenting failed: %w: %s", err, string(out))
	}
	matches, err := filepath.Glob(filepath.Join(outDir, "segment_*.mp4"))
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	sort.Strings(matches)
	return matches, nil
}
