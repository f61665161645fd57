// Copyright 2025, the segstitch authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package remux drives an ffmpeg subprocess that concatenates segment
// files and rewrites the container for progressive playback. The media
// bitstreams are stream-copied, never re-encoded.
package remux

import (
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// DefaultBinary is the remux command looked up in PATH when no
// explicit path is configured.
const DefaultBinary = "ffmpeg"

// fragmentedMP4Flags makes the output playable before the full file is
// available: fragments at keyframes, moov up front, no trailing index.
const fragmentedMP4Flags = "frag_keyframe+empty_moov+default_base_moof"

// ProcState tracks the remux subprocess lifecycle.
type ProcState int

const (
	ProcSpawned ProcState = iota
	ProcRunning
	ProcExited
	ProcKilled
)

func (ps ProcState) String() string {
	switch ps {
	case ProcSpawned:
		return "spawned"
	case ProcRunning:
		return "running"
	case ProcExited:
		return "exited"
	case ProcKilled:
		return "killed"
	default:
		return fmt.Sprintf("unknown(%d)", ps)
	}
}

// Error reports a remux subprocess failure, with the tail of its
// diagnostic output when available.
type Error struct {
	Stage  string
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("remux %s: %s: %s", e.Stage, e.Err, e.Stderr)
	}
	return fmt.Sprintf("remux %s: %s", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Pipeline is one owned remux subprocess. Output bytes are consumed
// incrementally through Output; the caller must end the pipeline with
// either Wait (after draining) or Kill, exactly one of which reaps the
// process.
type Pipeline struct {
	cmd    *exec.Cmd
	out    io.ReadCloser
	stderr *tailBuffer

	mu     sync.Mutex
	state  ProcState
	waited bool
}

// Start spawns the remux subprocess for the given ordered input files.
// With a single input the file is remuxed directly; with several, a
// concat manifest is written into workDir and the concat demuxer joins
// them in order. The output policy is fixed: stream copy into a
// fragmented MP4 on stdout.
func Start(binary string, inputs []string, workDir string) (*Pipeline, error) {
	if binary == "" {
		binary = DefaultBinary
	}
	if len(inputs) == 0 {
		return nil, &Error{Stage: "start", Err: fmt.Errorf("no inputs")}
	}

	var inputArgs []string
	if len(inputs) == 1 {
		inputArgs = []string{"-i", inputs[0]}
	} else {
		manifest, err := writeConcatManifest(workDir, inputs)
		if err != nil {
			return nil, &Error{Stage: "start", Err: err}
		}
		inputArgs = []string{"-f", "concat", "-safe", "0", "-i", manifest}
	}

	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	args = append(args, inputArgs...)
	args = append(args,
		"-c", "copy",
		"-movflags", fragmentedMP4Flags,
		"-f", "mp4",
		"pipe:1",
	)

	cmd := exec.Command(binary, args...)
	stderr := newTailBuffer(4096)
	cmd.Stderr = stderr
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &Error{Stage: "start", Err: err}
	}
	p := &Pipeline{cmd: cmd, out: out, stderr: stderr, state: ProcSpawned}
	if err := cmd.Start(); err != nil {
		return nil, &Error{Stage: "start", Err: err, Stderr: stderr.String()}
	}
	p.setState(ProcRunning)
	return p, nil
}

// Output returns the subprocess stdout. Reads block until the process
// produces data, which propagates client backpressure into the pipe.
func (p *Pipeline) Output() io.Reader {
	return p.out
}

// Wait reaps the process after its output has been drained.
// A non-zero exit becomes an *Error carrying the stderr tail.
func (p *Pipeline) Wait() error {
	p.mu.Lock()
	if p.waited {
		st := p.state
		p.mu.Unlock()
		if st == ProcKilled {
			return &Error{Stage: "run", Err: fmt.Errorf("killed")}
		}
		return nil
	}
	p.waited = true
	p.mu.Unlock()

	err := p.cmd.Wait()
	p.mu.Lock()
	if p.state != ProcKilled {
		p.state = ProcExited
	}
	killed := p.state == ProcKilled
	p.mu.Unlock()
	if err != nil && !killed {
		return &Error{Stage: "run", Err: err, Stderr: p.stderr.String()}
	}
	return nil
}

// Kill force-terminates the subprocess and reaps it. It is idempotent
// and safe to call from a goroutine other than the one reading Output.
func (p *Pipeline) Kill() {
	p.mu.Lock()
	if p.state == ProcExited || p.state == ProcKilled {
		p.mu.Unlock()
		return
	}
	p.state = ProcKilled
	alreadyWaited := p.waited
	p.waited = true
	p.mu.Unlock()

	_ = p.cmd.Process.Kill()
	p.out.Close()
	if !alreadyWaited {
		_ = p.cmd.Wait()
	}
}

// State returns the current process state.
func (p *Pipeline) State() ProcState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipeline) setState(st ProcState) {
	p.mu.Lock()
	p.state = st
	p.mu.Unlock()
}

// tailBuffer keeps the last max bytes written to it, for error messages.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf bytes.Buffer
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (tb *tailBuffer) Write(p []byte) (int, error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.buf.Write(p)
	if tb.buf.Len() > tb.max {
		data := tb.buf.Bytes()
		excess := len(data) - tb.max
		trimmed := append([]byte(nil), data[excess:]...)
		tb.buf.Reset()
		tb.buf.Write(trimmed)
	}
	return len(p), nil
}

func (tb *tailBuffer) String() string {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return strings.TrimSpace(tb.buf.String())
}
