// Copyright 2025, the segstitch authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package segment

import (
	"fmt"
	"os"

	"github.com/Eyevinn/mp4ff/bits"
	"github.com/Eyevinn/mp4ff/mp4"
)

// TrackSig identifies the container-level shape of one track. Segments
// of a group must agree on their track signatures to be safe for
// stream-copy concatenation.
type TrackSig struct {
	HandlerType string // "vide", "soun", ...
	SampleEntry string // stsd sample entry type, e.g. "avc1", "mp4a"
	Timescale   uint32
}

func (ts TrackSig) String() string {
	return fmt.Sprintf("%s/%s@%d", ts.HandlerType, ts.SampleEntry, ts.Timescale)
}

// ProbeFile parses the container boxes of a segment file and returns its
// track signatures. The media payload is not loaded. A file without a
// moov box is rejected: such a segment cannot be remuxed on its own.
func ProbeFile(path string) ([]TrackSig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read segment: %w", err)
	}
	sr := bits.NewFixedSliceReader(data)
	f, err := mp4.DecodeFileSR(sr, mp4.WithDecodeFlags(mp4.DecFileFlags(mp4.DecModeLazyMdat)))
	if err != nil {
		return nil, fmt.Errorf("decode segment %s: %w", path, err)
	}
	if f.Moov == nil {
		return nil, fmt.Errorf("segment %s has no moov box", path)
	}
	if len(f.Moov.Traks) == 0 {
		return nil, fmt.Errorf("segment %s has no tracks", path)
	}
	sigs := make([]TrackSig, 0, len(f.Moov.Traks))
	for _, trak := range f.Moov.Traks {
		var sig TrackSig
		if trak.Mdia == nil || trak.Mdia.Hdlr == nil || trak.Mdia.Mdhd == nil {
			return nil, fmt.Errorf("segment %s has an incomplete track header", path)
		}
		sig.HandlerType = trak.Mdia.Hdlr.HandlerType
		sig.Timescale = trak.Mdia.Mdhd.Timescale
		if stbl := trak.Mdia.Minf; stbl != nil && stbl.Stbl != nil && stbl.Stbl.Stsd != nil &&
			len(stbl.Stbl.Stsd.Children) > 0 {
			sig.SampleEntry = stbl.Stbl.Stsd.Children[0].Type()
		}
		sigs = append(sigs, sig)
	}
	return sigs, nil
}

// CheckUniform verifies that every segment's track signatures match the
// first segment's, which makes the set concatenation-safe.
func CheckUniform(sigs [][]TrackSig) error {
	if len(sigs) < 2 {
		return nil
	}
	ref := sigs[0]
	for i, s := range sigs[1:] {
		if !sameSigs(ref, s) {
			return fmt.Errorf("segment %d tracks %v differ from segment 0 tracks %v",
				i+1, s, ref)
		}
	}
	return nil
}

func sameSigs(a, b []TrackSig) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
