package segment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/stretchr/testify/require"
)

// writeTestMP4 writes a minimal valid MP4 (ftyp + moov with one track)
// and returns its path.
func writeTestMP4(t *testing.T, dir, name string, timescale uint32) string {
	t.Helper()
	init := mp4.CreateEmptyInit()
	init.AddEmptyTrack(timescale, "video", "und")
	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	require.NoError(t, err)
	require.NoError(t, init.Encode(f))
	require.NoError(t, f.Close())
	return p
}

func TestProbeFile(t *testing.T) {
	dir := t.TempDir()
	p := writeTestMP4(t, dir, "seg.mp4", 90000)

	sigs, err := ProbeFile(p)
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	require.Equal(t, uint32(90000), sigs[0].Timescale)
	require.NotEmpty(t, sigs[0].HandlerType)
}

func TestProbeFileNotMP4(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "junk.mp4")
	require.NoError(t, os.WriteFile(p, []byte("this is not an mp4 file at all"), 0o644))

	_, err := ProbeFile(p)
	require.Error(t, err)
}

func TestProbeFileMissing(t *testing.T) {
	_, err := ProbeFile(filepath.Join(t.TempDir(), "nosuch.mp4"))
	require.Error(t, err)
}

func TestCheckUniform(t *testing.T) {
	video := TrackSig{HandlerType: "vide", SampleEntry: "avc1", Timescale: 90000}
	audio := TrackSig{HandlerType: "soun", SampleEntry: "mp4a", Timescale: 48000}

	require.NoError(t, CheckUniform(nil))
	require.NoError(t, CheckUniform([][]TrackSig{{video}}))
	require.NoError(t, CheckUniform([][]TrackSig{{video, audio}, {video, audio}, {video, audio}}))

	// Different codec in the second segment.
	other := video
	other.SampleEntry = "hvc1"
	err := CheckUniform([][]TrackSig{{video, audio}, {other, audio}})
	require.Error(t, err)

	// Track count mismatch.
	err = CheckUniform([][]TrackSig{{video, audio}, {video}})
	require.Error(t, err)
}
