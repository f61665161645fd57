package remux

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeRemux is a stand-in for the remux binary that understands the
// argument layout the pipeline produces: it concatenates its inputs to
// stdout without touching them.
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

func writeStub(t *testing.T, script string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "fake-ffmpeg")
	require.NoError(t, os.WriteFile(p, []byte(script), 0o755))
	return p
}

func writeInput(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestPipelineSingleInput(t *testing.T) {
	bin := writeStub(t, fakeRemux)
	dir := t.TempDir()
	in := writeInput(t, dir, "seg0.mp4", "single segment data")

	p, err := Start(bin, []string{in}, dir)
	require.NoError(t, err)
	require.Equal(t, ProcRunning, p.State())

	out, err := io.ReadAll(p.Output())
	require.NoError(t, err)
	require.Equal(t, "single segment data", string(out))
	require.NoError(t, p.Wait())
	require.Equal(t, ProcExited, p.State())

	// Single input: no concat manifest is constructed.
	_, statErr := os.Stat(filepath.Join(dir, "concat.txt"))
	require.True(t, os.IsNotExist(statErr))
}

func TestPipelineConcatInputs(t *testing.T) {
	bin := writeStub(t, fakeRemux)
	dir := t.TempDir()
	ins := []string{
		writeInput(t, dir, "seg0.mp4", "AAA"),
		writeInput(t, dir, "seg1.mp4", "BBBB"),
		writeInput(t, dir, "seg2.mp4", "CC"),
	}

	p, err := Start(bin, ins, dir)
	require.NoError(t, err)

	out, err := io.ReadAll(p.Output())
	require.NoError(t, err)
	require.Equal(t, "AAABBBBCC", string(out))
	require.NoError(t, p.Wait())

	manifest, err := os.ReadFile(filepath.Join(dir, "concat.txt"))
	require.NoError(t, err)
	require.Equal(t, concatManifest(ins), string(manifest))
}

func TestPipelineProcessError(t *testing.T) {
	bin := writeStub(t, "#!/bin/sh\necho \"segment parse failure\" 1>&2\nexit 3\n")
	dir := t.TempDir()
	in := writeInput(t, dir, "seg0.mp4", "data")

	p, err := Start(bin, []string{in}, dir)
	require.NoError(t, err)
	_, err = io.ReadAll(p.Output())
	require.NoError(t, err)

	err = p.Wait()
	var re *Error
	require.ErrorAs(t, err, &re)
	require.Contains(t, re.Stderr, "segment parse failure")
	require.Equal(t, ProcExited, p.State())
}

func TestPipelineKill(t *testing.T) {
	bin := writeStub(t, "#!/bin/sh\necho started\nexec sleep 30\n")
	dir := t.TempDir()
	in := writeInput(t, dir, "seg0.mp4", "data")

	p, err := Start(bin, []string{in}, dir)
	require.NoError(t, err)

	buf := make([]byte, 8)
	_, err = p.Output().Read(buf)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		p.Kill()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("kill did not terminate the subprocess in time")
	}
	require.Equal(t, ProcKilled, p.State())

	// Idempotent.
	p.Kill()
	require.Equal(t, ProcKilled, p.State())
}

func TestStartNoInputs(t *testing.T) {
	_, err := Start("", nil, t.TempDir())
	var re *Error
	require.ErrorAs(t, err, &re)
}
