package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMuxRequiresDbSuffix(t *testing.T) {
	err := Mux(filepath.Join(t.TempDir(), "out.blob"))
	require.ErrorIs(t, err, ErrPipeline)
}

func TestMuxDemuxRoundTrip(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	files := map[string]string{"a.txt": "hello", "sub/b.txt": "world"}
	writeTree(t, src, files)

	// Produce the unmuxed pair, then mux it as a separate step.
	out := filepath.Join(tmp, "out.s4a")
	require.NoError(t, CompressDirectory(defaultConfig(src, out)))
	require.FileExists(t, out+".db")
	require.FileExists(t, out+".blob")

	require.NoError(t, Mux(out+".db"))
	require.FileExists(t, out)
	require.NoFileExists(t, out+".db")
	require.NoFileExists(t, out+".db.xz")
	require.NoFileExists(t, out+".blob")

	// Demux restores an unmuxed pair that reads identically.
	require.NoError(t, Demux(out))
	require.FileExists(t, out+".db")
	require.FileExists(t, out+".blob")

	r, err := OpenUnmuxed(out + ".db")
	require.NoError(t, err)
	dst := filepath.Join(tmp, "dst")
	require.NoError(t, r.ExtractAll(dst))
	require.Equal(t, files, readTree(t, dst))
}

func TestDemuxBlobMatchesOriginal(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	writeTree(t, src, map[string]string{"a.txt": "hello"})

	out := filepath.Join(tmp, "out.s4a")
	require.NoError(t, CompressDirectory(defaultConfig(src, out)))
	original, err := os.ReadFile(out + ".blob")
	require.NoError(t, err)

	require.NoError(t, Mux(out+".db"))
	require.NoError(t, Demux(out))

	restored, err := os.ReadFile(out + ".blob")
	require.NoError(t, err)
	require.Equal(t, original, restored)
}
