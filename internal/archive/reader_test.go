package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/s4a/s4a/internal/codec"
	"github.com/s4a/s4a/internal/index"
)

func TestExtractMatching(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	writeTree(t, src, map[string]string{"a.txt": "hello", "sub/b.txt": "world"})

	out := filepath.Join(tmp, "out.s4a")
	cfg := defaultConfig(src, out)
	cfg.Mux = true
	require.NoError(t, CompressDirectory(cfg))

	r, err := Open(out)
	require.NoError(t, err)
	dst := filepath.Join(tmp, "dst")
	require.NoError(t, r.ExtractMatching("^sub/", dst))

	require.Equal(t, map[string]string{"sub/b.txt": "world"}, readTree(t, dst))
	require.NoFileExists(t, filepath.Join(dst, "a.txt"))
}

func TestExtractMatchingNoMatches(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	writeTree(t, src, map[string]string{"a.txt": "hello"})

	out := filepath.Join(tmp, "out.s4a")
	require.NoError(t, CompressDirectory(defaultConfig(src, out)))

	r, err := OpenUnmuxed(out + ".db")
	require.NoError(t, err)
	dst := filepath.Join(tmp, "dst")
	require.NoError(t, r.ExtractMatching("^never-matches$", dst))
	require.Empty(t, readTree(t, dst))
}

func TestExtractMatchingInvalidPattern(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	writeTree(t, src, map[string]string{"a.txt": "hello"})

	out := filepath.Join(tmp, "out.s4a")
	require.NoError(t, CompressDirectory(defaultConfig(src, out)))

	r, err := OpenUnmuxed(out + ".db")
	require.NoError(t, err)
	dst := filepath.Join(tmp, "dst")
	err = r.ExtractMatching("[", dst)
	require.ErrorIs(t, err, ErrInvalidPattern)
	require.Empty(t, readTree(t, dst))
}

func TestExtractNames(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	writeTree(t, src, map[string]string{"a.txt": "hello", "b.txt": "there"})

	out := filepath.Join(tmp, "out.s4a")
	require.NoError(t, CompressDirectory(defaultConfig(src, out)))

	r, err := OpenUnmuxed(out + ".db")
	require.NoError(t, err)
	dst := filepath.Join(tmp, "dst")
	// Unknown names are skipped with a diagnostic, not an error.
	require.NoError(t, r.ExtractNames([]string{"a.txt", "missing.txt"}, dst))
	require.Equal(t, map[string]string{"a.txt": "hello"}, readTree(t, dst))
}

func TestIdempotentReExtraction(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	files := map[string]string{"a.txt": "hello", "sub/b.txt": "world"}
	writeTree(t, src, files)

	out := filepath.Join(tmp, "out.s4a")
	cfg := defaultConfig(src, out)
	cfg.Mux = true
	require.NoError(t, CompressDirectory(cfg))

	r, err := Open(out)
	require.NoError(t, err)
	dst1 := filepath.Join(tmp, "dst1")
	dst2 := filepath.Join(tmp, "dst2")
	require.NoError(t, r.ExtractAll(dst1))
	require.NoError(t, r.ExtractAll(dst2))
	require.Equal(t, readTree(t, dst1), readTree(t, dst2))
}

func TestInvalidEntryKindSkipped(t *testing.T) {
	tmp := t.TempDir()
	dbPath := filepath.Join(tmp, "out.s4a.db")
	blobPath := filepath.Join(tmp, "out.s4a.blob")

	store, err := index.OpenInMemory()
	require.NoError(t, err)
	require.NoError(t, store.CreateSchema())
	require.NoError(t, store.Insert(index.Entry{Name: "odd", Kind: index.Kind("SOCKET"), Codec: codec.LZ4}))
	require.NoError(t, store.Snapshot(dbPath))
	require.NoError(t, store.Close())
	require.NoError(t, os.WriteFile(blobPath, nil, 0o644))

	r, err := OpenUnmuxed(dbPath)
	require.NoError(t, err)
	dst := filepath.Join(tmp, "dst")
	// The bad entry is reported and skipped; nothing is written.
	require.NoError(t, r.ExtractNames([]string{"odd"}, dst))
	require.NoFileExists(t, filepath.Join(dst, "odd"))
}

func TestOpenRejectsWrongExtension(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "archive.tar")
	require.NoError(t, os.WriteFile(path, []byte("not an archive"), 0o644))

	_, err := Open(path)
	require.ErrorIs(t, err, ErrInvalidHeader)

	_, err = OpenUnmuxed(path)
	require.ErrorIs(t, err, ErrInvalidHeader)
}

func TestOpenRejectsTruncatedHeader(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "short.s4a")
	require.NoError(t, os.WriteFile(path, []byte{0x00, 0x01}, 0o644))
	_, err := Open(path)
	require.ErrorIs(t, err, ErrInvalidHeader)
}

func TestOpenRejectsOversizedHeader(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "bad.s4a")
	// Claims a header far larger than the file itself.
	raw := []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 'x'}
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	_, err := Open(path)
	require.ErrorIs(t, err, ErrInvalidHeader)
}
