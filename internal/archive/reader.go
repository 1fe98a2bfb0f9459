package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/s4a/s4a/internal/codec"
	"github.com/s4a/s4a/internal/index"
)

// Reader provides random access to the entries of an archive. Every
// extraction opens its own handle on the payload file, so entries can
// be extracted in parallel without a shared cursor.
type Reader struct {
	entries map[string]index.Entry
	// payloadPath is the muxed archive, or the bare .blob for an
	// unmuxed pair; blobOffset locates the blob region within it.
	payloadPath string
	blobOffset  int64
}

// Open opens a muxed archive: it parses the fixed prefix, decompresses
// the index segment into a temporary database file, and loads the
// entry map. Duplicate names in the index collapse to the last row.
func Open(archivePath string) (*Reader, error) {
	tmpDir, err := os.MkdirTemp("", "s4a-header-")
	if err != nil {
		return nil, fmt.Errorf("at creating temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	dbPath := filepath.Join(tmpDir, "header.db")
	blobOffset, err := extractIndex(archivePath, dbPath)
	if err != nil {
		return nil, err
	}
	entries, err := loadEntries(dbPath)
	if err != nil {
		return nil, err
	}
	return &Reader{entries: entries, payloadPath: archivePath, blobOffset: blobOffset}, nil
}

// OpenUnmuxed opens the index database of an unmuxed pair directly and
// uses the sibling .blob file as the payload.
func OpenUnmuxed(dbPath string) (*Reader, error) {
	if !strings.HasSuffix(dbPath, ".db") {
		return nil, fmt.Errorf("%w: expecting a .db index, got %s", ErrInvalidHeader, dbPath)
	}
	entries, err := loadEntries(dbPath)
	if err != nil {
		return nil, err
	}
	blobPath := strings.TrimSuffix(dbPath, ".db") + ".blob"
	return &Reader{entries: entries, payloadPath: blobPath, blobOffset: 0}, nil
}

func loadEntries(dbPath string) (map[string]index.Entry, error) {
	store, err := index.OpenOnDisk(dbPath)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	rows, err := store.SelectAll()
	if err != nil {
		return nil, err
	}
	entries := make(map[string]index.Entry, len(rows))
	for _, e := range rows {
		entries[e.Name] = e
	}
	return entries, nil
}

// Entries returns every entry of the archive, in no particular order.
func (r *Reader) Entries() []index.Entry {
	out := make([]index.Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}

// ExtractNames extracts the named entries sequentially into outputDir.
// Names absent from the archive are logged and skipped, as are entries
// that fail to extract.
func (r *Reader) ExtractNames(names []string, outputDir string) error {
	for _, name := range names {
		e, ok := r.entries[name]
		if !ok {
			log.Warn().Str("entry", name).Msg("can't find entry in archive, skipping")
			continue
		}
		if err := r.extractEntry(e, outputDir); err != nil {
			log.Warn().Str("entry", name).Err(err).Msg("error while extracting, skipping")
		}
	}
	return nil
}

// ExtractAll extracts every entry into outputDir in parallel. Per-entry
// failures are logged and skipped; the operation itself succeeds.
func (r *Reader) ExtractAll(outputDir string) error {
	return r.extractParallel(outputDir, func(index.Entry) bool { return true })
}

// ExtractMatching extracts, in parallel, every entry whose name matches
// the pattern. An invalid pattern extracts nothing.
func (r *Reader) ExtractMatching(pattern, outputDir string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		log.Error().Str("pattern", pattern).Err(err).Msg("invalid regex")
		return fmt.Errorf("%w: %q: %v", ErrInvalidPattern, pattern, err)
	}
	return r.extractParallel(outputDir, func(e index.Entry) bool {
		return re.MatchString(e.Name)
	})
}

func (r *Reader) extractParallel(outputDir string, match func(index.Entry) bool) error {
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, e := range r.entries {
		if !match(e) {
			continue
		}
		e := e
		g.Go(func() error {
			if err := r.extractEntry(e, outputDir); err != nil {
				log.Warn().Str("entry", e.Name).Err(err).Msg("error while extracting, skipping")
			}
			return nil
		})
	}
	return g.Wait()
}

// extractEntry restores one entry under outputDir. File entries read
// their compressed byte range through an independent handle and stream
// it through the codec recorded for the entry.
func (r *Reader) extractEntry(e index.Entry, outputDir string) error {
	target := filepath.Join(outputDir, filepath.FromSlash(e.Name))
	switch e.Kind {
	case index.KindFolder:
		if err := os.MkdirAll(target, 0o755); err != nil {
			return fmt.Errorf("at create dir %s: %w", target, err)
		}
		return nil

	case index.KindFile:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("at create dir for %s: %w", target, err)
		}
		f, err := os.Open(r.payloadPath)
		if err != nil {
			return fmt.Errorf("at opening blob: %w", err)
		}
		defer f.Close()

		out, err := os.Create(target)
		if err != nil {
			return fmt.Errorf("at opening %s: %w", target, err)
		}
		section := io.NewSectionReader(f, r.blobOffset+e.Offset, e.Size)
		if _, err := codec.Decompress(out, section, e.Codec); err != nil {
			out.Close()
			return fmt.Errorf("at decompressing %s: %w", e.Name, err)
		}
		return out.Close()

	default:
		return fmt.Errorf("%w: %q for %s", ErrInvalidEntryKind, string(e.Kind), e.Name)
	}
}
