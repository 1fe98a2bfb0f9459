package archive

import (
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/s4a/s4a/internal/codec"
	"github.com/s4a/s4a/internal/common"
	"github.com/s4a/s4a/internal/index"
)

// Config holds the parameters of one compression run.
type Config struct {
	SourceDir       string      // Directory tree to archive
	OutputPath      string      // Archive path; .db and .blob siblings are derived from it
	Workers         int         // Parallel compression workers
	Codec           codec.Codec // Codec for every entry of this run
	Mux             bool        // Bind index and blob into the final archive
	MaxInMemorySize int64       // Largest file compressed fully in memory
	WriteBufferSize int         // Blob writer buffer, raised to 128 KiB minimum
	Verbose         bool        // Periodic serializer progress line
}

// message is one unit of completed work handed to the serializer. For
// file entries exactly one of raw or scratchPath is set; ownership of
// the scratch file transfers to the serializer with the message.
type message struct {
	name        string
	kind        index.Kind
	codec       codec.Codec
	raw         []byte
	scratchPath string
}

// walkEntry is one filesystem entry found by traversal, named relative
// to the archive root with forward slashes.
type walkEntry struct {
	name string
	path string
	mode fs.FileMode
}

// CompressDirectory archives every entry under cfg.SourceDir. Workers
// compress files in parallel and feed a bounded channel consumed by a
// single serializer, which appends compressed bytes to the blob and
// records each entry's offset, size and codec in the index. With
// cfg.Mux the run ends by binding index and blob into the final
// archive at cfg.OutputPath; otherwise the .db and .blob pair is the
// deliverable.
func CompressDirectory(cfg Config) error {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	listStart := time.Now()
	entries := listEntries(cfg.SourceDir)
	fmt.Printf("%d entries to be archived (listed in %.2fs)\n",
		len(entries), time.Since(listStart).Seconds())

	scratchDir, err := os.MkdirTemp("", "s4a-scratch-")
	if err != nil {
		return fmt.Errorf("%w: at creating scratch dir: %v", ErrPipeline, err)
	}
	defer func() {
		if err := os.RemoveAll(scratchDir); err != nil {
			log.Warn().Str("path", scratchDir).Err(err).Msg("error removing scratch dir")
		}
	}()

	capacity := cfg.Workers
	if capacity < common.MinChannelCapacity {
		capacity = common.MinChannelCapacity
	}
	ch := make(chan message, capacity)

	ser := newSerializer(cfg.OutputPath+".blob", cfg.OutputPath+".db", cfg.WriteBufferSize)
	serDone := make(chan struct{})
	var serErr error
	go func() {
		defer close(serDone)
		serErr = ser.run(ch)
	}()
	if cfg.Verbose {
		defer ser.startReporting()()
	}

	var pool errgroup.Group
	pool.SetLimit(cfg.Workers)

dispatch:
	for _, ent := range entries {
		// Liveness: once the serializer has failed there is no point
		// compressing the backlog; it only drains the channel now.
		select {
		case <-ser.failed:
			log.Error().Msg("serializer stopped unexpectedly, stopping dispatch")
			break dispatch
		default:
		}

		switch {
		case ent.mode.IsDir():
			ch <- message{name: ent.name, kind: index.KindFolder, codec: cfg.Codec}
		case ent.mode.IsRegular():
			scratch := filepath.Join(scratchDir, common.ScratchName(ent.name))
			ent := ent
			pool.Go(func() error {
				compressEntry(ent, scratch, cfg, ch)
				return nil
			})
		}
		// Symlinks, sockets and devices are ignored.
	}

	// The channel is closed only after every worker has sent its
	// message; the serializer observes the terminator last.
	pool.Wait()
	close(ch)
	<-serDone

	if serErr != nil {
		return serErr
	}
	if cfg.Mux {
		return Mux(cfg.OutputPath + ".db")
	}
	return nil
}

// listEntries walks the source tree up front. Traversal errors are
// logged and the offending entry omitted; the root itself, whose
// relative name is empty, is skipped.
func listEntries(root string) []walkEntry {
	var entries []walkEntry
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warn().Str("path", path).Err(err).Msg("error reading entry, skipping it")
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return nil
		}
		entries = append(entries, walkEntry{
			name: filepath.ToSlash(rel),
			path: path,
			mode: d.Type(),
		})
		return nil
	})
	return entries
}

// compressEntry runs on a pool worker. Small files compress fully into
// a heap buffer; larger ones stream into a scratch file whose path is
// handed to the serializer. A failed worker sends nothing, so the
// serializer never observes the entry.
func compressEntry(ent walkEntry, scratch string, cfg Config, ch chan<- message) {
	size := int64(math.MaxInt64)
	if info, err := os.Stat(ent.path); err == nil {
		size = info.Size()
	}

	if size > cfg.MaxInMemorySize {
		if _, err := codec.CompressFile(ent.path, scratch, cfg.Codec); err != nil {
			log.Warn().Str("entry", ent.name).Err(err).Msg("error compressing, skipping entry")
			return
		}
		ch <- message{name: ent.name, kind: index.KindFile, codec: cfg.Codec, scratchPath: scratch}
		return
	}

	data, err := codec.CompressInMemory(ent.path, cfg.Codec)
	if err != nil {
		log.Warn().Str("entry", ent.name).Err(err).Msg("error compressing, skipping entry")
		return
	}
	ch <- message{name: ent.name, kind: index.KindFile, codec: cfg.Codec, raw: data}
}
