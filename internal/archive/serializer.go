package archive

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/s4a/s4a/internal/common"
	"github.com/s4a/s4a/internal/index"
)

// Serializer states. Transitions are strictly forward; done and failed
// are terminal, and only done permits the mux step.
const (
	stateIdle int32 = iota
	stateSchemaReady
	stateWriting
	stateFinalizing
	stateDone
	stateFailed
)

var stateNames = map[int32]string{
	stateIdle:        "Idle",
	stateSchemaReady: "Schema",
	stateWriting:     "Writing",
	stateFinalizing:  "Finalizing",
	stateDone:        "Done",
	stateFailed:      "Failed",
}

// serializer is the sole consumer of the work channel. It exclusively
// owns the blob writer and the in-memory index: every offset recorded
// in the index is assigned here, in channel receipt order.
type serializer struct {
	blobPath string
	dbPath   string
	bufSize  int

	state   atomic.Int32
	entries atomic.Int64
	written atomic.Int64

	// failed is closed on a fatal write error so the dispatch loop can
	// stop handing out new jobs.
	failed chan struct{}
}

func newSerializer(blobPath, dbPath string, bufSize int) *serializer {
	return &serializer{
		blobPath: blobPath,
		dbPath:   dbPath,
		bufSize:  bufSize,
		failed:   make(chan struct{}),
	}
}

// run consumes messages until the channel closes. On a fatal error it
// keeps draining the channel, discarding messages and their scratch
// files, so workers blocked on a full channel can always finish.
func (s *serializer) run(ch <-chan message) error {
	err := s.write(ch)
	if err != nil {
		s.state.Store(stateFailed)
		close(s.failed)
		for msg := range ch {
			if msg.scratchPath != "" {
				os.Remove(msg.scratchPath)
			}
		}
	}
	return err
}

func (s *serializer) write(ch <-chan message) error {
	start := time.Now()

	f, err := os.Create(s.blobPath)
	if err != nil {
		return fmt.Errorf("%w: at opening %s: %v", ErrPipeline, s.blobPath, err)
	}
	defer f.Close()
	if err := lockFile(f); err != nil {
		return fmt.Errorf("%w: at locking %s: %v", ErrPipeline, s.blobPath, err)
	}
	defer unlockFile(f)

	bufSize := s.bufSize
	if bufSize < common.CopyBufferSize {
		bufSize = common.CopyBufferSize
	}
	bw := bufio.NewWriterSize(f, bufSize)

	store, err := index.OpenInMemory()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPipeline, err)
	}
	defer store.Close()
	if err := store.CreateSchema(); err != nil {
		return fmt.Errorf("%w: %v", ErrPipeline, err)
	}
	s.state.Store(stateSchemaReady)

	var offset int64
	copyBuf := make([]byte, common.CopyBufferSize)
	s.state.Store(stateWriting)

	for msg := range ch {
		switch {
		case msg.kind == index.KindFolder:
			s.insert(store, index.Entry{
				Name:  msg.name,
				Kind:  index.KindFolder,
				Codec: msg.codec,
			})

		case msg.scratchPath != "":
			n, ok := s.copyScratch(bw, msg.scratchPath, copyBuf)
			if !ok {
				continue
			}
			s.insert(store, index.Entry{
				Name:   msg.name,
				Kind:   index.KindFile,
				Offset: offset,
				Size:   n,
				Codec:  msg.codec,
			})
			offset += n
			s.written.Add(n)

		default:
			if _, err := bw.Write(msg.raw); err != nil {
				log.Warn().Str("entry", msg.name).Err(err).
					Msg("error writing to output blob, skipping entry")
				continue
			}
			n := int64(len(msg.raw))
			s.insert(store, index.Entry{
				Name:   msg.name,
				Kind:   index.KindFile,
				Offset: offset,
				Size:   n,
				Codec:  msg.codec,
			})
			offset += n
			s.written.Add(n)
		}
		s.entries.Add(1)
	}

	s.state.Store(stateFinalizing)
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("%w: at flushing data to blob: %v", ErrPipeline, err)
	}
	if err := store.Snapshot(s.dbPath); err != nil {
		return fmt.Errorf("%w: %v", ErrPipeline, err)
	}
	s.state.Store(stateDone)

	fmt.Printf("Compression time: %.2fs\n", time.Since(start).Seconds())
	return nil
}

// copyScratch streams a worker's scratch file into the blob and removes
// it, consuming the ownership the worker transferred with the message.
// A mid-copy failure leaves the copied prefix in the blob; the returned
// count reflects exactly the bytes appended, so later offsets stay
// consistent with blob positions.
func (s *serializer) copyScratch(bw *bufio.Writer, path string, buf []byte) (int64, bool) {
	fr, err := os.Open(path)
	if err != nil {
		log.Warn().Str("path", path).Err(err).
			Msg("can't open scratch file, externally modified? skipping it")
		return 0, false
	}
	n, copyErr := io.CopyBuffer(bw, bufio.NewReaderSize(fr, common.CopyBufferSize), buf)
	fr.Close()
	if copyErr != nil {
		log.Warn().Str("path", path).Err(copyErr).Msg("error writing to blob file")
	}
	if err := os.Remove(path); err != nil {
		log.Warn().Str("path", path).Err(err).Msg("error removing scratch file")
	}
	return n, true
}

// insert records an entry. Insert failures are non-fatal: the entry is
// dropped from the index with a diagnostic, and the caller's offset
// still advances past any bytes already in the blob.
func (s *serializer) insert(store *index.Store, e index.Entry) {
	if err := store.Insert(e); err != nil {
		log.Warn().Str("entry", e.Name).Err(err).Msg("error adding entry to index")
	}
}

// startReporting prints a one-line status once per second until the
// returned stop function is called.
func (s *serializer) startReporting() func() {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		start := time.Now()
		for {
			select {
			case <-ticker.C:
				fmt.Printf("\r\033[K[%s] Entries: %d | Written: %.1f MiB | Elapsed: %s",
					stateNames[s.state.Load()], s.entries.Load(),
					float64(s.written.Load())/(1<<20),
					time.Since(start).Round(time.Second))
			case <-stop:
				fmt.Println()
				return
			}
		}
	}()
	return func() { close(stop) }
}
