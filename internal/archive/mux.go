package archive

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/s4a/s4a/internal/codec"
	"github.com/s4a/s4a/internal/common"
)

// Archive layout: an 8-byte big-endian header size, the LZMA-compressed
// index database, then the blob — compressed entry bytes concatenated
// in index order with no separators or padding.
const headerPrefixSize = 8

// Mux compresses the index database at dbPath and concatenates it with
// the sibling blob into the final archive, whose name is dbPath without
// the .db suffix. The intermediates (.db, .db.xz, .blob) are deleted
// only after the archive is fully written.
func Mux(dbPath string) error {
	if !strings.HasSuffix(dbPath, ".db") {
		return fmt.Errorf("%w: expecting a .db index, got %s", ErrPipeline, dbPath)
	}
	outPath := strings.TrimSuffix(dbPath, ".db")
	blobPath := outPath + ".blob"
	xzPath := dbPath + ".xz"
	start := time.Now()
	fmt.Printf("muxing %s and %s\n", dbPath, blobPath)

	if _, err := codec.CompressFile(dbPath, xzPath, codec.LZMA); err != nil {
		return fmt.Errorf("%w: at compressing db file: %v", ErrPipeline, err)
	}
	info, err := os.Stat(xzPath)
	if err != nil {
		return fmt.Errorf("%w: at getting db file size: %v", ErrPipeline, err)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("%w: at opening %s: %v", ErrPipeline, outPath, err)
	}
	var sizePrefix [headerPrefixSize]byte
	binary.BigEndian.PutUint64(sizePrefix[:], uint64(info.Size()))
	if _, err := out.Write(sizePrefix[:]); err != nil {
		out.Close()
		return fmt.Errorf("%w: at writing db size to archive: %v", ErrPipeline, err)
	}
	for _, part := range []string{xzPath, blobPath} {
		if err := appendFile(out, part); err != nil {
			out.Close()
			return fmt.Errorf("%w: at writing %s to archive: %v", ErrPipeline, part, err)
		}
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("%w: at flushing archive: %v", ErrPipeline, err)
	}

	for _, part := range []string{xzPath, dbPath, blobPath} {
		if err := os.Remove(part); err != nil {
			log.Warn().Str("path", part).Err(err).Msg("error deleting intermediate file")
		}
	}
	fmt.Printf("Muxing time: %.2fs\n", time.Since(start).Seconds())
	return nil
}

// Demux splits an archive back into its unmuxed pair: the plain index
// database at <archive>.db and the payload at <archive>.blob.
func Demux(archivePath string) error {
	dbPath := archivePath + ".db"
	blobPath := archivePath + ".blob"

	blobOffset, err := extractIndex(archivePath, dbPath)
	if err != nil {
		return err
	}

	fr, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("at opening %s: %w", archivePath, err)
	}
	defer fr.Close()
	if _, err := fr.Seek(blobOffset, io.SeekStart); err != nil {
		return fmt.Errorf("at seeking to blob: %w", err)
	}

	fw, err := os.Create(blobPath)
	if err != nil {
		return fmt.Errorf("at opening %s: %w", blobPath, err)
	}
	buf := make([]byte, common.CopyBufferSize)
	if _, err := io.CopyBuffer(fw, fr, buf); err != nil {
		fw.Close()
		return fmt.Errorf("at copying blob: %w", err)
	}
	return fw.Close()
}

// extractIndex reads the archive's fixed prefix, decompresses the index
// segment into a plain database file at dst, and returns the offset of
// the blob region within the archive.
func extractIndex(archivePath, dst string) (int64, error) {
	if !strings.HasSuffix(archivePath, ".s4a") {
		return 0, fmt.Errorf("%w: expecting a .s4a archive, got %s", ErrInvalidHeader, archivePath)
	}
	f, err := os.Open(archivePath)
	if err != nil {
		return 0, fmt.Errorf("at opening archive %s: %w", archivePath, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("at opening archive %s: %w", archivePath, err)
	}

	var sizePrefix [headerPrefixSize]byte
	if _, err := io.ReadFull(f, sizePrefix[:]); err != nil {
		return 0, fmt.Errorf("%w: at reading header size: %v", ErrInvalidHeader, err)
	}
	headerSize := binary.BigEndian.Uint64(sizePrefix[:])
	if headerSize > uint64(info.Size())-headerPrefixSize {
		return 0, fmt.Errorf("%w: header size %d exceeds archive size %d",
			ErrInvalidHeader, headerSize, info.Size())
	}

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(f, headerBytes); err != nil {
		return 0, fmt.Errorf("%w: at reading header bytes: %v", ErrInvalidHeader, err)
	}
	plain, err := codec.DecompressMemory(headerBytes, codec.LZMA)
	if err != nil {
		return 0, fmt.Errorf("%w: at extracting header bytes: %v", ErrInvalidHeader, err)
	}
	if err := os.WriteFile(dst, plain, 0o644); err != nil {
		return 0, fmt.Errorf("at writing header to %s: %w", dst, err)
	}
	return headerPrefixSize + int64(headerSize), nil
}

func appendFile(dst io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	buf := make([]byte, common.CopyBufferSize)
	_, err = io.CopyBuffer(dst, f, buf)
	return err
}
