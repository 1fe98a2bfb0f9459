// Package codec provides a uniform streaming interface over the two
// compression formats an archive entry can carry: LZMA (xz container
// streams) and LZ4 (frame format). The serializer records the codec tag
// per entry, so readers dispatch on the tag stored in the index rather
// than on any archive-wide setting.
package codec

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"

	"github.com/s4a/s4a/internal/common"
)

// Codec identifies the compression applied to a byte range. The textual
// value is stored verbatim in the archive index and is case-sensitive.
type Codec string

const (
	LZMA Codec = "LZMA"
	LZ4  Codec = "LZ4"
)

// Sentinel errors for the codec failure kinds.
var (
	// ErrInit is returned when a compressor or decompressor cannot be
	// constructed over a stream.
	ErrInit = errors.New("codec init failed")

	// ErrEncode is returned when feeding data through a compressor fails.
	ErrEncode = errors.New("codec encode failed")

	// ErrDecode is returned when a compressed stream cannot be decoded.
	ErrDecode = errors.New("codec decode failed")

	// ErrFinish is returned when a compressor fails to flush its trailer.
	ErrFinish = errors.New("codec finish failed")
)

// Parse maps a textual tag to a Codec. Unknown tags fall back to LZ4.
// Archives written by this tool only ever carry the two known tags, so
// the fallback fires only on hand-edited indexes.
func Parse(tag string) Codec {
	if tag == string(LZMA) {
		return LZMA
	}
	return LZ4
}

// xzConf configures LZMA writers with a 64 MiB dictionary, the same
// dictionary size as the preset-9 streams the format was defined with.
// Decoding does not depend on this value.
var xzConf = xz.WriterConfig{DictCap: 64 << 20}

func newCompressor(w io.Writer, c Codec) (io.WriteCloser, error) {
	switch c {
	case LZMA:
		zw, err := xzConf.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("%w: lzma: %v", ErrInit, err)
		}
		return zw, nil
	default:
		return lz4.NewWriter(w), nil
	}
}

func newDecompressor(r io.Reader, c Codec) (io.Reader, error) {
	switch c {
	case LZMA:
		zr, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("%w: lzma: %v", ErrInit, err)
		}
		return zr, nil
	default:
		return lz4.NewReader(r), nil
	}
}

// Compress streams src through the codec into dst and returns the
// number of uncompressed bytes consumed. The codec writer is closed,
// and therefore fully flushed into dst, before success is returned.
func Compress(dst io.Writer, src io.Reader, c Codec) (int64, error) {
	zw, err := newCompressor(dst, c)
	if err != nil {
		return 0, err
	}
	buf := make([]byte, common.CopyBufferSize)
	n, err := io.CopyBuffer(zw, src, buf)
	if err != nil {
		zw.Close()
		return n, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	if err := zw.Close(); err != nil {
		return n, fmt.Errorf("%w: %v", ErrFinish, err)
	}
	return n, nil
}

// Decompress streams the compressed src through the codec into dst and
// returns the number of decoded bytes written.
func Decompress(dst io.Writer, src io.Reader, c Codec) (int64, error) {
	zr, err := newDecompressor(src, c)
	if err != nil {
		return 0, err
	}
	buf := make([]byte, common.CopyBufferSize)
	n, err := io.CopyBuffer(dst, zr, buf)
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return n, nil
}

// CompressFile compresses the file at src into a new file at dst and
// returns the number of uncompressed bytes consumed. This is the
// scratch-file path used for entries too large to compress in memory.
func CompressFile(src, dst string, c Codec) (int64, error) {
	fr, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("at opening %s: %w", src, err)
	}
	defer fr.Close()

	fw, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("at opening %s: %w", dst, err)
	}

	bw := bufio.NewWriterSize(fw, common.CopyBufferSize)
	n, err := Compress(bw, fr, c)
	if err == nil {
		err = bw.Flush()
	}
	if err != nil {
		fw.Close()
		return n, fmt.Errorf("at compressing %s: %w", src, err)
	}
	if err := fw.Close(); err != nil {
		return n, fmt.Errorf("at compressing %s: %w", src, err)
	}
	return n, nil
}

// CompressInMemory compresses the file at path fully into a heap
// buffer. Used for entries at or below the pipeline's in-memory size
// threshold.
func CompressInMemory(path string, c Codec) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("at opening %s: %w", path, err)
	}
	var out bytes.Buffer
	if _, err := Compress(&out, bytes.NewReader(data), c); err != nil {
		return nil, fmt.Errorf("at compressing %s: %w", path, err)
	}
	return out.Bytes(), nil
}

// DecompressMemory decodes an in-memory compressed buffer, such as the
// archive's index segment, and returns the plain bytes.
func DecompressMemory(data []byte, c Codec) ([]byte, error) {
	zr, err := newDecompressor(bytes.NewReader(data), c)
	if err != nil {
		return nil, err
	}
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return out, nil
}
