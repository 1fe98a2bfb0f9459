// Package common holds the small pieces shared across the archive
// pipeline: buffer sizing constants and scratch-file naming.
package common

import "strings"

// CopyBufferSize is the block size used for all streaming file copies.
// 128KB buffers: https://eklitzke.org/efficient-file-copying-on-linux
const CopyBufferSize = 128 * 1024

// MinChannelCapacity is the lower bound on the serializer feed channel.
// The channel stays bounded so a slow serializer applies backpressure to
// the compression workers instead of queueing buffers without limit.
const MinChannelCapacity = 256

var scratchReplacer = strings.NewReplacer("\\", "#", "/", "#")

// ScratchName flattens an entry name into a single path component for
// use inside the scratch directory. Path separators collapse to '#' so
// nested entry names cannot escape the directory. The .xz suffix is
// historical and does not track the codec in use.
func ScratchName(entryName string) string {
	return scratchReplacer.Replace(entryName) + ".xz"
}
