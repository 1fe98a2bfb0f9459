// Package archive implements the s4a container: the parallel writer
// pipeline that compresses a directory tree into an indexed blob, the
// muxer that binds index and blob into a single archive file, and the
// random-access reader that extracts entries from it.
package archive

import "errors"

// Sentinel errors for pipeline-fatal and format failure kinds.
// Per-entry failures are never surfaced through these; they are logged
// and the offending entry is skipped.
var (
	// ErrPipeline is returned for unrecoverable pipeline conditions:
	// blob creation, schema creation, index snapshot, or the mux step.
	ErrPipeline = errors.New("pipeline failed")

	// ErrInvalidHeader is returned when an archive's fixed prefix does
	// not describe the file, or the path is not an archive at all.
	ErrInvalidHeader = errors.New("invalid archive header")

	// ErrInvalidEntryKind is returned for index rows whose kind is
	// neither FILE nor FOLDER.
	ErrInvalidEntryKind = errors.New("invalid entry kind")

	// ErrInvalidPattern is returned when an extraction pattern fails to
	// compile. Nothing is extracted in that case.
	ErrInvalidPattern = errors.New("invalid regex pattern")
)
