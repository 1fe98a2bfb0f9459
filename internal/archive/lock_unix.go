//go:build !windows

// flock(2) on the blob file keeps two concurrent compression runs from
// interleaving appends into the same output.
package archive

import (
	"os"

	"golang.org/x/sys/unix"
)

func lockFile(f *os.File) error {
	// Blocking flock; the serializer holds it for the whole run.
	return unix.Flock(int(f.Fd()), unix.LOCK_EX)
}

func unlockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
