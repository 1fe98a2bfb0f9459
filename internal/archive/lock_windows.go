//go:build windows

// LockFileEx/UnlockFileEx over the entire file region, the Windows
// equivalent of the Unix flock taken by the serializer.
package archive

import (
	"os"

	"golang.org/x/sys/windows"
)

func lockFile(f *os.File) error {
	var overlapped windows.Overlapped
	return windows.LockFileEx(
		windows.Handle(f.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK,
		0, 0xFFFFFFFF, 0xFFFFFFFF,
		&overlapped,
	)
}

func unlockFile(f *os.File) error {
	var overlapped windows.Overlapped
	return windows.UnlockFileEx(
		windows.Handle(f.Fd()),
		0, 0xFFFFFFFF, 0xFFFFFFFF,
		&overlapped,
	)
}
