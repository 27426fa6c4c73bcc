//go:build windows

package cachelock

import (
	"errors"
	"os"

	"golang.org/x/sys/windows"
)

// errAlreadyLocked is returned by flockExclusive when another process
// already holds the lock.
var errAlreadyLocked = errors.New("lock already held")

func flockExclusive(f *os.File) error {
	ol := new(windows.Overlapped)
	err := windows.LockFileEx(
		windows.Handle(f.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		0, 1, 0, ol,
	)
	if err == nil {
		return nil
	}
	if errors.Is(err, windows.ERROR_LOCK_VIOLATION) {
		return errAlreadyLocked
	}
	return err
}
