//go:build !windows

package cachelock

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// errAlreadyLocked is returned by flockExclusive when another process
// already holds the lock.
var errAlreadyLocked = errors.New("lock already held")

func flockExclusive(f *os.File) error {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == nil {
		return nil
	}
	if errors.Is(err, unix.EWOULDBLOCK) {
		return errAlreadyLocked
	}
	return err
}
