// Package cachelock guards a cache database file against being opened by
// more than one daemon process at a time.
//
// The operation queue core assumes exactly one goroutine, in one process,
// owns the database connection (spec §5: "not shared"). cachelock enforces
// the process-level half of that invariant: cmd/cachectl's serve command
// takes this lock before opening the database and holds it for the life of
// the daemon.
package cachelock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LockInfo is the metadata recorded in the lock file while a daemon holds it.
type LockInfo struct {
	PID       int       `json:"pid"`
	Database  string    `json:"database"`
	StartedAt time.Time `json:"started_at"`
}

// Lock represents a held daemon lock. Release it with Unlock.
type Lock struct {
	file *os.File
	path string
}

// lockFileName is the name of the lock file created alongside the database.
const lockFileName = "cachectl-daemon.lock"

// TryLock attempts to acquire the daemon lock in dir, non-blocking. If
// another process already holds it, running is true and pid (if
// recoverable) names the holder.
func TryLock(dir, dbPath string) (lock *Lock, running bool, pid int, err error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, false, 0, fmt.Errorf("create lock directory: %w", err)
	}
	lockPath := filepath.Join(dir, lockFileName)

	// #nosec G304 - controlled path derived from configured cache directory
	f, err := os.OpenFile(lockPath, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, false, 0, fmt.Errorf("open lock file: %w", err)
	}

	if lockErr := flockExclusive(f); lockErr != nil {
		if lockErr == errAlreadyLocked {
			_, _ = f.Seek(0, 0)
			var info LockInfo
			if decodeErr := json.NewDecoder(f).Decode(&info); decodeErr == nil {
				pid = info.PID
			}
			_ = f.Close()
			return nil, true, pid, nil
		}
		_ = f.Close()
		return nil, false, 0, fmt.Errorf("flock: %w", lockErr)
	}

	info := LockInfo{PID: os.Getpid(), Database: dbPath, StartedAt: time.Now().UTC()}
	if err := f.Truncate(0); err != nil {
		_ = f.Close()
		return nil, false, 0, fmt.Errorf("truncate lock file: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		_ = f.Close()
		return nil, false, 0, fmt.Errorf("seek lock file: %w", err)
	}
	if err := json.NewEncoder(f).Encode(info); err != nil {
		_ = f.Close()
		return nil, false, 0, fmt.Errorf("write lock info: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return nil, false, 0, fmt.Errorf("sync lock file: %w", err)
	}

	return &Lock{file: f, path: lockPath}, false, 0, nil
}

// Unlock releases the daemon lock and removes the lock file.
func (l *Lock) Unlock() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := l.file.Close()
	_ = os.Remove(l.path)
	return err
}

// ReadLockInfo reads and parses the lock file without acquiring the lock.
func ReadLockInfo(dir string) (*LockInfo, error) {
	lockPath := filepath.Join(dir, lockFileName)
	// #nosec G304 - controlled path derived from configured cache directory
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return nil, err
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("parse lock file: %w", err)
	}
	return &info, nil
}
