// Package sqlstore opens the embedded SQLite database the cache persists
// to and implements opqueue.Executor against it: one exclusive
// connection, a fixed schema, and the prepared-statement families the
// worker drives chunk by chunk.
package sqlstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	sqlite3 "github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver" // registers the database/sql driver
	_ "github.com/ncruces/go-sqlite3/embed"  // embeds the SQLite WASM binary
	"github.com/tetratelabs/wazero"

	"cachectl/internal/opqueue"
)

var _ opqueue.Executor = (*Conn)(nil)

// wslWindowsPathPattern matches WSL2 paths onto a mounted Windows
// filesystem (/mnt/c/, /mnt/d/, ...), where WAL mode's shared-memory file
// doesn't work reliably across the 9P boundary.
var wslWindowsPathPattern = regexp.MustCompile(`^/mnt/[a-zA-Z]/`)

// wslNetworkPathPattern matches WSL2 network mounts (Docker Desktop bind
// mounts and similar), which have the same WAL limitation.
var wslNetworkPathPattern = regexp.MustCompile(`^/mnt/wsl/`)

func isWSL2WindowsPath(path string) bool {
	data, err := os.ReadFile("/proc/version")
	if err != nil {
		return false
	}
	version := strings.ToLower(string(data))
	if !strings.Contains(version, "microsoft") && !strings.Contains(version, "wsl") {
		return false
	}
	return wslWindowsPathPattern.MatchString(path) || wslNetworkPathPattern.MatchString(path)
}

// setupWASMCache configures wazero's compilation cache under the user's
// cache directory so the embedded engine doesn't pay JIT compile cost on
// every process start. Falls back to an in-memory cache if the directory
// can't be created.
func setupWASMCache() string {
	cacheDir := ""
	if userCache, err := os.UserCacheDir(); err == nil {
		cacheDir = filepath.Join(userCache, "cachectl", "wasm")
	}

	var cache wazero.CompilationCache
	if cacheDir != "" {
		if c, err := wazero.NewCompilationCacheWithDir(cacheDir); err == nil {
			cache = c
		}
	}
	if cache == nil {
		cache = wazero.NewCompilationCache()
		cacheDir = ""
	}

	sqlite3.RuntimeConfig = wazero.NewRuntimeConfig().WithCompilationCache(cache)
	return cacheDir
}

func init() {
	_ = setupWASMCache()
}

// Conn is the worker's exclusive handle to the cache's database file. It
// implements opqueue.Executor directly: a chunk's BEGIN/COMMIT bracket a
// *sql.Tx held in tx, and every Exec* method binds its prepared statement
// family to that Tx before stepping it.
type Conn struct {
	db     *sql.DB
	dbPath string
	closed atomic.Bool

	tx *sql.Tx

	selectByKey      byListFamily
	invalidateByKey  byListFamily
	selectByType     byListFamily
	invalidateByType byListFamily
	insert           byListFamily

	invalidateAll lazyStmt
	getAllKeys    lazyStmt
	deleteExpired lazyStmt
}

// Open creates or opens the cache database at path, enabling WAL mode for
// file-backed databases (DELETE mode under WSL2-over-Windows-filesystem,
// where WAL's shared-memory file is unreliable), enforces the
// single-connection invariant the worker's exclusive ownership depends on
// (spec.md §5: the connection is never shared), and brings the schema up
// to date.
func Open(path string, busyTimeout time.Duration) (*Conn, error) {
	timeoutMs := int64(busyTimeout / time.Millisecond)

	var connStr string
	isInMemory := path == ":memory:"
	if isInMemory {
		connStr = fmt.Sprintf("file:cachectl-mem?mode=memory&cache=shared&_pragma=busy_timeout(%d)", timeoutMs)
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		connStr = fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", path, timeoutMs)
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One exclusive connection: the worker is the only owner, so there is
	// no pool to size for concurrent readers (spec.md §5).
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if !isInMemory {
		journalMode := "WAL"
		if isWSL2WindowsPath(path) {
			journalMode = "DELETE"
		}
		if _, err := db.Exec("PRAGMA journal_mode=" + journalMode); err != nil {
			return nil, fmt.Errorf("failed to enable %s mode: %w", journalMode, err)
		}
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return nil, err
	}

	conn := &Conn{db: db, dbPath: path}
	conn.initFamilies()
	return conn, nil
}

// Close checkpoints the WAL so every committed write is flushed to the
// main database file, then closes the connection.
func (c *Conn) Close() error {
	c.closed.Store(true)
	_, _ = c.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return c.db.Close()
}

// Path returns the database file path Conn was opened with.
func (c *Conn) Path() string { return c.dbPath }

// SetBusyTimeout updates the SQLITE_BUSY retry timeout on the live
// connection, for config-reload paths that want the new value without
// reopening the database.
func (c *Conn) SetBusyTimeout(d time.Duration) error {
	timeoutMs := int64(d / time.Millisecond)
	_, err := c.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", timeoutMs))
	return err
}

// IsClosed reports whether Close has been called.
func (c *Conn) IsClosed() bool { return c.closed.Load() }
