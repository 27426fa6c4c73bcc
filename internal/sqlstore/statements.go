package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"cachectl/internal/opqueue"
)

// byListFamily is a pre-preparable family of statements, one per list
// length in [1, opqueue.ChunkSize], avoiding a string-concatenated
// `IN (?,...)` clause built fresh on every call. Grounded on the
// teacher's parameterized-query-sizing idiom: each length gets its own
// statement, built lazily the first time that length is actually needed
// so a process whose chunks never reach ChunkSize never prepares the
// unused tail of the family.
type byListFamily struct {
	mu    sync.Mutex
	stmts [opqueue.ChunkSize]*sql.Stmt
	build func(n int) string
}

func (f *byListFamily) get(db *sql.DB, n int) (*sql.Stmt, error) {
	if n < 1 || n > opqueue.ChunkSize {
		return nil, fmt.Errorf("sqlstore: list length %d out of prepared range [1,%d]", n, opqueue.ChunkSize)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stmts[n-1] == nil {
		stmt, err := db.Prepare(f.build(n))
		if err != nil {
			return nil, fmt.Errorf("sqlstore: prepare statement for n=%d: %w", n, err)
		}
		f.stmts[n-1] = stmt
	}
	return f.stmts[n-1], nil
}

// lazyStmt is a single statement prepared on first use, for operations
// with no variable-length IN clause.
type lazyStmt struct {
	mu   sync.Mutex
	stmt *sql.Stmt
	sql  string
}

func (l *lazyStmt) get(db *sql.DB) (*sql.Stmt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stmt == nil {
		stmt, err := db.Prepare(l.sql)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: prepare statement: %w", err)
		}
		l.stmt = stmt
	}
	return l.stmt, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func selectByKeySQL(n int) string {
	return fmt.Sprintf(`SELECT Key, TypeName, Value, Expiration, CreatedAt FROM CacheElement WHERE Key IN (%s) AND Expiration >= ?`, placeholders(n))
}

func selectByTypeSQL(n int) string {
	return fmt.Sprintf(`SELECT Key, TypeName, Value, Expiration, CreatedAt FROM CacheElement WHERE TypeName IN (%s) AND Expiration >= ?`, placeholders(n))
}

func invalidateByKeySQL(n int) string {
	return fmt.Sprintf(`DELETE FROM CacheElement WHERE Key IN (%s)`, placeholders(n))
}

func invalidateByTypeSQL(n int) string {
	return fmt.Sprintf(`DELETE FROM CacheElement WHERE TypeName IN (%s)`, placeholders(n))
}

func insertSQL(n int) string {
	row := "(?,?,?,?,?)"
	rows := make([]string, n)
	for i := range rows {
		rows[i] = row
	}
	return `INSERT INTO CacheElement (Key, TypeName, Value, Expiration, CreatedAt) VALUES ` +
		strings.Join(rows, ",") +
		` ON CONFLICT(Key) DO UPDATE SET TypeName=excluded.TypeName, Value=excluded.Value, Expiration=excluded.Expiration, CreatedAt=excluded.CreatedAt`
}

// initFamilies wires up a Conn's statement-family builders. Called once from
// Open.
func (c *Conn) initFamilies() {
	c.selectByKey.build = selectByKeySQL
	c.selectByType.build = selectByTypeSQL
	c.invalidateByKey.build = invalidateByKeySQL
	c.invalidateByType.build = invalidateByTypeSQL
	c.insert.build = insertSQL

	c.invalidateAll.sql = `DELETE FROM CacheElement`
	c.getAllKeys.sql = `SELECT Key FROM CacheElement WHERE Expiration >= ?`
	c.deleteExpired.sql = `DELETE FROM CacheElement WHERE Expiration < ?`
}

// Begin starts the transaction that brackets one chunk.
func (c *Conn) Begin() error {
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	c.tx = tx
	return nil
}

// Commit commits the chunk's transaction.
func (c *Conn) Commit() error {
	err := c.tx.Commit()
	c.tx = nil
	return err
}

// Rollback rolls back the chunk's transaction.
func (c *Conn) Rollback() error {
	err := c.tx.Rollback()
	c.tx = nil
	return err
}

func scanEntry(rows *sql.Rows) (opqueue.Entry, error) {
	var e opqueue.Entry
	var typeName sql.NullString
	if err := rows.Scan(&e.Key, &typeName, &e.Value, &e.Expiration, &e.CreatedAt); err != nil {
		return e, err
	}
	if typeName.Valid {
		e.TypeName = &typeName.String
	}
	return e, nil
}

// ExecSelectByKey returns every live (unexpired) row among keys.
func (c *Conn) ExecSelectByKey(keys []string, now int64) ([]opqueue.Entry, error) {
	stmt, err := c.selectByKey.get(c.db, len(keys))
	if err != nil {
		return nil, err
	}
	args := make([]any, 0, len(keys)+1)
	for _, k := range keys {
		args = append(args, k)
	}
	args = append(args, now)

	rows, err := c.tx.Stmt(stmt).Query(args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []opqueue.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ExecSelectByType returns every live row whose TypeName is in typeNames.
func (c *Conn) ExecSelectByType(typeNames []string, now int64) ([]opqueue.Entry, error) {
	stmt, err := c.selectByType.get(c.db, len(typeNames))
	if err != nil {
		return nil, err
	}
	args := make([]any, 0, len(typeNames)+1)
	for _, t := range typeNames {
		args = append(args, t)
	}
	args = append(args, now)

	rows, err := c.tx.Stmt(stmt).Query(args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []opqueue.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ExecInsert replace-on-conflict inserts entries, stamping CreatedAt from
// now (spec.md §3: CreatedAt is set at insert time, not caller-supplied).
func (c *Conn) ExecInsert(entries []opqueue.Entry, now int64) error {
	stmt, err := c.insert.get(c.db, len(entries))
	if err != nil {
		return err
	}
	args := make([]any, 0, len(entries)*5)
	for _, e := range entries {
		var typeName any
		if e.TypeName != nil {
			typeName = *e.TypeName
		}
		args = append(args, e.Key, typeName, e.Value, e.Expiration, now)
	}
	_, err = c.tx.Stmt(stmt).Exec(args...)
	return err
}

// ExecInvalidateByKey deletes keys, if present.
func (c *Conn) ExecInvalidateByKey(keys []string) error {
	stmt, err := c.invalidateByKey.get(c.db, len(keys))
	if err != nil {
		return err
	}
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	_, err = c.tx.Stmt(stmt).Exec(args...)
	return err
}

// ExecInvalidateByType deletes every row whose TypeName is in typeNames.
func (c *Conn) ExecInvalidateByType(typeNames []string) error {
	stmt, err := c.invalidateByType.get(c.db, len(typeNames))
	if err != nil {
		return err
	}
	args := make([]any, len(typeNames))
	for i, t := range typeNames {
		args[i] = t
	}
	_, err = c.tx.Stmt(stmt).Exec(args...)
	return err
}

// ExecInvalidateAll empties the table.
func (c *Conn) ExecInvalidateAll() error {
	stmt, err := c.invalidateAll.get(c.db)
	if err != nil {
		return err
	}
	_, err = c.tx.Stmt(stmt).Exec()
	return err
}

// ExecGetAllKeys lists every live key.
func (c *Conn) ExecGetAllKeys(now int64) ([]string, error) {
	stmt, err := c.getAllKeys.get(c.db)
	if err != nil {
		return nil, err
	}
	rows, err := c.tx.Stmt(stmt).Query(now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// ExecDeleteExpired removes every row whose Expiration has passed.
func (c *Conn) ExecDeleteExpired(now int64) error {
	stmt, err := c.deleteExpired.get(c.db)
	if err != nil {
		return err
	}
	_, err = c.tx.Stmt(stmt).Exec(now)
	return err
}

// ExecVacuum steps VACUUM. Must only be called outside any transaction.
func (c *Conn) ExecVacuum() error {
	if _, err := c.db.Exec("VACUUM"); err != nil {
		return err
	}
	_, err := c.db.Exec(
		`INSERT INTO CacheVacuumLog (Id, LastVacuumAt) VALUES (1, ?)
		 ON CONFLICT(Id) DO UPDATE SET LastVacuumAt=excluded.LastVacuumAt`,
		time.Now().UTC().UnixNano(),
	)
	return err
}
