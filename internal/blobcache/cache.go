// Package blobcache is the public façade spec.md §1 names out of scope
// for its core: object (de)serialization, an optional encryption filter,
// and schema-migration bootstrap, wired onto internal/opqueue's request
// queue instead of reimplementing any of its transactional logic.
package blobcache

import (
	"context"
	"fmt"
	"time"

	"cachectl/internal/opqueue"
	"cachectl/internal/sqlstore"
)

// Entry is the façade's object-level view of one cache row: Value holds
// the already-deserialized Go object rather than its raw encoded bytes.
type Entry struct {
	Key        string
	TypeName   string
	Value      any
	Expiration time.Time
	CreatedAt  time.Time
}

// Cache is the blob cache façade: one embedded database file, one
// opqueue.Queue worker, pluggable serialization and encryption.
type Cache struct {
	conn *sqlstore.Conn
	q    *opqueue.Queue
	opts *options
}

// Open creates or opens the cache database at path and starts its
// worker. Call Close when done.
func Open(path string, opt ...Option) (*Cache, error) {
	o := defaultOptions()
	for _, fn := range opt {
		fn(o)
	}

	conn, err := sqlstore.Open(path, o.busyTimeout)
	if err != nil {
		return nil, fmt.Errorf("blobcache: open: %w", err)
	}

	q := opqueue.NewQueue(conn, opqueue.SystemClock(), o.logger)
	q.Start()

	return &Cache{conn: conn, q: q, opts: o}, nil
}

// SetBusyTimeout updates the SQLite busy timeout on the already-open
// connection, for callers that reload configuration without reopening
// the cache (e.g. cmd/cachectl serve --watch-config).
func (c *Cache) SetBusyTimeout(d time.Duration) error {
	return c.conn.SetBusyTimeout(d)
}

// Close stops the worker and closes the underlying database connection.
func (c *Cache) Close() error {
	if err := c.q.Shutdown(context.Background()); err != nil {
		return fmt.Errorf("blobcache: shutdown: %w", err)
	}
	return c.conn.Close()
}

func (c *Cache) toOpEntry(e Entry) (opqueue.Entry, error) {
	raw, err := c.opts.serializer.Marshal(e.Value)
	if err != nil {
		return opqueue.Entry{}, err
	}
	enc, err := c.opts.cipher.Encrypt(raw)
	if err != nil {
		return opqueue.Entry{}, fmt.Errorf("blobcache: encrypt: %w", err)
	}
	var typeName *string
	if e.TypeName != "" {
		typeName = &e.TypeName
	}
	return opqueue.Entry{
		Key:        e.Key,
		TypeName:   typeName,
		Value:      enc,
		Expiration: e.Expiration.UnixNano(),
	}, nil
}

// fromOpEntry decodes the raw row into the façade's Entry. decodeInto
// must be non-nil: it supplies the pointer the decrypted bytes are
// unmarshaled into, and that pointer is returned as Value.
func (c *Cache) fromOpEntry(oe opqueue.Entry, decodeInto func() any) (Entry, error) {
	dec, err := c.opts.cipher.Decrypt(oe.Value)
	if err != nil {
		return Entry{}, fmt.Errorf("blobcache: decrypt: %w", err)
	}
	e := Entry{
		Key:        oe.Key,
		Expiration: time.Unix(0, oe.Expiration).UTC(),
		CreatedAt:  time.Unix(0, oe.CreatedAt).UTC(),
	}
	if oe.TypeName != nil {
		e.TypeName = *oe.TypeName
	}
	out := decodeInto()
	if err := c.opts.serializer.Unmarshal(dec, out); err != nil {
		return Entry{}, fmt.Errorf("blobcache: unmarshal: %w", err)
	}
	e.Value = out
	return e, nil
}

// Get fetches the entry for key, decoding its Value through zero, which
// must be a pointer to the target type (e.g. &MyStruct{}). ok is false if
// key is absent or expired.
func (c *Cache) Get(ctx context.Context, key string, zero any) (Entry, bool, error) {
	comp, err := c.q.EnqueueSelect([]string{key})
	if err != nil {
		return Entry{}, false, err
	}
	rows, err := comp.Wait(ctx)
	if err != nil {
		return Entry{}, false, err
	}
	if len(rows) == 0 {
		return Entry{}, false, nil
	}
	e, err := c.fromOpEntry(rows[0], func() any { return zero })
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

// GetByType fetches every live entry whose TypeName is typeName, each
// decoded via newZero (called once per row so each gets its own target;
// newZero must return a pointer, e.g. func() any { return &MyStruct{} }).
func (c *Cache) GetByType(ctx context.Context, typeName string, newZero func() any) ([]Entry, error) {
	comp, err := c.q.EnqueueSelectByType([]string{typeName})
	if err != nil {
		return nil, err
	}
	rows, err := comp.Wait(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(rows))
	for _, oe := range rows {
		e, err := c.fromOpEntry(oe, newZero)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Insert serializes and stores entries, replacing any existing row with
// the same Key.
func (c *Cache) Insert(ctx context.Context, entries ...Entry) error {
	opEntries := make([]opqueue.Entry, 0, len(entries))
	for _, e := range entries {
		oe, err := c.toOpEntry(e)
		if err != nil {
			return err
		}
		opEntries = append(opEntries, oe)
	}
	comp, err := c.q.EnqueueInsert(opEntries)
	if err != nil {
		return err
	}
	_, err = comp.Wait(ctx)
	return err
}

// Invalidate removes keys, if present.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	comp, err := c.q.EnqueueInvalidate(keys)
	if err != nil {
		return err
	}
	_, err = comp.Wait(ctx)
	return err
}

// InvalidateByType removes every entry whose TypeName is in typeNames.
func (c *Cache) InvalidateByType(ctx context.Context, typeNames ...string) error {
	comp, err := c.q.EnqueueInvalidateByType(typeNames)
	if err != nil {
		return err
	}
	_, err = comp.Wait(ctx)
	return err
}

// InvalidateAll empties the cache.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	comp, err := c.q.EnqueueInvalidateAll()
	if err != nil {
		return err
	}
	_, err = comp.Wait(ctx)
	return err
}

// Keys lists every live key.
func (c *Cache) Keys(ctx context.Context) ([]string, error) {
	comp, err := c.q.EnqueueGetAllKeys()
	if err != nil {
		return nil, err
	}
	return comp.Wait(ctx)
}

// Flush blocks until every request enqueued before it has committed.
func (c *Cache) Flush(ctx context.Context) error {
	comp, err := c.q.EnqueueFlush()
	if err != nil {
		return err
	}
	_, err = comp.Wait(ctx)
	return err
}

// Vacuum deletes expired rows and compacts the database file.
func (c *Cache) Vacuum(ctx context.Context) error {
	comp, err := c.q.EnqueueVacuum()
	if err != nil {
		return err
	}
	_, err = comp.Wait(ctx)
	return err
}

// Stats returns a snapshot of row counts and last-vacuum time, read
// directly against the database rather than through the worker (see
// sqlstore.Stats).
func (c *Cache) Stats() (sqlstore.Stats, error) {
	return c.conn.Stats(time.Now().UTC().UnixNano())
}
