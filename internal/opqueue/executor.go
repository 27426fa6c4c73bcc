package opqueue

// Executor is the prepared-operation set (spec §2, §4.2) the worker
// drives. internal/sqlstore implements it against embedded SQLite;
// tests implement it in memory to exercise the queue and coalescer
// without a database.
//
// Begin/Commit/Rollback bracket exactly one chunk. The Exec* methods
// correspond one-to-one with the OpKind values the worker executes
// (every kind except DoNothing). now is the worker's
// clock-sourced tick, threaded through rather than read by the executor
// so that "expired" has one authoritative source per spec invariant I4.
type Executor interface {
	Begin() error
	Commit() error
	Rollback() error

	ExecSelectByKey(keys []string, now int64) ([]Entry, error)
	ExecSelectByType(typeNames []string, now int64) ([]Entry, error)
	ExecInsert(entries []Entry, now int64) error
	ExecInvalidateByKey(keys []string) error
	ExecInvalidateByType(typeNames []string) error
	ExecInvalidateAll() error
	ExecGetAllKeys(now int64) ([]string, error)
	ExecDeleteExpired(now int64) error

	// ExecVacuum steps VACUUM. It must only be called outside any
	// transaction (after Commit/Rollback of any surrounding chunk).
	ExecVacuum() error
}

// Clock supplies the worker's monotonic-enough "now", in the same tick
// units stored in CacheElement (spec §3 I4: one fixed epoch for
// Expiration and CreatedAt comparisons).
type Clock interface {
	NowTicks() int64
}
