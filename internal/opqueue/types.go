// Package opqueue implements the operation queue at the heart of the
// cache: a single worker goroutine that drains a producer-fed request
// queue in batches, coalesces redundant requests, and executes each
// batch as one transaction against a pluggable Executor.
//
// The package has no database dependency of its own — internal/sqlstore
// supplies the concrete Executor backed by embedded SQLite — so the
// queue, the coalescer, and their completion-signalling rules can be
// unit tested against a fake Executor.
package opqueue

import "fmt"

// OpKind tags a request with the operation it names. The set is closed;
// Queue's worker dispatch is an exhaustive switch over these values.
type OpKind int

const (
	OpBulkSelectByKey OpKind = iota
	OpBulkSelectByType
	OpBulkInsert
	OpBulkInvalidateByKey
	OpBulkInvalidateByType
	OpInvalidateAll
	OpGetAllKeys
	OpVacuum
	OpDeleteExpired
	OpDoNothing
)

func (k OpKind) String() string {
	switch k {
	case OpBulkSelectByKey:
		return "BulkSelectByKey"
	case OpBulkSelectByType:
		return "BulkSelectByType"
	case OpBulkInsert:
		return "BulkInsert"
	case OpBulkInvalidateByKey:
		return "BulkInvalidateByKey"
	case OpBulkInvalidateByType:
		return "BulkInvalidateByType"
	case OpInvalidateAll:
		return "InvalidateAll"
	case OpGetAllKeys:
		return "GetAllKeys"
	case OpVacuum:
		return "Vacuum"
	case OpDeleteExpired:
		return "DeleteExpired"
	case OpDoNothing:
		return "DoNothing"
	default:
		return fmt.Sprintf("OpKind(%d)", int(k))
	}
}

// Entry is the in-memory representation of one CacheElement row.
//
// TypeName is nullable in the schema; a nil pointer here means SQL NULL,
// as opposed to an empty-but-present string.
type Entry struct {
	Key        string
	TypeName   *string
	Value      []byte
	Expiration int64 // tick: Unix nanoseconds, UTC
	CreatedAt  int64 // tick: Unix nanoseconds, UTC; stamped by the worker at insert time
}

// Unit is the result type of operations with no payload.
type Unit = struct{}

// ChunkSize bounds the number of requests the worker executes inside a
// single BEGIN/COMMIT cycle. Fixed at 64 per the prepared bulk-by-list
// statement families in internal/sqlstore, which hold one
// parameterized statement per list length in [1, ChunkSize].
const ChunkSize = 64
