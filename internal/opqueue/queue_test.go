package opqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeExecutor is an in-memory Executor used to exercise Queue and the
// coalescer end-to-end without a database. beginFailures/commitFailures let tests
// inject exactly N transient failures before the operation starts
// succeeding, to exercise the queue's retry and commit-failure paths.
type fakeExecutor struct {
	mu   sync.Mutex
	rows map[string]Entry

	beginFailures  int32
	commitFailures int32

	inTx       bool
	txSnapshot map[string]Entry

	vacuumCalls int32
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{rows: map[string]Entry{}}
}

func (f *fakeExecutor) Begin() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if atomic.LoadInt32(&f.beginFailures) > 0 {
		atomic.AddInt32(&f.beginFailures, -1)
		return errors.New("fake: begin failed")
	}
	f.inTx = true
	f.txSnapshot = make(map[string]Entry, len(f.rows))
	for k, v := range f.rows {
		f.txSnapshot[k] = v
	}
	return nil
}

func (f *fakeExecutor) Commit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if atomic.LoadInt32(&f.commitFailures) > 0 {
		atomic.AddInt32(&f.commitFailures, -1)
		f.rows = f.txSnapshot
		f.inTx = false
		return errors.New("fake: commit failed")
	}
	f.inTx = false
	return nil
}

func (f *fakeExecutor) Rollback() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = f.txSnapshot
	f.inTx = false
	return nil
}

func (f *fakeExecutor) ExecSelectByKey(keys []string, now int64) ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Entry
	for _, k := range keys {
		if e, ok := f.rows[k]; ok && e.Expiration >= now {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeExecutor) ExecSelectByType(typeNames []string, now int64) ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := map[string]bool{}
	for _, t := range typeNames {
		want[t] = true
	}
	var out []Entry
	for _, e := range f.rows {
		if e.TypeName != nil && want[*e.TypeName] && e.Expiration >= now {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeExecutor) ExecInsert(entries []Entry, now int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range entries {
		e.CreatedAt = now
		f.rows[e.Key] = e
	}
	return nil
}

func (f *fakeExecutor) ExecInvalidateByKey(keys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.rows, k)
	}
	return nil
}

func (f *fakeExecutor) ExecInvalidateByType(typeNames []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := map[string]bool{}
	for _, t := range typeNames {
		want[t] = true
	}
	for k, e := range f.rows {
		if e.TypeName != nil && want[*e.TypeName] {
			delete(f.rows, k)
		}
	}
	return nil
}

func (f *fakeExecutor) ExecInvalidateAll() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = map[string]Entry{}
	return nil
}

func (f *fakeExecutor) ExecGetAllKeys(now int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for k, e := range f.rows {
		if e.Expiration >= now {
			out = append(out, k)
		}
	}
	return out, nil
}

func (f *fakeExecutor) ExecDeleteExpired(now int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, e := range f.rows {
		if e.Expiration < now {
			delete(f.rows, k)
		}
	}
	return nil
}

func (f *fakeExecutor) ExecVacuum() error {
	atomic.AddInt32(&f.vacuumCalls, 1)
	return nil
}

func (f *fakeExecutor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

// fakeClock lets tests pin "now" instead of depending on wall time.
type fakeClock struct{ t int64 }

func (c *fakeClock) NowTicks() int64 { return c.t }

const future = int64(1 << 62)

func newTestQueue(exec Executor) *Queue {
	q := NewQueue(exec, &fakeClock{t: 1}, nil)
	q.Start()
	return q
}

// S1: a single insert followed by a select for the same key round-trips.
func TestQueue_InsertThenSelect(t *testing.T) {
	exec := newFakeExecutor()
	q := newTestQueue(exec)
	defer q.Shutdown(context.Background())

	ins, err := q.EnqueueInsert([]Entry{{Key: "k1", Value: []byte("v1"), Expiration: future}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ins.Wait(context.Background()); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	sel, err := q.EnqueueSelect([]string{"k1"})
	if err != nil {
		t.Fatal(err)
	}
	entries, err := sel.Wait(context.Background())
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Key != "k1" || string(entries[0].Value) != "v1" {
		t.Fatalf("unexpected select result: %+v", entries)
	}
}

// S3: invalidating an absent key is a no-op that still completes
// successfully.
func TestQueue_InvalidateMissingKeyIsNoop(t *testing.T) {
	exec := newFakeExecutor()
	q := newTestQueue(exec)
	defer q.Shutdown(context.Background())

	c, err := q.EnqueueInvalidate([]string{"nope"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Wait(context.Background()); err != nil {
		t.Fatalf("want no-op success, got %v", err)
	}
}

// S4: 100 concurrently-enqueued inserts all complete, taken by the
// worker in chunks of at most ChunkSize=64, and every key is present
// afterward.
func TestQueue_ManyConcurrentInsertsAllComplete(t *testing.T) {
	exec := newFakeExecutor()
	q := newTestQueue(exec)
	defer q.Shutdown(context.Background())

	const n = 100
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a')) + itoa(i)
			c, err := q.EnqueueInsert([]Entry{{Key: key, Value: []byte("v"), Expiration: future}})
			if err != nil {
				errs[i] = err
				return
			}
			_, errs[i] = c.Wait(context.Background())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("insert %d failed: %v", i, err)
		}
	}
	if got := exec.count(); got != n {
		t.Fatalf("want %d rows, got %d", n, got)
	}
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// A row whose Expiration exactly equals the worker's current tick is
// still live (spec.md §3 I2: absent only when Expiration < now).
func TestQueue_SelectIncludesRowExpiringExactlyNow(t *testing.T) {
	exec := newFakeExecutor()
	clock := &fakeClock{t: 100}
	q := NewQueue(exec, clock, nil)
	q.Start()
	defer q.Shutdown(context.Background())

	ins, err := q.EnqueueInsert([]Entry{{Key: "k1", Value: []byte("v1"), Expiration: 100}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ins.Wait(context.Background()); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	sel, err := q.EnqueueSelect([]string{"k1"})
	if err != nil {
		t.Fatal(err)
	}
	entries, err := sel.Wait(context.Background())
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("want row with Expiration == now still live, got %+v", entries)
	}
}

// S6: BEGIN fails once, then the retried chunk succeeds; the producer
// observes success, just delayed.
func TestQueue_BeginFailsOnceThenRetrySucceeds(t *testing.T) {
	exec := newFakeExecutor()
	atomic.StoreInt32(&exec.beginFailures, 1)
	q := newTestQueue(exec)
	defer q.Shutdown(context.Background())

	c, err := q.EnqueueInsert([]Entry{{Key: "k1", Value: []byte("v1"), Expiration: future}})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := c.Wait(ctx); err != nil {
		t.Fatalf("want eventual success after begin retry, got %v", err)
	}
	if exec.count() != 1 {
		t.Fatalf("want 1 row after retry, got %d", exec.count())
	}
}

// S7: COMMIT fails; every item in the chunk fails, and the database is
// left unchanged (rolled back).
func TestQueue_CommitFailureFailsAllAndLeavesDBUnchanged(t *testing.T) {
	exec := newFakeExecutor()
	atomic.StoreInt32(&exec.commitFailures, 1)
	// Enqueue both before starting the worker so they share one chunk.
	q := NewQueue(exec, &fakeClock{t: 1}, nil)
	defer q.Shutdown(context.Background())

	a, err := q.EnqueueInsert([]Entry{{Key: "k1", Value: []byte("v1"), Expiration: future}})
	if err != nil {
		t.Fatal(err)
	}
	b, err := q.EnqueueInsert([]Entry{{Key: "k2", Value: []byte("v2"), Expiration: future}})
	if err != nil {
		t.Fatal(err)
	}
	q.Start()

	if _, err := a.Wait(context.Background()); !errors.Is(err, ErrCommitFailed) {
		t.Fatalf("want ErrCommitFailed, got %v", err)
	}
	if _, err := b.Wait(context.Background()); !errors.Is(err, ErrCommitFailed) {
		t.Fatalf("want ErrCommitFailed, got %v", err)
	}
	if exec.count() != 0 {
		t.Fatalf("want rollback to leave db empty, got %d rows", exec.count())
	}
}

// EnqueueFlush's completion only fires after everything enqueued ahead of
// it has committed.
func TestQueue_FlushOrdersAfterPriorWork(t *testing.T) {
	exec := newFakeExecutor()
	q := newTestQueue(exec)
	defer q.Shutdown(context.Background())

	ins, err := q.EnqueueInsert([]Entry{{Key: "k1", Value: []byte("v1"), Expiration: future}})
	if err != nil {
		t.Fatal(err)
	}
	flush, err := q.EnqueueFlush()
	if err != nil {
		t.Fatal(err)
	}

	if _, err := flush.Wait(context.Background()); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if _, err := ins.Wait(context.Background()); err != nil {
		t.Fatalf("insert should already be done: %v", err)
	}
	if exec.count() != 1 {
		t.Fatalf("want insert committed before flush resolved, got %d rows", exec.count())
	}
}

// EnqueueVacuum drains pending work, deletes expired rows, and steps
// VACUUM exactly once, outside of any lingering transaction.
func TestQueue_VacuumDrainsAndDeletesExpired(t *testing.T) {
	exec := newFakeExecutor()
	q := newTestQueue(exec)
	defer q.Shutdown(context.Background())

	expired, err := q.EnqueueInsert([]Entry{{Key: "stale", Value: []byte("v"), Expiration: 0}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := expired.Wait(context.Background()); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	vac, err := q.EnqueueVacuum()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := vac.Wait(context.Background()); err != nil {
		t.Fatalf("vacuum failed: %v", err)
	}
	if exec.count() != 0 {
		t.Fatalf("want expired row deleted by vacuum, got %d rows", exec.count())
	}
	if atomic.LoadInt32(&exec.vacuumCalls) != 1 {
		t.Fatalf("want exactly 1 ExecVacuum call, got %d", exec.vacuumCalls)
	}
}

// After Shutdown, new enqueues are rejected.
func TestQueue_EnqueueAfterShutdownFails(t *testing.T) {
	exec := newFakeExecutor()
	q := newTestQueue(exec)
	if err := q.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if _, err := q.EnqueueInsert([]Entry{{Key: "k1", Value: []byte("v")}}); !errors.Is(err, ErrDisposed) {
		t.Fatalf("want ErrDisposed, got %v", err)
	}
}
