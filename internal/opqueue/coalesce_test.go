package opqueue

import (
	"context"
	"testing"
)

func mkInsertItem(key string) *item {
	return &item{
		kind:       OpBulkInsert,
		entries:    []Entry{{Key: key, Value: []byte(key)}},
		completion: newCompletion[Unit](),
	}
}

func mkSelectItem(key string) (*item, *Completion[[]Entry]) {
	c := newCompletion[[]Entry]()
	return &item{kind: OpBulkSelectByKey, keys: []string{key}, completion: c}, c
}

func mkInvalidateItem(key string) (*item, *Completion[Unit]) {
	c := newCompletion[Unit]()
	return &item{kind: OpBulkInvalidateByKey, keys: []string{key}, completion: c}, c
}

// S2: three inserts for the same key in one chunk collapse into one
// physical insert, and every one of the three completions resolves.
func TestCoalesce_SameKeyInsertsFoldToOne(t *testing.T) {
	a := mkInsertItem("k1")
	b := mkInsertItem("k1")
	c := mkInsertItem("k1")

	out := coalesce([]*item{a, b, c})
	if len(out) != 1 {
		t.Fatalf("want 1 physical op, got %d", len(out))
	}
	if out[0].kind != OpBulkInsert || len(out[0].entries) != 1 {
		t.Fatalf("want single-entry insert, got %+v", out[0])
	}

	out[0].completion.stage1(Unit{})
	out[0].completion.terminal(nil)

	for i, it := range []*item{a, b, c} {
		comp := it.completion.(*Completion[Unit])
		if _, err := comp.Wait(context.Background()); err != nil {
			t.Fatalf("completion %d: unexpected error %v", i, err)
		}
	}
}

// Distinct keys present in the same chunk are merged into one
// multi-key physical op, and each original completion only sees its own
// key's outcome.
func TestCoalesce_DistinctKeySelectsMergeWithPerKeyFanout(t *testing.T) {
	i1, c1 := mkSelectItem("k1")
	i2, c2 := mkSelectItem("k2")

	out := coalesce([]*item{i1, i2})
	if len(out) != 1 {
		t.Fatalf("want 1 physical op, got %d", len(out))
	}
	if len(out[0].keys) != 2 {
		t.Fatalf("want merged select over 2 keys, got %v", out[0].keys)
	}

	out[0].completion.stage1([]Entry{{Key: "k1", Value: []byte("v1")}})
	out[0].completion.terminal(nil)

	e1, err := c1.Wait(context.Background())
	if err != nil || len(e1) != 1 || e1[0].Key != "k1" {
		t.Fatalf("c1: want [k1], got %v err %v", e1, err)
	}
	e2, err := c2.Wait(context.Background())
	if err != nil || len(e2) != 0 {
		t.Fatalf("c2: want empty result for missing key, got %v err %v", e2, err)
	}
}

// S5: an insert, an invalidate, and a select for the same key in one
// chunk are never folded together (they have different kinds), but each
// remains a singleton run and all three still execute, in order.
func TestCoalesce_MixedKindsSameKeyPreserveOrderNoMerge(t *testing.T) {
	ins := mkInsertItem("k1")
	inv, _ := mkInvalidateItem("k1")
	sel, _ := mkSelectItem("k1")

	out := coalesce([]*item{ins, inv, sel})
	if len(out) != 3 {
		t.Fatalf("want 3 distinct physical ops, got %d", len(out))
	}
	if out[0].kind != OpBulkInsert || out[1].kind != OpBulkInvalidateByKey || out[2].kind != OpBulkSelectByKey {
		t.Fatalf("want insert,invalidate,select order, got %v %v %v", out[0].kind, out[1].kind, out[2].kind)
	}
}

// S8: GetAllKeys disables coalescing for the whole chunk, even when other
// items in the chunk would otherwise be foldable.
func TestCoalesce_GetAllKeysBypassesCoalescer(t *testing.T) {
	a := mkInsertItem("k1")
	b := mkInsertItem("k1")
	gak := &item{kind: OpGetAllKeys, completion: newCompletion[[]string]()}

	out := coalesce([]*item{a, b, gak})
	if len(out) != 3 {
		t.Fatalf("want chunk passed through unchanged (3 items), got %d", len(out))
	}
}

// InvalidateAll likewise disables coalescing for its whole chunk.
func TestCoalesce_InvalidateAllBypassesCoalescer(t *testing.T) {
	a := mkInsertItem("k1")
	b := mkInsertItem("k1")
	ia := &item{kind: OpInvalidateAll, completion: newCompletion[Unit]()}

	out := coalesce([]*item{a, b, ia})
	if len(out) != 3 {
		t.Fatalf("want chunk passed through unchanged (3 items), got %d", len(out))
	}
}

// A single-item chunk is returned unchanged without allocating groups.
func TestCoalesce_SingleItemPassthrough(t *testing.T) {
	a := mkInsertItem("k1")
	out := coalesce([]*item{a})
	if len(out) != 1 || out[0] != a {
		t.Fatalf("want the same single item back, got %v", out)
	}
}

// Non-key-bearing ops (DoNothing) never collide with key-bearing ones and
// are preserved as their own singleton groups even when repeated.
func TestCoalesce_RepeatedSentinelOpsStaySeparate(t *testing.T) {
	a := &item{kind: OpDoNothing, completion: newCompletion[Unit]()}
	b := &item{kind: OpDoNothing, completion: newCompletion[Unit]()}

	out := coalesce([]*item{a, b})
	if len(out) != 2 {
		t.Fatalf("want 2 independent DoNothing ops, got %d", len(out))
	}
}
