package opqueue

// item is the queue's internal representation of one request, tagged
// with the operation it names and holding the completion that must be
// resolved once it (or the physical operation it was folded into) has
// run. Every producer-visible Enqueue* call constructs exactly one item
// — the coalescer relies on this one-item-per-request invariant to
// derive a single coalescing key per item (spec §4.1).
type item struct {
	kind      OpKind
	keys      []string
	typeNames []string
	entries   []Entry

	completion completionHandle
}

// coalesceKey returns the item's deduplication key and whether it has
// one at all. Sentinel ("no optimisation") requests report has=false.
func (it *item) coalesceKey() (key string, has bool) {
	switch it.kind {
	case OpBulkSelectByKey, OpBulkInvalidateByKey:
		if len(it.keys) == 1 {
			return it.keys[0], true
		}
		return "", false
	case OpBulkInsert:
		if len(it.entries) == 1 {
			return it.entries[0].Key, true
		}
		return "", false
	default:
		return "", false
	}
}
