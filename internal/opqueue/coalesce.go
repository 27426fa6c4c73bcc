package opqueue

import "fmt"

// coalesce reduces redundant work within one chunk while preserving the
// observable semantics spec §4.4 requires: per-key FIFO, and a single
// physical operation per key run that fans its result out to every
// original completion.
//
// Early exit: a chunk of size ≤ 1, or one containing GetAllKeys or
// InvalidateAll, is returned unchanged — both ops have order-sensitive
// semantics the coalescer does not attempt to preserve through merging.
func coalesce(items []*item) []*item {
	if len(items) <= 1 {
		return items
	}
	for _, it := range items {
		if it.kind == OpGetAllKeys || it.kind == OpInvalidateAll {
			return items
		}
	}

	// Group by coalescing key, preserving first-appearance order.
	// Sentinel ("no optimisation") requests each get their own singleton
	// group so they are never merged with one another.
	type group struct{ items []*item }
	groups := map[string]*group{}
	var order []string
	nullSeq := 0
	for _, it := range items {
		key, has := it.coalesceKey()
		gk := "k:" + key
		if !has {
			gk = fmt.Sprintf("n:%d", nullSeq)
			nullSeq++
		}
		g, ok := groups[gk]
		if !ok {
			g = &group{}
			groups[gk] = g
			order = append(order, gk)
		}
		g.items = append(g.items, it)
	}

	// Intra-key dedup: fold maximal consecutive runs of identical-kind
	// ops within each real-key group into one op whose completion
	// broadcasts to all the originals in the run. Real-key groups only
	// ever contain BulkInvalidateByKey, BulkInsert, or BulkSelectByKey
	// (the only kinds with a non-sentinel coalescing key), so a plain
	// run-length fold is sufficient — there is no other kind to act as
	// a barrier within such a group.
	for _, gk := range order {
		groups[gk].items = foldRuns(groups[gk].items)
	}

	// Round-robin drain: take the first remaining item from each
	// non-empty group, once per group, per pass. This interleaves
	// distinct keys wave by wave while keeping each key's own remaining
	// ops in their original relative order.
	remaining := make(map[string][]*item, len(groups))
	for _, gk := range order {
		remaining[gk] = groups[gk].items
	}

	var out []*item
	for {
		var wave []*item
		gotAny := false
		for _, gk := range order {
			lst := remaining[gk]
			if len(lst) == 0 {
				continue
			}
			wave = append(wave, lst[0])
			remaining[gk] = lst[1:]
			gotAny = true
		}
		if !gotAny {
			break
		}
		out = append(out, mergeWave(wave)...)
	}
	return out
}

// foldRuns merges maximal consecutive runs of identical-kind items
// within a single coalescing-key group into one item.
func foldRuns(items []*item) []*item {
	var out []*item
	i := 0
	for i < len(items) {
		j := i + 1
		for j < len(items) && items[j].kind == items[i].kind {
			j++
		}
		if j-i > 1 {
			out = append(out, mergeSameKeyRun(items[i:j]))
		} else {
			out = append(out, items[i])
		}
		i = j
	}
	return out
}

// mergeSameKeyRun merges a run of same-key, same-kind items (already
// folded to share a single coalescing key) into one physical op.
func mergeSameKeyRun(run []*item) *item {
	originals := make([]completionHandle, len(run))
	for i, it := range run {
		originals[i] = it.completion
	}
	fan := &broadcastFanout{originals: originals}

	switch run[0].kind {
	case OpBulkInsert:
		// Replace-on-conflict: the last write in the run is the one
		// that survives, so only its entry needs to reach the executor.
		last := run[len(run)-1].entries[0]
		return &item{kind: OpBulkInsert, entries: []Entry{last}, completion: fan}
	case OpBulkInvalidateByKey:
		return &item{kind: OpBulkInvalidateByKey, keys: []string{run[0].keys[0]}, completion: fan}
	case OpBulkSelectByKey:
		return &item{kind: OpBulkSelectByKey, keys: []string{run[0].keys[0]}, completion: fan}
	default:
		// Unreachable: only the three kinds above ever share a non-nil
		// coalescing key.
		return run[0]
	}
}

// mergeWave takes one round-robin wave (at most one item per group) and
// merges the three fan-outable kinds across distinct keys; every other
// kind passes through unchanged. Output order follows each kind's first
// occurrence in the wave.
func mergeWave(wave []*item) []*item {
	var out []*item
	seen := map[OpKind]bool{}

	selectKeys := []string{}
	selectHandles := []completionHandle{}
	insertEntries := []Entry{}
	insertHandles := []completionHandle{}
	invalidateKeys := []string{}
	invalidateHandles := []completionHandle{}

	for _, it := range wave {
		switch it.kind {
		case OpBulkSelectByKey:
			selectKeys = append(selectKeys, it.keys[0])
			selectHandles = append(selectHandles, it.completion)
		case OpBulkInsert:
			insertEntries = append(insertEntries, it.entries[0])
			insertHandles = append(insertHandles, it.completion)
		case OpBulkInvalidateByKey:
			invalidateKeys = append(invalidateKeys, it.keys[0])
			invalidateHandles = append(invalidateHandles, it.completion)
		}
	}

	for _, it := range wave {
		switch it.kind {
		case OpBulkSelectByKey:
			if seen[OpBulkSelectByKey] {
				continue
			}
			seen[OpBulkSelectByKey] = true
			out = append(out, &item{
				kind: OpBulkSelectByKey,
				keys: selectKeys,
				completion: &selectFanout{
					keys:        selectKeys,
					completions: selectHandles,
				},
			})
		case OpBulkInsert:
			if seen[OpBulkInsert] {
				continue
			}
			seen[OpBulkInsert] = true
			out = append(out, &item{
				kind:       OpBulkInsert,
				entries:    insertEntries,
				completion: &broadcastFanout{originals: insertHandles},
			})
		case OpBulkInvalidateByKey:
			if seen[OpBulkInvalidateByKey] {
				continue
			}
			seen[OpBulkInvalidateByKey] = true
			out = append(out, &item{
				kind:       OpBulkInvalidateByKey,
				keys:       invalidateKeys,
				completion: &broadcastFanout{originals: invalidateHandles},
			})
		default:
			out = append(out, it)
		}
	}
	return out
}
