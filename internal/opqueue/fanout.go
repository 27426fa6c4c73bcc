package opqueue

// broadcastFanout resolves every one of a set of original completions
// identically. Used when the coalescer folds several requests that want
// the exact same outcome into one physical operation: repeated inserts
// or invalidates for the same key, or repeated selects for the same key.
type broadcastFanout struct {
	originals []completionHandle
}

func (f *broadcastFanout) stage1(v any) {
	for _, o := range f.originals {
		o.stage1(v)
	}
}

func (f *broadcastFanout) terminal(err error) {
	for _, o := range f.originals {
		o.terminal(err)
	}
}

func (f *broadcastFanout) failImmediate(err error) {
	for _, o := range f.originals {
		o.failImmediate(err)
	}
}

// selectFanout resolves a merged bulk select by addressing each
// constituent completion to its own key's row (or an empty result if the
// key was absent). Used when the coalescer merges BulkSelectByKey
// requests for DIFFERENT keys into one physical select.
type selectFanout struct {
	keys        []string
	completions []completionHandle
}

func (f *selectFanout) stage1(v any) {
	entries := v.([]Entry)
	byKey := make(map[string]Entry, len(entries))
	for _, e := range entries {
		byKey[e.Key] = e
	}
	for i, c := range f.completions {
		if e, ok := byKey[f.keys[i]]; ok {
			c.stage1([]Entry{e})
		} else {
			c.stage1([]Entry{})
		}
	}
}

func (f *selectFanout) terminal(err error) {
	for _, c := range f.completions {
		c.terminal(err)
	}
}

func (f *selectFanout) failImmediate(err error) {
	for _, c := range f.completions {
		c.failImmediate(err)
	}
}
