package opqueue

import "time"

type systemClock struct{}

func (systemClock) NowTicks() int64 { return time.Now().UTC().UnixNano() }

// SystemClock returns a Clock backed by the real wall clock, in the same
// UTC-nanosecond tick units the schema stores (spec §3 I4).
func SystemClock() Clock { return systemClock{} }
