package cache

import "sync/atomic"

// runningFlag is the default RunningFlag collaborator, used when the
// caller hasn't wired a crawler.Metrics (which also satisfies RunningFlag)
// in its place.
type runningFlag struct {
	v atomic.Bool
}

func (r *runningFlag) SetRunning(v bool) { r.v.Store(v) }
func (r *runningFlag) Running() bool     { return r.v.Load() }
