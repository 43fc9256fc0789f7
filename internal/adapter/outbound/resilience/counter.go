package resilience

import (
	"errors"
	"sync/atomic"
)

var (
	errQueueFull   = errors.New("request queue is at capacity")
	errQueueClosed = errors.New("request queue is shutting down")
)

// atomicCounter is a tiny wrapper kept separate from sync/atomic's Int64 for
// readability at call sites (inc/get instead of Add(1)/Load()).
type atomicCounter struct {
	v atomic.Int64
}

func (c *atomicCounter) inc()        { c.v.Add(1) }
func (c *atomicCounter) get() int64  { return c.v.Load() }
