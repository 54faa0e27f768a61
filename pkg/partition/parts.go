package partition

import (
	"sync"
	"time"
)

// TimestampParts hands out millisecond timestamps as part numbers. Values
// never repeat within a process, even when two parts are requested within
// the same millisecond, and sort after any part written by an earlier
// invocation.
type TimestampParts struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewTimestampParts creates a timestamp part source.
func NewTimestampParts() *TimestampParts {
	return &TimestampParts{now: time.Now}
}

// Next returns the next part number.
func (p *TimestampParts) Next() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.now().UnixMilli()
	if n <= p.last {
		n = p.last + 1
	}
	p.last = n
	return n
}

// Counter hands out 1, 2, 3, ... for a single run.
type Counter struct {
	next int64
}

// Next returns the next part number.
func (c *Counter) Next() int64 {
	c.next++
	return c.next
}
