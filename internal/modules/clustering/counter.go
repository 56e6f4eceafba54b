package clustering

import "sync"

// IDCounter hands out cluster ids that increase monotonically across a run and
// are never reused. Blocks are reserved under one lock.
type IDCounter struct {
	mu   sync.Mutex
	next int
}

func NewIDCounter(start int) *IDCounter {
	if start < 0 {
		start = 0
	}
	return &IDCounter{next: start}
}

// Reserve returns the first id of a block of n consecutive ids.
func (c *IDCounter) Reserve(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	first := c.next
	if n > 0 {
		c.next += n
	}
	return first
}

// Next returns a single id.
func (c *IDCounter) Next() int {
	return c.Reserve(1)
}

// Peek returns the id the next reservation would start at.
func (c *IDCounter) Peek() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}
