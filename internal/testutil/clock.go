package testutil

import (
	"strconv"
	"sync"
	"time"
)

// Epoch is the instant FixedClock starts at.
var Epoch = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// Clock is a prov.Clock that only moves when told to.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// FixedClock returns a Clock stopped at Epoch.
func FixedClock() *Clock {
	return &Clock{now: Epoch}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// SequentialIDs hands out "id-1", "id-2", ... so activity ids in tests are
// predictable.
type SequentialIDs struct {
	mu   sync.Mutex
	next int
}

// NewStubIDGenerator returns SequentialIDs starting at "id-1".
func NewStubIDGenerator() *SequentialIDs {
	return &SequentialIDs{}
}

func (g *SequentialIDs) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return "id-" + strconv.Itoa(g.next)
}
