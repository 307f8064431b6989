package engine

import (
	"sync"
	"time"
)

// Ticker abstracts a repeating tick source.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock abstracts time so tests advance simulated time deterministically
// instead of sleeping.
type Clock interface {
	NewTicker(d time.Duration) Ticker
	After(d time.Duration) <-chan time.Time
}

// NewClock returns the wall clock.
func NewClock() Clock { return realClock{} }

type realClock struct{}

func (realClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

func (realClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

type realTicker struct {
	t *time.Ticker
}

func (rt *realTicker) C() <-chan time.Time { return rt.t.C }
func (rt *realTicker) Stop()               { rt.t.Stop() }

// ManualClock is a virtual clock driven explicitly by tests. Tick delivers
// one tick to every live ticker; Fire releases every pending After waiter.
type ManualClock struct {
	mu      sync.Mutex
	tickers []*manualTicker
	waiters []chan time.Time
}

// NewManualClock creates a virtual clock with no live tickers.
func NewManualClock() *ManualClock {
	return &ManualClock{}
}

func (c *ManualClock) NewTicker(time.Duration) Ticker {
	t := &manualTicker{
		ch:   make(chan time.Time),
		stop: make(chan struct{}),
	}
	c.mu.Lock()
	c.tickers = append(c.tickers, t)
	c.mu.Unlock()
	return t
}

func (c *ManualClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.mu.Lock()
	c.waiters = append(c.waiters, ch)
	c.mu.Unlock()
	return ch
}

// Tick delivers one tick to every ticker that has not been stopped. The
// send is unbuffered so Tick returns only once the consumer has accepted
// the tick, which gives tests a natural synchronization point.
func (c *ManualClock) Tick() {
	c.mu.Lock()
	tickers := make([]*manualTicker, len(c.tickers))
	copy(tickers, c.tickers)
	c.mu.Unlock()

	now := time.Now()
	for _, t := range tickers {
		select {
		case t.ch <- now:
		case <-t.stop:
		}
	}
}

// PendingAfters reports how many After waiters have registered and not
// yet been fired. Tests use it to know a delay is actually being waited
// on before firing it.
func (c *ManualClock) PendingAfters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// Fire releases every After waiter registered so far.
func (c *ManualClock) Fire() {
	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.mu.Unlock()

	now := time.Now()
	for _, ch := range waiters {
		ch <- now
	}
}

type manualTicker struct {
	ch   chan time.Time
	stop chan struct{}
	once sync.Once
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }

func (t *manualTicker) Stop() {
	t.once.Do(func() { close(t.stop) })
}
