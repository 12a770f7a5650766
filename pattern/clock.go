package pattern

import (
	"sync"
	"time"
)

// Frame rate of the sampling loop while playing.
const frameFPS = 30

// Clock is the playback clock: a cycle position advancing at a
// configurable cycles-per-second rate while started. A frame loop
// goroutine runs only while started and delivers the sampled cycle
// position to every registered frame callback.
type Clock struct {
	mu        sync.Mutex
	started   bool
	cps       float64
	base      float64 // cycle position at startedAt (or while stopped)
	startedAt time.Time
	stopChan  chan struct{}

	nextID  int
	frames  map[int]func(cycle float64)
	toggles map[int]func(started bool)
}

// NewClock creates a stopped clock at cycle 0.
func NewClock(cps float64) *Clock {
	if cps <= 0 {
		cps = 0.5
	}
	return &Clock{
		cps:     cps,
		frames:  make(map[int]func(float64)),
		toggles: make(map[int]func(bool)),
	}
}

// Now returns the current cycle position. Frozen while stopped.
func (c *Clock) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nowLocked()
}

func (c *Clock) nowLocked() float64 {
	if !c.started {
		return c.base
	}
	return c.base + time.Since(c.startedAt).Seconds()*c.cps
}

// CPS returns the cycles-per-second rate.
func (c *Clock) CPS() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cps
}

// SetCPS changes the tempo without jumping the cycle position.
func (c *Clock) SetCPS(cps float64) {
	if cps <= 0 {
		return
	}
	c.mu.Lock()
	c.base = c.nowLocked()
	c.startedAt = time.Now()
	c.cps = cps
	c.mu.Unlock()
}

// Started reports whether the clock is running.
func (c *Clock) Started() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// Start resumes the clock from its current position. No-op if already
// running.
func (c *Clock) Start() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.startedAt = time.Now()
	c.stopChan = make(chan struct{})
	stop := c.stopChan
	handlers := c.toggleHandlersLocked()
	c.mu.Unlock()

	go c.frameLoop(stop)
	for _, fn := range handlers {
		fn(true)
	}
}

// Stop freezes the clock. Signals and returns without waiting for the
// frame loop to wind down.
func (c *Clock) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.base = c.nowLocked()
	c.started = false
	close(c.stopChan)
	handlers := c.toggleHandlersLocked()
	c.mu.Unlock()

	for _, fn := range handlers {
		fn(false)
	}
}

func (c *Clock) frameLoop(stop chan struct{}) {
	ticker := time.NewTicker(time.Second / frameFPS)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			if !c.started {
				c.mu.Unlock()
				return
			}
			t := c.nowLocked()
			fns := make([]func(float64), 0, len(c.frames))
			for _, fn := range c.frames {
				fns = append(fns, fn)
			}
			c.mu.Unlock()

			for _, fn := range fns {
				fn(t)
			}
		}
	}
}

// OnFrame registers a sampling callback invoked at frame rate while
// the clock runs.
func (c *Clock) OnFrame(fn func(cycle float64)) (remove func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.frames[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.frames, id)
		c.mu.Unlock()
	}
}

// OnToggle registers a callback fired after every start/stop edge.
func (c *Clock) OnToggle(fn func(started bool)) (remove func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.toggles[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.toggles, id)
		c.mu.Unlock()
	}
}

func (c *Clock) toggleHandlersLocked() []func(bool) {
	fns := make([]func(bool), 0, len(c.toggles))
	for _, fn := range c.toggles {
		fns = append(fns, fn)
	}
	return fns
}
