package pattern

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestClockStartStop(t *testing.T) {
	c := NewClock(1.0)
	if c.Started() {
		t.Fatal("new clock is started")
	}
	if c.Now() != 0 {
		t.Fatalf("new clock at %g, want 0", c.Now())
	}

	c.Start()
	if !c.Started() {
		t.Fatal("Start did not start the clock")
	}
	time.Sleep(50 * time.Millisecond)
	c.Stop()

	frozen := c.Now()
	if frozen <= 0 {
		t.Errorf("clock at %g after running, want > 0", frozen)
	}
	time.Sleep(20 * time.Millisecond)
	if c.Now() != frozen {
		t.Errorf("stopped clock moved from %g to %g", frozen, c.Now())
	}
}

func TestClockToggleHandlers(t *testing.T) {
	c := NewClock(1.0)

	var edges []bool
	remove := c.OnToggle(func(started bool) { edges = append(edges, started) })

	c.Start()
	c.Start() // no-op, no duplicate edge
	c.Stop()
	c.Stop() // no-op

	if len(edges) != 2 || edges[0] != true || edges[1] != false {
		t.Errorf("edges = %v, want [true false]", edges)
	}

	remove()
	c.Start()
	defer c.Stop()
	if len(edges) != 2 {
		t.Errorf("removed handler still fired: %v", edges)
	}
}

func TestClockFramesOnlyWhileStarted(t *testing.T) {
	c := NewClock(1.0)

	var frames atomic.Int64
	c.OnFrame(func(float64) { frames.Add(1) })

	// Stopped clock delivers nothing.
	time.Sleep(80 * time.Millisecond)
	if n := frames.Load(); n != 0 {
		t.Fatalf("%d frames before start, want 0", n)
	}

	c.Start()
	deadline := time.After(2 * time.Second)
	for frames.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("no frame delivered within 2s of Start")
		case <-time.After(5 * time.Millisecond):
		}
	}
	c.Stop()

	settled := frames.Load()
	time.Sleep(100 * time.Millisecond)
	if frames.Load() > settled+1 {
		t.Errorf("frames kept arriving after Stop: %d -> %d", settled, frames.Load())
	}
}

func TestClockSetCPSKeepsPosition(t *testing.T) {
	c := NewClock(1.0)
	c.Start()
	defer c.Stop()
	time.Sleep(30 * time.Millisecond)

	before := c.Now()
	c.SetCPS(4.0)
	after := c.Now()

	if after < before {
		t.Errorf("SetCPS jumped the clock backwards: %g -> %g", before, after)
	}
	if after-before > 0.1 {
		t.Errorf("SetCPS jumped the clock forwards: %g -> %g", before, after)
	}
}
