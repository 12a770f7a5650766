// Package draw keeps highlights and visual callbacks in step with
// playback: every clock frame it selects the haps sounding at the
// sampled time, lights up their source ranges, and hands the frame to
// the registered painters.
package draw

import (
	"sync"

	"github.com/rjulian/strudel/debug"
	"github.com/rjulian/strudel/pattern"
	"github.com/rjulian/strudel/surface"
)

// Painter is a user-supplied visual callback invoked once per sampled
// frame.
type Painter func(Frame)

// Frame is what a painter sees: every hap inside the draw window, the
// sampled time, the currently-sounding subset, and the painter list
// itself so painters can consult their siblings.
type Frame struct {
	Haps     []pattern.Hap
	Time     float64
	Active   []pattern.Hap
	Painters []Painter
}

// Window is the draw-time extent around the sampled time, in cycles.
// A zero-width window still drives highlighting but skips painters.
type Window struct {
	Behind float64
	Ahead  float64
}

func (w Window) zero() bool { return w.Behind == 0 && w.Ahead == 0 }

// preview samples strictly before zero so an event starting exactly at
// cycle 0 doesn't show up as already sounding.
const previewTime = -0.001

// Synchronizer drives one session's highlight and painter loop. It is
// bound to the engine's clock: the sampling cadence follows playback,
// not wall-clock polling.
type Synchronizer struct {
	clock   *pattern.Clock
	adapter *surface.Adapter

	mu          sync.Mutex
	pat         pattern.Pattern
	window      Window
	painters    []Painter
	removeFrame func()
}

func New(clock *pattern.Clock, adapter *surface.Adapter) *Synchronizer {
	return &Synchronizer{clock: clock, adapter: adapter}
}

// SetResult installs a fresh evaluation's pattern, replacing the
// previous one wholesale. Source ranges ride on the haps themselves,
// so the old pattern's offsets vanish with it; nothing is merged.
func (s *Synchronizer) SetResult(res *pattern.EvalResult) {
	s.mu.Lock()
	s.pat = res.Pattern
	s.mu.Unlock()
}

// SetWindow changes the draw-time extent.
func (s *Synchronizer) SetWindow(w Window) {
	s.mu.Lock()
	s.window = w
	s.mu.Unlock()
}

// Window returns the current draw-time extent.
func (s *Synchronizer) Window() Window {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window
}

// AddPainter registers a visual callback.
func (s *Synchronizer) AddPainter(p Painter) {
	s.mu.Lock()
	s.painters = append(s.painters, p)
	s.mu.Unlock()
}

// ClearPainters empties the painter list. Called at the start of every
// evaluation so repeated evaluations don't accumulate callbacks.
func (s *Synchronizer) ClearPainters() {
	s.mu.Lock()
	s.painters = nil
	s.mu.Unlock()
}

// PainterCount reports how many painters are registered.
func (s *Synchronizer) PainterCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.painters)
}

// Start hooks the synchronizer into the clock's frame loop. Idempotent.
func (s *Synchronizer) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removeFrame != nil {
		return
	}
	s.removeFrame = s.clock.OnFrame(s.frame)
}

// Stop unhooks from the clock and clears any active highlight.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	remove := s.removeFrame
	s.removeFrame = nil
	s.mu.Unlock()

	if remove != nil {
		remove()
	}
	s.adapter.ClearHighlights()
}

// Running reports whether the synchronizer is hooked into the clock.
func (s *Synchronizer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeFrame != nil
}

// frame runs once per clock frame. It shares the program's event flow,
// so it must stay cheap: one pattern query, one highlight swap, then
// the painters.
func (s *Synchronizer) frame(t float64) {
	s.mu.Lock()
	pat := s.pat
	w := s.window
	painters := append([]Painter(nil), s.painters...)
	s.mu.Unlock()

	if pat == nil {
		return
	}

	var haps []pattern.Hap
	if w.zero() {
		haps = pat.Query(t, t)
	} else {
		haps = pat.Query(t-w.Behind, t+w.Ahead)
	}

	active := activeAt(haps, t)
	s.adapter.Highlight(rangesOf(active))

	if w.zero() {
		return // highlighting only; painters need a real window
	}
	f := Frame{Haps: haps, Time: t, Active: active, Painters: painters}
	for _, p := range painters {
		s.paint(p, f)
	}
}

// Prerender draws one best-effort frame before playback starts: a
// detached evaluation sampled strictly before cycle zero. Failures are
// logged, never surfaced; a broken preview must not block evaluation.
func (s *Synchronizer) Prerender(engine pattern.Engine, code string) {
	s.mu.Lock()
	w := s.window
	painters := append([]Painter(nil), s.painters...)
	s.mu.Unlock()

	if len(painters) == 0 {
		return
	}

	res, err := engine.Preview(code)
	if err != nil {
		debug.Log("draw", "prerender skipped: %v", err)
		return
	}

	// Query forward from cycle zero only: nothing has played yet, so
	// nothing may appear active at the pre-zero sample time.
	ahead := w.Ahead
	if ahead <= 0 {
		ahead = 1
	}
	haps := res.Pattern.Query(0, ahead)
	f := Frame{
		Haps:     haps,
		Time:     previewTime,
		Active:   activeAt(haps, previewTime),
		Painters: painters,
	}
	for _, p := range painters {
		s.paint(p, f)
	}
}

// paint isolates painter panics: a broken visual callback costs one
// frame, not the session.
func (s *Synchronizer) paint(p Painter, f Frame) {
	defer func() {
		if r := recover(); r != nil {
			debug.Log("draw", "painter panic: %v", r)
		}
	}()
	p(f)
}

func activeAt(haps []pattern.Hap, t float64) []pattern.Hap {
	var active []pattern.Hap
	for _, h := range haps {
		if h.ActiveAt(t) {
			active = append(active, h)
		}
	}
	return active
}

func rangesOf(haps []pattern.Hap) []pattern.SourceRange {
	var ranges []pattern.SourceRange
	for _, h := range haps {
		if h.Location != nil {
			ranges = append(ranges, *h.Location)
		}
	}
	return ranges
}
