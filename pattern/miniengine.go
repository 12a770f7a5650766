package pattern

import (
	"sync"

	"github.com/rjulian/strudel/debug"
)

// MiniEngine plays mini-notation patterns against its own Clock. It
// satisfies Engine and serves as the reference implementation for
// hosts without an external pattern engine.
type MiniEngine struct {
	clock *Clock

	mu      sync.Mutex
	current *stack

	nextID int
	before map[int]func()
	after  map[int]func(*EvalResult)
}

func NewMiniEngine(cps float64) *MiniEngine {
	return &MiniEngine{
		clock:  NewClock(cps),
		before: make(map[int]func()),
		after:  make(map[int]func(*EvalResult)),
	}
}

func (e *MiniEngine) Clock() *Clock { return e.clock }

// Evaluate parses code, installs it as the playing pattern and starts
// the clock if it is stopped. BeforeEval hooks fire before the parse,
// AfterEval hooks after a successful install; neither fires on error.
func (e *MiniEngine) Evaluate(code string) (*EvalResult, error) {
	for _, fn := range e.beforeHooks() {
		fn()
	}

	result, cps, err := e.install(code)
	if err != nil {
		return nil, err
	}
	if cps > 0 {
		e.clock.SetCPS(cps)
	}

	for _, fn := range e.afterHooks() {
		fn(result)
	}

	if !e.clock.Started() {
		e.clock.Start()
	}
	debug.Log("engine", "evaluated %d bytes, %d locations", len(code), len(result.Locations))
	return result, nil
}

// SetCode swaps the playing pattern without touching the clock or
// firing hooks.
func (e *MiniEngine) SetCode(code string) error {
	_, cps, err := e.install(code)
	if cps > 0 {
		e.clock.SetCPS(cps)
	}
	return err
}

// Preview parses code detached: nothing is installed, the clock is
// untouched and no hooks fire.
func (e *MiniEngine) Preview(code string) (*EvalResult, error) {
	pat, locs, widgets, _, err := parseMini(code)
	if err != nil {
		return nil, err
	}
	return &EvalResult{Pattern: pat, Locations: locs, Widgets: widgets}, nil
}

func (e *MiniEngine) install(code string) (*EvalResult, float64, error) {
	pat, locs, widgets, cps, err := parseMini(code)
	if err != nil {
		return nil, 0, err
	}
	e.mu.Lock()
	e.current = pat
	e.mu.Unlock()
	return &EvalResult{Pattern: pat, Locations: locs, Widgets: widgets}, cps, nil
}

// Query exposes the playing pattern to the frame loop. Empty before
// the first evaluation.
func (e *MiniEngine) Query(from, to float64) []Hap {
	e.mu.Lock()
	pat := e.current
	e.mu.Unlock()
	if pat == nil {
		return nil
	}
	return pat.Query(from, to)
}

func (e *MiniEngine) OnToggle(fn func(bool)) (remove func()) {
	return e.clock.OnToggle(fn)
}

func (e *MiniEngine) BeforeEval(fn func()) (remove func()) {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.before[id] = fn
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		delete(e.before, id)
		e.mu.Unlock()
	}
}

func (e *MiniEngine) AfterEval(fn func(*EvalResult)) (remove func()) {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.after[id] = fn
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		delete(e.after, id)
		e.mu.Unlock()
	}
}

func (e *MiniEngine) beforeHooks() []func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	fns := make([]func(), 0, len(e.before))
	for _, fn := range e.before {
		fns = append(fns, fn)
	}
	return fns
}

func (e *MiniEngine) afterHooks() []func(*EvalResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fns := make([]func(*EvalResult), 0, len(e.after))
	for _, fn := range e.after {
		fns = append(fns, fn)
	}
	return fns
}
