// Package repl binds a text surface, a pattern engine and a draw loop
// into one live-coding session. Sessions on the same bus mutually
// exclude playback: whoever evaluates last broadcasts a start message
// and every other session stops itself.
package repl

import (
	"sync"

	"github.com/google/uuid"

	"github.com/rjulian/strudel/coord"
	"github.com/rjulian/strudel/debug"
	"github.com/rjulian/strudel/draw"
	"github.com/rjulian/strudel/pattern"
	"github.com/rjulian/strudel/settings"
	"github.com/rjulian/strudel/surface"
)

// Config wires a session's collaborators. Engine and Surface are
// required; a nil Bus isolates the session and a nil Store skips
// persistence.
type Config struct {
	Engine  pattern.Engine
	Surface surface.Surface
	Bus     coord.Bus
	Store   settings.Store

	// Prebake is asynchronous setup (sample loading, port scanning)
	// that must finish before the first evaluation. Evaluations await
	// it exactly once.
	Prebake func() error

	InitialCode string

	// DrawWindow is the look-behind/look-ahead extent used while
	// painters are registered. Zero means the default of two cycles
	// either side.
	DrawWindow draw.Window

	// LiveReload pushes buffer edits straight to a playing engine via
	// its SetCode fast path, without re-running the full evaluation
	// lifecycle.
	LiveReload bool
}

// Session is one live-coding session. All exported methods are safe
// for concurrent use; Evaluate, Stop and Toggle return a completion
// handle, everything else returns immediately.
type Session struct {
	id      string
	engine  pattern.Engine
	adapter *surface.Adapter
	sync    *draw.Synchronizer
	bus     coord.Bus
	store   settings.Store

	drawWindow draw.Window
	liveReload bool

	prebakeDone chan struct{}
	prebakeErr  error

	errs chan error

	unsubscribe  func()
	removeToggle func()
	removeBefore func()
	removeAfter  func()

	mu      sync.Mutex
	code    string
	snap    settings.Snapshot
	widgets []pattern.ControlWidget
	closed  bool
}

func New(cfg Config) *Session {
	bus := cfg.Bus
	if bus == nil {
		bus = coord.NewMemoryBus()
	}
	window := cfg.DrawWindow
	if window == (draw.Window{}) {
		window = draw.Window{Behind: 2, Ahead: 2}
	}

	s := &Session{
		id:          uuid.NewString(),
		engine:      cfg.Engine,
		adapter:     surface.NewAdapter(cfg.Surface),
		bus:         bus,
		store:       cfg.Store,
		drawWindow:  window,
		liveReload:  cfg.LiveReload,
		prebakeDone: make(chan struct{}),
		errs:        make(chan error, 16),
		code:        cfg.InitialCode,
	}
	s.sync = draw.New(cfg.Engine.Clock(), s.adapter)

	// Settings: persisted snapshot merged over defaults. Sessions hold
	// a copy, not a live reference to the shared store.
	s.snap = settings.Defaults()
	if s.store != nil {
		persisted, err := s.store.Load()
		if err != nil {
			debug.Log("repl", "settings load failed, using defaults: %v", err)
		} else {
			s.snap = settings.Merge(s.snap, persisted)
		}
	}

	s.adapter.Initialize(cfg.InitialCode, s.onTextChanged,
		func() { s.Evaluate() },
		func() { s.Stop() },
	)
	for name, value := range s.snap {
		s.adapter.Reconfigure(name, value, s)
	}

	// Lifecycle hooks. The engine invokes these itself.
	s.removeBefore = s.engine.BeforeEval(func() {
		s.sync.ClearPainters()
	})
	s.removeAfter = s.engine.AfterEval(func(res *pattern.EvalResult) {
		s.sync.SetResult(res)
		s.mu.Lock()
		s.widgets = res.Widgets
		s.mu.Unlock()
	})
	s.removeToggle = s.engine.OnToggle(s.onToggle)

	// Coordination: stop whenever any other session starts.
	s.unsubscribe = bus.Subscribe(func(msg coord.StartMsg) {
		if msg.SessionID != s.id {
			s.Stop()
		}
	})

	if cfg.Prebake != nil {
		go func() {
			s.prebakeErr = cfg.Prebake()
			close(s.prebakeDone)
		}()
	} else {
		close(s.prebakeDone)
	}

	debug.Log("repl", "session %s created", s.id)
	return s
}

// ID returns the session's page-unique identifier.
func (s *Session) ID() string { return s.id }

// Setting returns one value from the session's settings snapshot.
func (s *Session) Setting(name string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap[name]
}

// Settings returns a copy of the session's settings snapshot.
func (s *Session) Settings() settings.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := make(settings.Snapshot, len(s.snap))
	for k, v := range s.snap {
		snap[k] = v
	}
	return snap
}

// Code returns the session's current code text.
func (s *Session) Code() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code
}

// Widgets returns the interactive controls the last successful
// evaluation declared.
func (s *Session) Widgets() []pattern.ControlWidget {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.widgets
}

// Errors is the session's error channel. Evaluation failures land
// here; preview failures never do.
func (s *Session) Errors() <-chan error { return s.errs }

// AddPainter registers a visual callback for the next frames. The
// painter list is cleared at the start of every evaluation, so
// standing painters are re-registered from an AfterEval hook.
func (s *Session) AddPainter(p draw.Painter) {
	s.sync.AddPainter(p)
}

// HandleKey offers a key chord to the session before any editing
// dispatch sees it. Returns true when the key triggered evaluate or
// stop; hosts must call this first so those bindings outrank
// everything else.
func (s *Session) HandleKey(key string) bool {
	return s.adapter.HandleKey(key)
}

// Evaluate submits the current code to the engine. The returned handle
// resolves when the evaluation completed or failed; failures also land
// on the error channel.
func (s *Session) Evaluate() *Pending {
	p := newPending()
	go func() { p.resolve(s.evaluate()) }()
	return p
}

func (s *Session) evaluate() error {
	if s.isClosed() {
		return ErrClosed
	}

	s.adapter.Flash()

	// Await pending initialization, exactly once per evaluation; a
	// resolved prebake costs nothing.
	<-s.prebakeDone
	if s.prebakeErr != nil {
		err := &PrebakeError{Err: s.prebakeErr}
		s.report(err)
		return err
	}

	code := s.Code()

	// Best-effort first frame before playback starts. Errors are
	// logged inside, never surfaced.
	if !s.engine.Clock().Started() {
		s.sync.Prerender(s.engine, code)
	}

	if _, err := s.engine.Evaluate(code); err != nil {
		evalErr := &EvalError{SessionID: s.id, Err: err}
		s.report(evalErr)
		return evalErr
	}
	return nil
}

// Stop asks the clock to halt and returns immediately; completion is
// signaled by the engine's own toggle notification. A stop issued
// while an evaluation is still awaiting prebake does not preempt it:
// the late evaluation starts playback that the next user action must
// stop again.
func (s *Session) Stop() *Pending {
	if s.isClosed() {
		return resolved(ErrClosed)
	}
	s.engine.Clock().Stop()
	return resolved(nil)
}

// Toggle stops when playing, evaluates otherwise.
func (s *Session) Toggle() *Pending {
	if s.engine.Clock().Started() {
		return s.Stop()
	}
	return s.Evaluate()
}

// Playing reports whether the session's clock is running.
func (s *Session) Playing() bool {
	return s.engine.Clock().Started()
}

// CPS is the current cycles-per-second rate.
func (s *Session) CPS() float64 {
	return s.engine.Clock().CPS()
}

// SetCode replaces the buffer text programmatically. With LiveReload
// enabled and playback running, the engine picks the new pattern up on
// its fast path without a full evaluation.
func (s *Session) SetCode(text string) {
	s.adapter.ReplaceAllText(text)
}

// UpdateSettings merges the provided keys into the session snapshot,
// reconfigures the affected behavior compartments, and persists the
// patch. Other sessions keep their snapshots; only future sessions see
// the persisted values.
func (s *Session) UpdateSettings(patch settings.Snapshot) {
	patch = settings.CoerceAll(patch)

	s.mu.Lock()
	s.snap = settings.Merge(s.snap, patch)
	s.mu.Unlock()

	for name, value := range patch {
		// Unknown keys stay in the snapshot and persist, but configure
		// nothing.
		if !surface.Known(name) {
			debug.Log("repl", "unknown setting %q kept, not applied", name)
			continue
		}
		s.adapter.Reconfigure(name, value, s)
	}

	if s.store != nil {
		if err := s.store.Save(patch); err != nil {
			debug.Log("repl", "settings save failed: %v", err)
		}
	}
}

// ChangeSetting updates a single setting.
func (s *Session) ChangeSetting(key string, value any) {
	s.UpdateSettings(settings.Snapshot{key: value})
}

// SetFontSize updates the editor font size.
func (s *Session) SetFontSize(px float64) {
	s.ChangeSetting("fontSize", px)
}

// SetFontFamily updates the editor font family.
func (s *Session) SetFontFamily(name string) {
	s.ChangeSetting("fontFamily", name)
}

// Clear tears the session down: playback stops, the coordination
// listener is removed (skipping this would leak a listener per
// session), hooks are detached and the surface is released.
func (s *Session) Clear() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.unsubscribe()
	s.removeToggle()
	s.removeBefore()
	s.removeAfter()
	s.engine.Clock().Stop()
	s.sync.Stop()
	s.adapter.Release()
	debug.Log("repl", "session %s cleared", s.id)
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// onTextChanged tracks the editor buffer. Notifications arrive
// synchronously and in edit order from the adapter.
func (s *Session) onTextChanged(text string) {
	s.mu.Lock()
	s.code = text
	live := s.liveReload && !s.closed
	s.mu.Unlock()

	if live && s.engine.Clock().Started() {
		if err := s.engine.SetCode(text); err != nil {
			// Mid-edit text is often transiently unparsable; the next
			// keystroke or evaluation supersedes this.
			debug.LogEvery(16, "repl", "live reload parse: %v", err)
		}
	}
}

// onToggle reacts to the engine's clock edges.
func (s *Session) onToggle(started bool) {
	if !started {
		s.sync.Stop()
		debug.Log("repl", "session %s stopped", s.id)
		return
	}

	// No painters means no draw window is needed; collapse it so the
	// frame loop skips the heavier rendering work.
	if s.sync.PainterCount() == 0 {
		s.sync.SetWindow(draw.Window{})
	} else {
		s.sync.SetWindow(s.drawWindow)
	}
	s.sync.Start()
	s.bus.Publish(coord.StartMsg{SessionID: s.id})
	debug.Log("repl", "session %s started", s.id)
}

// report delivers an error to the session's channel without blocking;
// an unread backlog is dropped into the diagnostic log instead.
func (s *Session) report(err error) {
	select {
	case s.errs <- err:
	default:
		debug.Log("repl", "error channel full, dropping: %v", err)
	}
}
