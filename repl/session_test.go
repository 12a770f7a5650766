package repl

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rjulian/strudel/coord"
	"github.com/rjulian/strudel/draw"
	"github.com/rjulian/strudel/pattern"
	"github.com/rjulian/strudel/settings"
	"github.com/rjulian/strudel/surface"
)

type harness struct {
	session *Session
	engine  *pattern.MiniEngine
	mem     *surface.MemSurface
	bus     *coord.MemoryBus
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		engine: pattern.NewMiniEngine(0.5),
		mem:    surface.NewMemSurface(),
	}
	if cfg.Bus == nil {
		cfg.Bus = coord.NewMemoryBus()
	}
	h.bus = cfg.Bus.(*coord.MemoryBus)
	cfg.Engine = h.engine
	cfg.Surface = h.mem
	h.session = New(cfg)
	t.Cleanup(h.session.Clear)
	return h
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSetCodeThenRead(t *testing.T) {
	h := newHarness(t, Config{InitialCode: "bd sd"})

	for _, text := range []string{"hh hh", "", "bd sd and then some", "bd sd"} {
		h.session.SetCode(text)
		if got := h.session.Code(); got != text {
			t.Errorf("Code() = %q, want %q", got, text)
		}
		if got := h.mem.Text(); got != text {
			t.Errorf("surface text = %q, want %q", got, text)
		}
	}
}

func TestUserEditsReachCodeBuffer(t *testing.T) {
	h := newHarness(t, Config{InitialCode: "bd"})

	h.mem.Insert(" sd")
	if got := h.session.Code(); got != "bd sd" {
		t.Errorf("Code() = %q, want %q", got, "bd sd")
	}
}

func TestEvaluateStartsPlaybackAndFlashes(t *testing.T) {
	h := newHarness(t, Config{InitialCode: "bd sd"})

	if err := h.session.Evaluate().Wait(); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !h.engine.Clock().Started() {
		t.Error("clock not started after evaluation")
	}
	if h.mem.Flashes() != 1 {
		t.Errorf("flashes = %d, want 1", h.mem.Flashes())
	}
}

func TestEvaluateErrorSurfacesAndStaysIdle(t *testing.T) {
	h := newHarness(t, Config{InitialCode: "[broken"})

	err := h.session.Evaluate().Wait()
	if err == nil {
		t.Fatal("Evaluate of broken code succeeded")
	}
	var evalErr *EvalError
	if !errors.As(err, &evalErr) {
		t.Fatalf("error %T is not an EvalError", err)
	}

	select {
	case chanErr := <-h.session.Errors():
		if !errors.As(chanErr, &evalErr) {
			t.Errorf("error channel got %T, want EvalError", chanErr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("error never reached the error channel")
	}

	if h.engine.Clock().Started() {
		t.Error("failed evaluation started playback")
	}
	if len(h.mem.Highlights()) != 0 {
		t.Error("failed evaluation applied highlight state")
	}
}

func TestHighlightsFollowPlayback(t *testing.T) {
	code := "bd sd"
	h := newHarness(t, Config{InitialCode: code})

	if err := h.session.Evaluate().Wait(); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	eventually(t, "a highlight frame", func() bool {
		return len(h.mem.Highlights()) > 0
	})
	for _, r := range h.mem.Highlights() {
		if r.Start < 0 || r.End > len(code) {
			t.Errorf("highlight %+v outside evaluated text", r)
		}
	}

	h.session.Stop()
	eventually(t, "highlights cleared after stop", func() bool {
		return len(h.mem.Highlights()) == 0
	})
}

// The source-location map refers to the text that was evaluated, not
// text edited afterward.
func TestLocationMapNotStaleAfterEdits(t *testing.T) {
	code := "bd sd"
	h := newHarness(t, Config{InitialCode: code})

	if err := h.session.Evaluate().Wait(); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	h.mem.Insert("\nhh hh hh") // edit without re-evaluating

	eventually(t, "a highlight frame", func() bool {
		return len(h.mem.Highlights()) > 0
	})
	for _, r := range h.mem.Highlights() {
		if r.End > len(code) {
			t.Errorf("highlight %+v beyond the evaluated text (stale map applied to new text?)", r)
		}
		if got := code[r.Start:r.End]; got != "bd" && got != "sd" {
			t.Errorf("highlight covers %q in the evaluated text", got)
		}
	}
}

func TestToggleComposition(t *testing.T) {
	h := newHarness(t, Config{InitialCode: "bd"})

	if err := h.session.Toggle().Wait(); err != nil {
		t.Fatalf("Toggle (evaluate): %v", err)
	}
	if !h.engine.Clock().Started() {
		t.Fatal("first toggle did not start playback")
	}
	h.session.Toggle().Wait()
	if h.engine.Clock().Started() {
		t.Error("second toggle did not stop playback")
	}
}

func TestMutualExclusionAcrossSessions(t *testing.T) {
	bus := coord.NewMemoryBus()
	h1 := newHarness(t, Config{InitialCode: "bd", Bus: bus})
	h2 := newHarness(t, Config{InitialCode: "sd", Bus: bus})

	if err := h1.session.Evaluate().Wait(); err != nil {
		t.Fatalf("s1 evaluate: %v", err)
	}
	if !h1.engine.Clock().Started() {
		t.Fatal("s1 not playing")
	}
	// s2 never started: the broadcast it just received is a no-op.
	if h2.engine.Clock().Started() {
		t.Fatal("s1's start toggled s2")
	}

	if err := h2.session.Evaluate().Wait(); err != nil {
		t.Fatalf("s2 evaluate: %v", err)
	}
	if h1.engine.Clock().Started() {
		t.Error("s1 still playing after s2 started")
	}
	if !h2.engine.Clock().Started() {
		t.Error("s2 not playing after its own start")
	}

	// Starting s1 again stops s2, not itself.
	if err := h1.session.Evaluate().Wait(); err != nil {
		t.Fatalf("s1 re-evaluate: %v", err)
	}
	if h2.engine.Clock().Started() {
		t.Error("s2 still playing after s1 restarted")
	}
	if !h1.engine.Clock().Started() {
		t.Error("s1 stopped itself via its own broadcast")
	}
}

func TestClearUnsubscribesAndClosesSession(t *testing.T) {
	bus := coord.NewMemoryBus()
	h := newHarness(t, Config{InitialCode: "bd", Bus: bus})

	if n := bus.SubscriberCount(); n != 1 {
		t.Fatalf("SubscriberCount = %d, want 1", n)
	}
	h.session.Clear()
	if n := bus.SubscriberCount(); n != 0 {
		t.Errorf("SubscriberCount after Clear = %d, want 0 (leaked listener)", n)
	}

	if err := h.session.Evaluate().Wait(); !errors.Is(err, ErrClosed) {
		t.Errorf("Evaluate after Clear = %v, want ErrClosed", err)
	}
	h.session.Clear() // idempotent
}

func TestPrebakeAwaitedBeforeEvaluation(t *testing.T) {
	ready := false
	h := newHarness(t, Config{
		InitialCode: "bd",
		Prebake: func() error {
			time.Sleep(50 * time.Millisecond)
			ready = true
			return nil
		},
	})

	if err := h.session.Evaluate().Wait(); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !ready {
		t.Error("evaluation ran before prebake resolved")
	}
}

func TestPrebakeFailureSurfaces(t *testing.T) {
	h := newHarness(t, Config{
		InitialCode: "bd",
		Prebake:     func() error { return errors.New("samples missing") },
	})

	err := h.session.Evaluate().Wait()
	var prebakeErr *PrebakeError
	if !errors.As(err, &prebakeErr) {
		t.Fatalf("error %v (%T), want PrebakeError", err, err)
	}
	if h.engine.Clock().Started() {
		t.Error("playback started despite failed prebake")
	}
}

func TestUpdateSettingsPartialMerge(t *testing.T) {
	h := newHarness(t, Config{InitialCode: "bd"})

	h.session.ChangeSetting("lineWrapping", true)
	h.session.UpdateSettings(settings.Snapshot{"fontSize": float64(24)})

	snap := h.session.Settings()
	if snap["fontSize"] != float64(24) {
		t.Errorf("fontSize = %v, want 24", snap["fontSize"])
	}
	if snap["lineWrapping"] != true {
		t.Errorf("lineWrapping = %v, want true (partial merge, not replace)", snap["lineWrapping"])
	}
}

func TestSettingsPersistAcrossSessions(t *testing.T) {
	store := settings.NewFileStore(filepath.Join(t.TempDir(), "settings.json"))

	h1 := newHarness(t, Config{InitialCode: "bd", Store: store})
	h1.session.SetFontSize(24)
	h1.session.SetFontFamily("Fira Code")
	h1.session.Clear()

	h2 := newHarness(t, Config{InitialCode: "bd", Store: store})
	snap := h2.session.Settings()
	if snap["fontSize"] != float64(24) {
		t.Errorf("fontSize = %v, want persisted 24", snap["fontSize"])
	}
	if snap["fontFamily"] != "Fira Code" {
		t.Errorf("fontFamily = %v, want persisted Fira Code", snap["fontFamily"])
	}
	for k := range settings.Defaults() {
		if _, ok := snap[k]; !ok {
			t.Errorf("snapshot missing default key %q", k)
		}
	}
}

func TestUpdateSettingsUnknownKeyIsNoOp(t *testing.T) {
	h := newHarness(t, Config{InitialCode: "bd"})
	h.session.ChangeSetting("definitelyNotASetting", true)
	if _, ok := h.mem.Applied("definitelyNotASetting"); ok {
		t.Error("unknown setting reached the surface")
	}
	// Kept in the snapshot for forward compatibility nonetheless.
	if v := h.session.Setting("definitelyNotASetting"); v != true {
		t.Errorf("unknown setting = %v, want kept as true", v)
	}
}

func TestSettingsChangeReconfiguresSurface(t *testing.T) {
	h := newHarness(t, Config{InitialCode: "bd"})

	h.session.ChangeSetting("lineNumbers", "false") // string form, as persistence delivers it
	f, ok := h.mem.Applied("lineNumbers")
	if !ok {
		t.Fatal("lineNumbers never applied")
	}
	if f.Enabled {
		t.Error("string \"false\" did not disable line numbers")
	}
}

func TestPaintersClearedEachEvaluationAndWindowCollapse(t *testing.T) {
	h := newHarness(t, Config{InitialCode: "bd"})

	h.session.AddPainter(func(draw.Frame) {})
	if err := h.session.Evaluate().Wait(); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	// The before-evaluation hook cleared the registration; with no
	// painters the draw window collapses to zero width.
	if got := h.session.sync.PainterCount(); got != 0 {
		t.Errorf("painters after evaluate = %d, want 0", got)
	}
	if w := h.session.sync.Window(); w != (draw.Window{}) {
		t.Errorf("window = %+v, want collapsed", w)
	}
}

func TestStandingPainterKeepsWindowOpen(t *testing.T) {
	h := newHarness(t, Config{InitialCode: "bd", DrawWindow: draw.Window{Behind: 1, Ahead: 1}})

	// Standing painters re-register after every evaluation.
	h.engine.AfterEval(func(*pattern.EvalResult) {
		h.session.AddPainter(func(draw.Frame) {})
	})

	if err := h.session.Evaluate().Wait(); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if w := h.session.sync.Window(); w != (draw.Window{Behind: 1, Ahead: 1}) {
		t.Errorf("window = %+v, want configured extent", w)
	}
}

func TestLiveReloadPushesEditsToPlayingEngine(t *testing.T) {
	h := newHarness(t, Config{InitialCode: "bd", LiveReload: true})

	if err := h.session.Evaluate().Wait(); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	h.mem.SetText("bd sd hh sd")

	if haps := h.engine.Query(0, 1); len(haps) != 4 {
		t.Errorf("playing engine has %d haps per cycle, want 4 after live reload", len(haps))
	}
}

func TestStopDuringInFlightEvaluationIsNotLost(t *testing.T) {
	release := make(chan struct{})
	h := newHarness(t, Config{
		InitialCode: "bd",
		Prebake:     func() error { <-release; return nil },
	})

	pending := h.session.Evaluate()
	h.session.Stop().Wait() // playback never started; stop is a no-op, not a crash
	close(release)

	if err := pending.Wait(); err != nil {
		t.Fatalf("in-flight evaluation failed: %v", err)
	}
	// Documented limitation: the late evaluation starts playback and a
	// fresh user stop is needed.
	if !h.engine.Clock().Started() {
		t.Fatal("late evaluation did not start playback")
	}
	h.session.Stop().Wait()
	if h.engine.Clock().Started() {
		t.Error("second stop did not halt playback")
	}
}

func TestEvaluateStopKeysRouted(t *testing.T) {
	h := newHarness(t, Config{InitialCode: "bd"})

	if !h.session.adapter.HandleKey("ctrl+enter") {
		t.Fatal("ctrl+enter not consumed")
	}
	eventually(t, "playback after keyboard evaluate", func() bool {
		return h.engine.Clock().Started()
	})

	if !h.session.adapter.HandleKey("ctrl+.") {
		t.Fatal("ctrl+. not consumed")
	}
	eventually(t, "stop after keyboard stop", func() bool {
		return !h.engine.Clock().Started()
	})
}

func TestSessionIDsUnique(t *testing.T) {
	h1 := newHarness(t, Config{})
	h2 := newHarness(t, Config{})
	if h1.session.ID() == h2.session.ID() {
		t.Error("two sessions share an identifier")
	}
}

func TestWidgetsExposedAfterEvaluation(t *testing.T) {
	h := newHarness(t, Config{InitialCode: "setcps 0.9\nbd"})

	if err := h.session.Evaluate().Wait(); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	widgets := h.session.Widgets()
	if len(widgets) != 1 || widgets[0].Name != "cps" || widgets[0].Value != 0.9 {
		t.Errorf("widgets = %+v, want one cps control at 0.9", widgets)
	}
}
