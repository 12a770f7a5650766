package surface

import (
	"testing"

	"github.com/rjulian/strudel/pattern"
)

type fakeSession struct {
	id   string
	snap map[string]any
}

func (f *fakeSession) ID() string              { return f.id }
func (f *fakeSession) Setting(name string) any { return f.snap[name] }

func newTestAdapter() (*Adapter, *MemSurface) {
	mem := NewMemSurface()
	return NewAdapter(mem), mem
}

func TestInstantiateUnknownNameIsNoOp(t *testing.T) {
	_, ok := Instantiate("notASetting", true, &fakeSession{id: "s"})
	if ok {
		t.Error("unknown behavior instantiated")
	}
}

func TestInstantiateCoercesStringBooleans(t *testing.T) {
	f, ok := Instantiate("lineNumbers", "true", &fakeSession{id: "s"})
	if !ok {
		t.Fatal("lineNumbers not registered")
	}
	if !f.Enabled {
		t.Error("string \"true\" did not enable the behavior")
	}
}

// The fragment for a name depends only on the latest value supplied
// for that name, whatever came before.
func TestReconfigureNoAccumulation(t *testing.T) {
	adapter, mem := newTestAdapter()
	s := &fakeSession{id: "s"}

	sequences := [][]any{
		{true, false},
		{false, "true", false},
		{true, true, false},
	}
	for _, seq := range sequences {
		for _, v := range seq {
			adapter.Reconfigure("lineWrapping", v, s)
		}
		got, ok := mem.Applied("lineWrapping")
		if !ok {
			t.Fatal("lineWrapping never applied")
		}
		if got.Enabled != false {
			t.Errorf("after %v: Enabled = %v, want false (latest value only)", seq, got.Enabled)
		}
	}
}

func TestReconfigureSwapsExactlyOneSlot(t *testing.T) {
	adapter, mem := newTestAdapter()
	s := &fakeSession{id: "s"}

	adapter.Reconfigure("lineNumbers", true, s)
	adapter.Reconfigure("fontSize", float64(24), s)

	ln, _ := mem.Applied("lineNumbers")
	if !ln.Enabled {
		t.Error("fontSize reconfigure disturbed the lineNumbers slot")
	}
	fs, _ := mem.Applied("fontSize")
	if fs.Options["px"] != float64(24) {
		t.Errorf("fontSize px = %v, want 24", fs.Options["px"])
	}
	if _, ok := mem.Applied("theme"); ok {
		t.Error("untouched slot got applied")
	}
}

func TestReplaceAllTextThenRead(t *testing.T) {
	adapter, _ := newTestAdapter()
	adapter.Initialize("old content", nil, nil, nil)

	for _, text := range []string{"bd sd", "", "old content plus more"} {
		adapter.ReplaceAllText(text)
		if got := adapter.Text(); got != text {
			t.Errorf("Text() = %q, want %q", got, text)
		}
	}
}

func TestEditNotificationsSynchronousAndOrdered(t *testing.T) {
	adapter, mem := newTestAdapter()

	var seen []string
	adapter.Initialize("", func(text string) { seen = append(seen, text) }, nil, nil)

	mem.Insert("b")
	mem.Insert("d")
	mem.DeleteBack(1)

	want := []string{"b", "bd", "b"}
	if len(seen) != len(want) {
		t.Fatalf("got %d notifications %v, want %v", len(seen), seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("notification %d = %q, want %q", i, seen[i], want[i])
		}
	}
}

func TestUnchangedEditNotForwarded(t *testing.T) {
	adapter, mem := newTestAdapter()

	calls := 0
	adapter.Initialize("same", func(string) { calls++ }, nil, nil)
	calls = 0 // Initialize itself set the text

	mem.SetText("same")
	if calls != 0 {
		t.Errorf("unchanged SetText produced %d notifications", calls)
	}
}

func TestEvaluateAndStopKeysTakePrecedence(t *testing.T) {
	adapter, _ := newTestAdapter()

	evals, stops := 0, 0
	adapter.Initialize("", nil, func() { evals++ }, func() { stops++ })

	for _, key := range []string{"ctrl+enter", "alt+enter"} {
		if !adapter.HandleKey(key) {
			t.Errorf("key %q not consumed", key)
		}
	}
	for _, key := range []string{"ctrl+.", "alt+."} {
		if !adapter.HandleKey(key) {
			t.Errorf("key %q not consumed", key)
		}
	}
	if evals != 2 || stops != 2 {
		t.Errorf("evals=%d stops=%d, want 2 and 2", evals, stops)
	}

	if adapter.HandleKey("a") {
		t.Error("plain key consumed; editing would never see it")
	}
}

func TestFlashHonorsToggle(t *testing.T) {
	adapter, mem := newTestAdapter()
	s := &fakeSession{id: "s"}
	adapter.Initialize("", nil, nil, nil)

	adapter.Flash() // no fragment installed yet: flash passes through
	adapter.Reconfigure("flash", false, s)
	adapter.Flash()
	adapter.Reconfigure("flash", true, s)
	adapter.Flash()

	if got := mem.Flashes(); got != 2 {
		t.Errorf("flashes = %d, want 2", got)
	}
}

func TestReleaseDetachesCallbacks(t *testing.T) {
	adapter, mem := newTestAdapter()

	calls := 0
	adapter.Initialize("", func(string) { calls++ }, nil, nil)
	mem.Highlight([]pattern.SourceRange{{Start: 0, End: 2}})

	adapter.Release()
	mem.Insert("x")

	if calls != 0 {
		t.Errorf("released adapter forwarded %d notifications", calls)
	}
	if len(mem.Highlights()) != 0 {
		t.Error("Release left highlights behind")
	}
	if adapter.HandleKey("ctrl+enter") != true {
		t.Error("chord still consumed (but must be inert)")
	}
}
