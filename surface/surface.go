package surface

import (
	"sync"

	"github.com/rjulian/strudel/pattern"
)

// Surface is the text-editing collaborator contract. Implementations
// must deliver edit notifications synchronously, in edit order,
// carrying the full current text and whether it actually changed, and
// must treat Apply as swapping exactly one named configuration slot.
type Surface interface {
	SetText(string)
	Text() string

	// OnEdit registers the edit-change listener. One listener is
	// enough; the Adapter multiplexes.
	OnEdit(func(text string, changed bool))

	// Apply installs a fragment into the compartment for its behavior,
	// leaving every other compartment (and edit history, selection,
	// undo state) untouched.
	Apply(Fragment)

	// Highlight replaces the active highlight set wholesale.
	Highlight([]pattern.SourceRange)

	// Flash shows a brief visual acknowledgment of an evaluation.
	Flash()
}

// Evaluate/stop key chords. These take precedence over every other
// key handling: hosts must offer keys to the Adapter before their own
// editing dispatch.
var (
	evaluateKeys = map[string]bool{"ctrl+enter": true, "alt+enter": true}
	stopKeys     = map[string]bool{"ctrl+.": true, "alt+.": true}
)

// Adapter owns a Surface on behalf of one session: it tracks the
// fragment installed in each behavior compartment, routes edit
// notifications, and claims the evaluate/stop keys.
type Adapter struct {
	surf Surface

	mu           sync.Mutex
	compartments map[string]Fragment

	onChange   func(text string)
	onEvaluate func()
	onStop     func()
}

func NewAdapter(surf Surface) *Adapter {
	return &Adapter{
		surf:         surf,
		compartments: make(map[string]Fragment),
	}
}

// Initialize installs the initial text and wires the callbacks. Edit
// notifications are forwarded synchronously and only when the text
// actually changed.
func (a *Adapter) Initialize(initial string, onChange func(string), onEvaluate, onStop func()) {
	a.mu.Lock()
	a.onChange = onChange
	a.onEvaluate = onEvaluate
	a.onStop = onStop
	a.mu.Unlock()

	a.surf.OnEdit(func(text string, changed bool) {
		if !changed {
			return
		}
		a.mu.Lock()
		fn := a.onChange
		a.mu.Unlock()
		if fn != nil {
			fn(text)
		}
	})
	a.surf.SetText(initial)
}

// Reconfigure swaps exactly one behavior compartment. The resulting
// fragment depends only on the value supplied now, not on any earlier
// value for the same name. Unknown names are a logged no-op.
func (a *Adapter) Reconfigure(name string, value any, s Session) {
	fragment, ok := Instantiate(name, value, s)
	if !ok {
		return
	}
	a.mu.Lock()
	a.compartments[name] = fragment
	a.mu.Unlock()
	a.surf.Apply(fragment)
}

// Compartment returns the fragment currently installed for a behavior.
func (a *Adapter) Compartment(name string) (Fragment, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	f, ok := a.compartments[name]
	return f, ok
}

// ReplaceAllText replaces the whole buffer atomically.
func (a *Adapter) ReplaceAllText(text string) {
	a.surf.SetText(text)
}

// Text returns the surface's current text.
func (a *Adapter) Text() string {
	return a.surf.Text()
}

// HandleKey claims the evaluate/stop chords. Returns true when the key
// was consumed; hosts pass unconsumed keys on to their own editing
// dispatch, which is how these bindings outrank everything else.
func (a *Adapter) HandleKey(key string) bool {
	a.mu.Lock()
	evaluate, stop := a.onEvaluate, a.onStop
	a.mu.Unlock()

	switch {
	case evaluateKeys[key]:
		if evaluate != nil {
			evaluate()
		}
		return true
	case stopKeys[key]:
		if stop != nil {
			stop()
		}
		return true
	}
	return false
}

// Highlight forwards the active highlight set to the surface.
func (a *Adapter) Highlight(ranges []pattern.SourceRange) {
	a.surf.Highlight(ranges)
}

// ClearHighlights removes all active highlights.
func (a *Adapter) ClearHighlights() {
	a.surf.Highlight(nil)
}

// Flash forwards the evaluation acknowledgment, honoring the flash
// behavior toggle when one is installed.
func (a *Adapter) Flash() {
	a.mu.Lock()
	f, ok := a.compartments["flash"]
	a.mu.Unlock()
	if ok && !f.Enabled {
		return
	}
	a.surf.Flash()
}

// Release detaches the adapter's callbacks so a torn-down session
// can't be re-entered through stale surface notifications.
func (a *Adapter) Release() {
	a.mu.Lock()
	a.onChange = nil
	a.onEvaluate = nil
	a.onStop = nil
	a.mu.Unlock()
	a.surf.Highlight(nil)
}
