package pattern

// Pattern produces the haps overlapping a query span. A zero-width
// span is a point query: it returns the haps sounding at that instant.
// Results are sorted by part begin.
type Pattern interface {
	Query(from, to float64) []Hap
}

// ControlWidget describes an interactive control the evaluated code
// declared (a tempo knob, a gain slider). The session hands these to
// the host UI after each evaluation.
type ControlWidget struct {
	Name     string
	Value    float64
	Location SourceRange
}

// EvalResult is the metadata a successful evaluation yields.
type EvalResult struct {
	Pattern Pattern

	// Locations is the source-location map for the evaluated text.
	// It is regenerated wholesale on every evaluation; offsets are
	// only valid for the exact text that was evaluated.
	Locations []SourceRange

	Widgets []ControlWidget
}

// Engine is the pattern-evaluation collaborator. Implementations own
// the playback clock and invoke the registered hooks themselves:
// BeforeEval fires before a submitted evaluation runs, AfterEval fires
// with the result of a successful one, and OnToggle fires whenever the
// clock starts or stops.
type Engine interface {
	// Evaluate parses and installs code, then starts playback if the
	// clock is not already running. Returns the evaluation error
	// verbatim; no hooks fire on failure.
	Evaluate(code string) (*EvalResult, error)

	// SetCode swaps the playing pattern without touching the clock,
	// the fast path for already-playing sessions.
	SetCode(code string) error

	// Preview parses code without installing it, starting playback or
	// firing hooks. Used for detached first-frame rendering.
	Preview(code string) (*EvalResult, error)

	Clock() *Clock

	OnToggle(func(started bool)) (remove func())
	BeforeEval(func()) (remove func())
	AfterEval(func(*EvalResult)) (remove func())
}
