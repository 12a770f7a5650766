// Package pattern defines the contract between a session and its
// pattern-evaluation engine: timed events (haps), a playback clock,
// and evaluation results carrying source locations. It also ships a
// reference engine that plays a small step-sequencing notation, so the
// module runs end to end without an external engine.
package pattern

import "fmt"

// Span is a half-open time window in cycles.
type Span struct {
	Begin float64
	End   float64
}

func (s Span) Width() float64 { return s.End - s.Begin }

// Contains reports whether t falls inside the span (closed begin,
// open end).
func (s Span) Contains(t float64) bool {
	return t >= s.Begin && t < s.End
}

func (s Span) String() string {
	return fmt.Sprintf("[%g, %g)", s.Begin, s.End)
}

// SourceRange is a byte-offset range into the evaluated code text.
type SourceRange struct {
	Start int
	End   int
}

// Value is what a hap carries: a sound name, an optional note number
// and a gain.
type Value struct {
	Sound string
	Note  uint8
	Gain  float64
}

// Hap is one timed event. Whole is the event's full extent; Part is
// the fragment of it covered by the query that produced the hap and
// may be clipped at either end. Location points into the code text the
// event came from, when the engine knows it. Haps are immutable once
// returned.
type Hap struct {
	Whole    *Span
	Part     Span
	Value    Value
	Location *SourceRange
}

// WholeOrPart returns Whole when present, else Part.
func (h Hap) WholeOrPart() Span {
	if h.Whole != nil {
		return *h.Whole
	}
	return h.Part
}

// ActiveAt reports whether the event is sounding at time t: its whole
// has begun and its (possibly clipped) part has not ended.
func (h Hap) ActiveAt(t float64) bool {
	return h.WholeOrPart().Begin <= t && h.Part.End >= t
}

// HasOnset reports whether the part includes the event's own start,
// i.e. this query window saw the event begin.
func (h Hap) HasOnset() bool {
	return h.Whole != nil && h.Whole.Begin == h.Part.Begin
}

func (h Hap) String() string {
	return fmt.Sprintf("%s %s", h.Part, h.Value.Sound)
}
