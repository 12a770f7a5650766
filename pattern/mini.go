package pattern

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Mini-notation: each non-empty line is a pattern whose steps share
// one cycle equally, and lines play stacked. Supported forms:
//
//	bd sd hh sd        four equal steps
//	~                  rest
//	[hh hh] sd         subdivision inside one step
//	hh*4               repeat within one step
//	<bd sd>            alternate per cycle
//	bd:3               sample with note/index
//	setcps 0.6         tempo directive (declares a cps control widget)
//	// ...             comment
//
// Every sounding token remembers its byte range in the evaluated text,
// which is where the session's source-location map comes from.

type node interface {
	// events emits the haps for cycle n rendered into [begin, end).
	events(cycle int, begin, end float64) []Hap
	// collect appends the source ranges of every sounding leaf.
	collect(out *[]SourceRange)
}

type restNode struct{}

func (restNode) events(int, float64, float64) []Hap { return nil }
func (restNode) collect(*[]SourceRange)             {}

type wordNode struct {
	value Value
	loc   SourceRange
}

func (w wordNode) events(_ int, begin, end float64) []Hap {
	whole := Span{Begin: begin, End: end}
	loc := w.loc
	return []Hap{{Whole: &whole, Part: whole, Value: w.value, Location: &loc}}
}

func (w wordNode) collect(out *[]SourceRange) { *out = append(*out, w.loc) }

type seqNode struct {
	steps []node
}

func (s seqNode) events(cycle int, begin, end float64) []Hap {
	if len(s.steps) == 0 {
		return nil
	}
	width := (end - begin) / float64(len(s.steps))
	var haps []Hap
	for i, step := range s.steps {
		b := begin + float64(i)*width
		haps = append(haps, step.events(cycle, b, b+width)...)
	}
	return haps
}

func (s seqNode) collect(out *[]SourceRange) {
	for _, step := range s.steps {
		step.collect(out)
	}
}

type repeatNode struct {
	child node
	times int
}

func (r repeatNode) events(cycle int, begin, end float64) []Hap {
	width := (end - begin) / float64(r.times)
	var haps []Hap
	for i := 0; i < r.times; i++ {
		b := begin + float64(i)*width
		haps = append(haps, r.child.events(cycle, b, b+width)...)
	}
	return haps
}

func (r repeatNode) collect(out *[]SourceRange) { r.child.collect(out) }

type altNode struct {
	choices []node
}

func (a altNode) events(cycle int, begin, end float64) []Hap {
	if len(a.choices) == 0 {
		return nil
	}
	idx := cycle % len(a.choices)
	if idx < 0 {
		idx += len(a.choices)
	}
	return a.choices[idx].events(cycle, begin, end)
}

func (a altNode) collect(out *[]SourceRange) {
	for _, c := range a.choices {
		c.collect(out)
	}
}

// stack plays several line patterns in parallel.
type stack struct {
	lines []node
}

func (s *stack) Query(from, to float64) []Hap {
	first := int(math.Floor(from))
	last := int(math.Floor(to))
	if to > from && to == math.Floor(to) {
		last-- // half-open span: a hap starting exactly at `to` is out
	}

	var haps []Hap
	for n := first; n <= last; n++ {
		for _, line := range s.lines {
			for _, h := range line.events(n, float64(n), float64(n)+1) {
				if clipped, ok := clipHap(h, from, to); ok {
					haps = append(haps, clipped)
				}
			}
		}
	}
	sort.Slice(haps, func(i, j int) bool {
		return haps[i].Part.Begin < haps[j].Part.Begin
	})
	return haps
}

// clipHap restricts a hap's part to the query span. A zero-width query
// is a point query: it keeps (unclipped) haps sounding at that instant.
func clipHap(h Hap, from, to float64) (Hap, bool) {
	if to <= from {
		if h.Part.Begin <= from && h.Part.End > from {
			return h, true
		}
		return Hap{}, false
	}
	if h.Part.End <= from || h.Part.Begin >= to {
		return Hap{}, false
	}
	p := h.Part
	if p.Begin < from {
		p.Begin = from
	}
	if p.End > to {
		p.End = to
	}
	h.Part = p
	return h, true
}

// parseMini parses full code text. cps is 0 when no setcps directive
// appears.
func parseMini(code string) (pat *stack, locs []SourceRange, widgets []ControlWidget, cps float64, err error) {
	pat = &stack{}
	offset := 0
	for _, line := range strings.Split(code, "\n") {
		lineStart := offset
		offset += len(line) + 1

		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "//") {
			continue
		}
		if rest, ok := strings.CutPrefix(trimmed, "setcps"); ok {
			numText := strings.TrimSpace(rest)
			v, perr := strconv.ParseFloat(numText, 64)
			if perr != nil || v <= 0 {
				return nil, nil, nil, 0, fmt.Errorf("bad setcps value %q at offset %d", numText, lineStart)
			}
			cps = v
			numStart := lineStart + strings.Index(line, numText)
			widgets = append(widgets, ControlWidget{
				Name:     "cps",
				Value:    v,
				Location: SourceRange{Start: numStart, End: numStart + len(numText)},
			})
			continue
		}

		p := &miniParser{src: code, pos: lineStart, end: lineStart + len(line)}
		seq, perr := p.parseSequence(nil)
		if perr != nil {
			return nil, nil, nil, 0, perr
		}
		if len(seq.steps) == 0 {
			continue
		}
		pat.lines = append(pat.lines, seq)
		seq.collect(&locs)
	}
	return pat, locs, widgets, cps, nil
}

// miniParser is a recursive-descent parser over one line, tracking
// absolute byte offsets into the full code text.
type miniParser struct {
	src string
	pos int
	end int
}

func (p *miniParser) errf(format string, args ...any) error {
	return fmt.Errorf("offset %d: %s", p.pos, fmt.Sprintf(format, args...))
}

func (p *miniParser) skipSpace() {
	for p.pos < p.end && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *miniParser) peek() byte {
	if p.pos >= p.end {
		return 0
	}
	return p.src[p.pos]
}

// parseSequence reads steps until end of line or the given closer.
func (p *miniParser) parseSequence(closers []byte) (seqNode, error) {
	var seq seqNode
	for {
		p.skipSpace()
		if p.pos >= p.end {
			return seq, nil
		}
		ch := p.peek()
		for _, c := range closers {
			if ch == c {
				return seq, nil
			}
		}
		step, err := p.parseStep()
		if err != nil {
			return seqNode{}, err
		}
		seq.steps = append(seq.steps, step)
	}
}

func (p *miniParser) parseStep() (node, error) {
	var step node
	var err error

	switch ch := p.peek(); {
	case ch == '[':
		p.pos++
		inner, ierr := p.parseSequence([]byte{']'})
		if ierr != nil {
			return nil, ierr
		}
		if p.peek() != ']' {
			return nil, p.errf("missing ]")
		}
		p.pos++
		step = inner
	case ch == '<':
		p.pos++
		inner, ierr := p.parseSequence([]byte{'>'})
		if ierr != nil {
			return nil, ierr
		}
		if p.peek() != '>' {
			return nil, p.errf("missing >")
		}
		p.pos++
		if len(inner.steps) == 0 {
			return nil, p.errf("empty alternation")
		}
		step = altNode{choices: inner.steps}
	case ch == '~':
		p.pos++
		step = restNode{}
	case ch == ']' || ch == '>':
		return nil, p.errf("unexpected %q", string(ch))
	default:
		step, err = p.parseWord()
		if err != nil {
			return nil, err
		}
	}

	// Optional *n repeat applies to any step form.
	if p.peek() == '*' {
		p.pos++
		n, err := p.parseInt()
		if err != nil {
			return nil, err
		}
		if n < 1 {
			return nil, p.errf("repeat count must be positive")
		}
		step = repeatNode{child: step, times: n}
	}
	return step, nil
}

func isWordChar(ch byte) bool {
	return ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' ||
		ch >= '0' && ch <= '9' || ch == '_' || ch == '-' || ch == ':' || ch == '.'
}

func (p *miniParser) parseWord() (node, error) {
	start := p.pos
	for p.pos < p.end && isWordChar(p.src[p.pos]) {
		p.pos++
	}
	if p.pos == start {
		return nil, p.errf("unexpected %q", string(p.peek()))
	}
	text := p.src[start:p.pos]

	value := Value{Sound: text, Gain: 1}
	if name, num, ok := strings.Cut(text, ":"); ok {
		n, err := strconv.Atoi(num)
		if err != nil || n < 0 || n > 127 {
			return nil, fmt.Errorf("offset %d: bad note number %q", start, num)
		}
		value.Sound = name
		value.Note = uint8(n)
	}
	if value.Sound == "" {
		return nil, fmt.Errorf("offset %d: empty sound name", start)
	}

	return wordNode{
		value: value,
		loc:   SourceRange{Start: start, End: p.pos},
	}, nil
}

func (p *miniParser) parseInt() (int, error) {
	start := p.pos
	for p.pos < p.end && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
		p.pos++
	}
	if p.pos == start {
		return 0, p.errf("expected a number")
	}
	return strconv.Atoi(p.src[start:p.pos])
}
