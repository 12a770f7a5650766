package tui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rjulian/strudel/pattern"
	"github.com/rjulian/strudel/surface"
	"github.com/rjulian/strudel/theme"
)

// flashDuration is how long the evaluation acknowledgment stays lit.
const flashDuration = 150 * time.Millisecond

// Editor is the terminal text surface: a rune buffer with a cursor,
// highlight ranges and the swappable behavior fragments the session
// installs. It implements surface.Surface.
type Editor struct {
	mu         sync.Mutex
	buf        []rune
	cursor     int
	onEdit     func(text string, changed bool)
	fragments  map[string]surface.Fragment
	highlights []pattern.SourceRange
	flashUntil time.Time
}

func NewEditor() *Editor {
	return &Editor{fragments: make(map[string]surface.Fragment)}
}

// Surface contract

func (e *Editor) SetText(text string) {
	e.mu.Lock()
	changed := string(e.buf) != text
	e.buf = []rune(text)
	if e.cursor > len(e.buf) {
		e.cursor = len(e.buf)
	}
	fn := e.onEdit
	e.mu.Unlock()

	if fn != nil {
		fn(text, changed)
	}
}

func (e *Editor) Text() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return string(e.buf)
}

func (e *Editor) OnEdit(fn func(text string, changed bool)) {
	e.mu.Lock()
	e.onEdit = fn
	e.mu.Unlock()
}

func (e *Editor) Apply(f surface.Fragment) {
	e.mu.Lock()
	e.fragments[f.Behavior] = f
	e.mu.Unlock()
}

func (e *Editor) Highlight(ranges []pattern.SourceRange) {
	e.mu.Lock()
	e.highlights = ranges
	e.mu.Unlock()
}

func (e *Editor) Highlights() []pattern.SourceRange {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]pattern.SourceRange(nil), e.highlights...)
}

func (e *Editor) Flash() {
	e.mu.Lock()
	e.flashUntil = time.Now().Add(flashDuration)
	e.mu.Unlock()
}

// Editing operations, driven by the TUI's key dispatch.

func (e *Editor) InsertRune(r rune) {
	e.mu.Lock()
	e.buf = append(e.buf[:e.cursor], append([]rune{r}, e.buf[e.cursor:]...)...)
	e.cursor++
	text := string(e.buf)
	fn := e.onEdit
	e.mu.Unlock()

	if fn != nil {
		fn(text, true)
	}
}

func (e *Editor) Newline() { e.InsertRune('\n') }

func (e *Editor) Backspace() {
	e.mu.Lock()
	if e.cursor == 0 {
		e.mu.Unlock()
		return
	}
	e.buf = append(e.buf[:e.cursor-1], e.buf[e.cursor:]...)
	e.cursor--
	text := string(e.buf)
	fn := e.onEdit
	e.mu.Unlock()

	if fn != nil {
		fn(text, true)
	}
}

func (e *Editor) MoveLeft() {
	e.mu.Lock()
	if e.cursor > 0 {
		e.cursor--
	}
	e.mu.Unlock()
}

func (e *Editor) MoveRight() {
	e.mu.Lock()
	if e.cursor < len(e.buf) {
		e.cursor++
	}
	e.mu.Unlock()
}

func (e *Editor) MoveUp()   { e.moveVertical(-1) }
func (e *Editor) MoveDown() { e.moveVertical(1) }

func (e *Editor) moveVertical(delta int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	line, col := e.positionLocked(e.cursor)
	lines := strings.Split(string(e.buf), "\n")
	target := line + delta
	if target < 0 || target >= len(lines) {
		return
	}
	if col > len([]rune(lines[target])) {
		col = len([]rune(lines[target]))
	}
	e.cursor = e.offsetLocked(target, col)
}

func (e *Editor) positionLocked(offset int) (line, col int) {
	for i := 0; i < offset && i < len(e.buf); i++ {
		if e.buf[i] == '\n' {
			line++
			col = 0
		} else {
			col++
		}
	}
	return line, col
}

func (e *Editor) offsetLocked(line, col int) int {
	offset := 0
	for l := 0; l < line; l++ {
		for offset < len(e.buf) && e.buf[offset] != '\n' {
			offset++
		}
		offset++ // the newline itself
	}
	return offset + col
}

// Render draws the buffer with highlights, the cursor, optional line
// numbers and the active-line tint, as the installed fragments dictate.
func (e *Editor) Render(th *theme.Theme) string {
	e.mu.Lock()
	buf := append([]rune(nil), e.buf...)
	cursor := e.cursor
	highlights := append([]pattern.SourceRange(nil), e.highlights...)
	flashing := time.Now().Before(e.flashUntil)
	lineNumbers := e.fragmentEnabled("lineNumbers")
	activeLine := e.fragmentEnabled("activeLineHighlight")
	cursorLine, _ := e.positionLocked(cursor)
	e.mu.Unlock()

	textStyle := th.Text()
	if flashing {
		textStyle = th.Flash()
	}

	var out strings.Builder
	line := 0
	byteOffset := 0 // highlight ranges are byte offsets
	lineStart := true
	for i := 0; i <= len(buf); i++ {
		if lineStart {
			if lineNumbers {
				out.WriteString(th.Gutter().Render(pad3(line+1)) + " ")
			}
			if activeLine && line == cursorLine {
				out.WriteString(th.Gutter().Render(">"))
			} else {
				out.WriteString(" ")
			}
			lineStart = false
		}

		// Cursor cell, inverted; at end of buffer it is a bare block.
		if i == cursor {
			if i == len(buf) || buf[i] == '\n' {
				out.WriteString(th.Highlight().Render(" "))
			} else {
				out.WriteString(th.Highlight().Render(string(buf[i])))
			}
			if i == len(buf) {
				break
			}
			if buf[i] == '\n' {
				out.WriteByte('\n')
				line++
				lineStart = true
				byteOffset++
				continue
			}
			byteOffset += len(string(buf[i]))
			continue
		}
		if i == len(buf) {
			break
		}

		r := buf[i]
		if r == '\n' {
			out.WriteByte('\n')
			line++
			lineStart = true
			byteOffset++
			continue
		}

		style := textStyle
		for _, h := range highlights {
			if byteOffset >= h.Start && byteOffset < h.End {
				style = th.Highlight()
				break
			}
		}
		out.WriteString(style.Render(string(r)))
		byteOffset += len(string(r))
	}
	return out.String()
}

func (e *Editor) fragmentEnabled(name string) bool {
	f, ok := e.fragments[name]
	return ok && f.Enabled
}

func pad3(n int) string {
	return fmt.Sprintf("%3d", n)
}
