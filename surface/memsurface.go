package surface

import (
	"sync"

	"github.com/rjulian/strudel/pattern"
)

// MemSurface is the in-memory reference Surface. Tests drive it
// directly; the terminal UI wraps it and renders its state.
type MemSurface struct {
	mu         sync.Mutex
	text       string
	onEdit     func(text string, changed bool)
	applied    map[string]Fragment
	highlights []pattern.SourceRange
	flashes    int
}

func NewMemSurface() *MemSurface {
	return &MemSurface{applied: make(map[string]Fragment)}
}

func (m *MemSurface) SetText(text string) {
	m.mu.Lock()
	changed := m.text != text
	m.text = text
	fn := m.onEdit
	m.mu.Unlock()

	if fn != nil {
		fn(text, changed)
	}
}

func (m *MemSurface) Text() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text
}

func (m *MemSurface) OnEdit(fn func(text string, changed bool)) {
	m.mu.Lock()
	m.onEdit = fn
	m.mu.Unlock()
}

// Insert simulates the user typing at the end of the buffer.
func (m *MemSurface) Insert(s string) {
	m.mu.Lock()
	m.text += s
	text := m.text
	fn := m.onEdit
	m.mu.Unlock()

	if fn != nil {
		fn(text, len(s) > 0)
	}
}

// DeleteBack simulates backspace, removing up to n trailing bytes.
func (m *MemSurface) DeleteBack(n int) {
	m.mu.Lock()
	if n > len(m.text) {
		n = len(m.text)
	}
	m.text = m.text[:len(m.text)-n]
	text := m.text
	fn := m.onEdit
	m.mu.Unlock()

	if fn != nil {
		fn(text, n > 0)
	}
}

func (m *MemSurface) Apply(f Fragment) {
	m.mu.Lock()
	m.applied[f.Behavior] = f
	m.mu.Unlock()
}

// Applied returns the fragment last installed for a behavior.
func (m *MemSurface) Applied(name string) (Fragment, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.applied[name]
	return f, ok
}

func (m *MemSurface) Highlight(ranges []pattern.SourceRange) {
	m.mu.Lock()
	m.highlights = ranges
	m.mu.Unlock()
}

// Highlights returns the active highlight set.
func (m *MemSurface) Highlights() []pattern.SourceRange {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.highlights
}

func (m *MemSurface) Flash() {
	m.mu.Lock()
	m.flashes++
	m.mu.Unlock()
}

// Flashes returns how many evaluation acknowledgments were shown.
func (m *MemSurface) Flashes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flashes
}
