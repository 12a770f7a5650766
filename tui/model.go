package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rjulian/strudel/repl"
	"github.com/rjulian/strudel/theme"
)

// framePeriod paces the repaint tick to the clock's frame rate.
const framePeriod = time.Second / 30

type Model struct {
	Session  *repl.Session
	Editor   *Editor
	Theme    *theme.Theme
	quitting bool
	lastErr  string
	width    int
	height   int
}

type FrameMsg time.Time

type ErrMsg struct{ Err error }

func NewModel(session *repl.Session, editor *Editor, th *theme.Theme) Model {
	return Model{
		Session: session,
		Editor:  editor,
		Theme:   th,
	}
}

func ListenForErrors(session *repl.Session) tea.Cmd {
	return func() tea.Msg {
		err, ok := <-session.Errors()
		if !ok {
			return nil
		}
		return ErrMsg{Err: err}
	}
}

func tick() tea.Cmd {
	return tea.Tick(framePeriod, func(t time.Time) tea.Msg {
		return FrameMsg(t)
	})
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		ListenForErrors(m.Session),
		tick(),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		key := msg.String()

		// Evaluate and stop chords outrank every editing binding.
		if m.Session.HandleKey(key) {
			m.lastErr = ""
			return m, nil
		}

		switch key {
		case "ctrl+c":
			m.quitting = true
			m.Session.Clear()
			return m, tea.Quit

		case "enter":
			m.Editor.Newline()

		case "backspace":
			m.Editor.Backspace()

		case "left":
			m.Editor.MoveLeft()

		case "right":
			m.Editor.MoveRight()

		case "up":
			m.Editor.MoveUp()

		case "down":
			m.Editor.MoveDown()

		case "tab":
			m.Editor.InsertRune(' ')
			m.Editor.InsertRune(' ')

		default:
			if len(msg.Runes) == 1 {
				m.Editor.InsertRune(msg.Runes[0])
			} else if key == "space" {
				m.Editor.InsertRune(' ')
			}
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height

	case FrameMsg:
		return m, tick()

	case ErrMsg:
		if msg.Err != nil {
			m.lastErr = msg.Err.Error()
		}
		return m, ListenForErrors(m.Session)
	}

	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	playState := "IDLE"
	if m.Session.Playing() {
		playState = "PLAY"
	}

	header := m.Theme.Status().Render(fmt.Sprintf(" strudel  %s  %.2fcps ", playState, m.Session.CPS()))
	help := m.Theme.Gutter().Render("ctrl+enter:evaluate  ctrl+.:stop  ctrl+c:quit")

	var out strings.Builder
	out.WriteString(header)
	out.WriteString("\n\n")
	out.WriteString(m.Editor.Render(m.Theme))
	out.WriteString("\n\n")
	out.WriteString(help)

	if m.lastErr != "" {
		out.WriteString("\n")
		out.WriteString(m.Theme.ErrLine().Render(m.lastErr))
	}

	return out.String()
}
