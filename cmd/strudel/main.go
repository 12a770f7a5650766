package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rjulian/strudel/coord"
	"github.com/rjulian/strudel/debug"
	"github.com/rjulian/strudel/midiout"
	"github.com/rjulian/strudel/pattern"
	"github.com/rjulian/strudel/repl"
	"github.com/rjulian/strudel/settings"
	"github.com/rjulian/strudel/theme"
	"github.com/rjulian/strudel/tui"
)

const initialCode = `// ctrl+enter to evaluate, ctrl+. to stop
bd sd bd sd
hh*8`

func main() {
	var (
		serveAddr = flag.String("serve", "", "run a collaboration relay on this address and exit (e.g. :8080)")
		relayURL  = flag.String("relay", "", "connect to a collaboration relay (e.g. ws://host:8080/bus)")
		midiPort  = flag.String("midi", "", "MIDI output port name for playback")
		listMIDI  = flag.Bool("list-midi", false, "list MIDI output ports and exit")
		sqlitePth = flag.String("sqlite", "", "persist settings in this SQLite file instead of JSON")
		gplPath   = flag.String("palette", "", "load colors from a GIMP palette file instead of the theme setting")
		debugLog  = flag.Bool("debug", false, "write diagnostics to ~/.config/strudel/debug.log")
	)
	flag.Parse()

	if *debugLog {
		if err := debug.Enable(); err != nil {
			fmt.Fprintf(os.Stderr, "debug log: %v\n", err)
		}
		defer debug.Disable()
	}

	if *serveAddr != "" {
		runRelay(*serveAddr)
		return
	}

	if *listMIDI {
		names, err := midiout.Ports(3 * time.Second)
		if err != nil {
			fmt.Fprintf(os.Stderr, "midi: %v\n", err)
			os.Exit(1)
		}
		if len(names) == 0 {
			fmt.Println("no MIDI output ports")
			return
		}
		for i, name := range names {
			fmt.Printf("%d: %s\n", i, name)
		}
		return
	}

	// Settings store
	var store settings.Store
	if *sqlitePth != "" {
		s, err := settings.OpenSQLiteStore(*sqlitePth)
		if err != nil {
			fmt.Fprintf(os.Stderr, "settings: %v\n", err)
			os.Exit(1)
		}
		defer s.Close()
		store = s
	} else {
		s, err := settings.DefaultFileStore()
		if err != nil {
			fmt.Fprintf(os.Stderr, "settings: %v\n", err)
			os.Exit(1)
		}
		store = s
	}

	// Coordination bus, remote when a relay is given
	var bus coord.Bus = coord.NewMemoryBus()
	if *relayURL != "" {
		ws, err := coord.DialWSBus(*relayURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "relay: %v\n", err)
			os.Exit(1)
		}
		defer ws.Close()
		bus = ws
	}

	engine := pattern.NewMiniEngine(0.5)
	editor := tui.NewEditor()

	session := repl.New(repl.Config{
		Engine:      engine,
		Surface:     editor,
		Bus:         bus,
		Store:       store,
		InitialCode: initialCode,
	})

	// MIDI output hangs off the draw loop as a standing painter.
	if *midiPort != "" {
		out, err := midiout.Open(*midiPort, 0)
		if err != nil {
			fmt.Fprintf(os.Stderr, "midi: %v\n", err)
			os.Exit(1)
		}
		defer out.Close()

		// Painters are cleared on every evaluation, so reinstall after each.
		session.AddPainter(out.Painter())
		engine.AfterEval(func(*pattern.EvalResult) {
			session.AddPainter(out.Painter())
		})
	}

	var th *theme.Theme
	if *gplPath != "" {
		p, err := theme.LoadGPL(*gplPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "palette: %v\n", err)
			os.Exit(1)
		}
		th = theme.FromPalette(p)
	} else {
		themeName, _ := session.Setting("theme").(string)
		th = theme.New(themeName)
	}

	m := tui.NewModel(session, editor, th)
	p := tea.NewProgram(m, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func runRelay(addr string) {
	relay := coord.NewRelay()
	mux := http.NewServeMux()
	mux.Handle("/bus", relay)

	fmt.Printf("strudel relay listening on %s\n", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		fmt.Fprintf(os.Stderr, "relay: %v\n", err)
		os.Exit(1)
	}
}
