// Package midiout renders playback as MIDI: a painter that watches the
// active hap set each frame, sending note-on when a hap enters it and
// note-off when it leaves.
package midiout

import (
	"fmt"
	"strings"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver

	"github.com/rjulian/strudel/debug"
	"github.com/rjulian/strudel/draw"
	"github.com/rjulian/strudel/pattern"
)

// General MIDI percussion notes for the common sample names. Unknown
// sounds fall back to the hap's own note number.
var gmNotes = map[string]uint8{
	"bd":  36, // Kick
	"sd":  38, // Snare
	"hh":  42, // Closed HH
	"oh":  46, // Open HH
	"lt":  41, // Low Tom
	"mt":  43, // Mid Tom
	"ht":  45, // High Tom
	"cr":  49, // Crash
	"rd":  51, // Ride
	"cp":  39, // Clap
	"rim": 37, // Rimshot
	"cb":  56, // Cowbell
}

// Output sends active haps to a MIDI port. Use its Painter with
// Session.AddPainter; keyed by hap identity, each event produces one
// note-on/note-off pair however many frames it spans.
type Output struct {
	send    func(gomidi.Message) error
	channel uint8

	mu       sync.Mutex
	sounding map[noteKey]uint8 // active note per hap
}

type noteKey struct {
	begin float64
	note  uint8
}

// Ports lists the names of the available MIDI output ports. Drivers
// can hang when the system MIDI service is wedged, so the scan is
// bounded by a timeout.
func Ports(timeout time.Duration) ([]string, error) {
	ch := make(chan []string, 1)
	go func() {
		var names []string
		for _, p := range gomidi.GetOutPorts() {
			names = append(names, p.String())
		}
		ch <- names
	}()

	select {
	case names := <-ch:
		return names, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("MIDI port scan timed out after %s", timeout)
	}
}

// Open connects to the first MIDI output port whose name contains
// portName (case-insensitive). An empty portName picks the first port.
func Open(portName string, channel uint8) (*Output, error) {
	outs := gomidi.GetOutPorts()
	if len(outs) == 0 {
		return nil, fmt.Errorf("no MIDI output ports available")
	}
	port := outs[0]
	if portName != "" {
		found := false
		for _, p := range outs {
			if strings.Contains(strings.ToLower(p.String()), strings.ToLower(portName)) {
				port = p
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("no MIDI output port matching %q", portName)
		}
	}

	send, err := gomidi.SendTo(port)
	if err != nil {
		return nil, fmt.Errorf("open MIDI port %s: %w", port, err)
	}
	debug.Log("midiout", "sending to %s channel %d", port, channel)
	return &Output{send: send, channel: channel, sounding: make(map[noteKey]uint8)}, nil
}

// Painter is the visual-callback adapter: frame in, notes out.
func (o *Output) Painter() draw.Painter {
	return func(f draw.Frame) {
		o.Frame(f.Active)
	}
}

// Frame reconciles the sounding notes against the active hap set.
func (o *Output) Frame(active []pattern.Hap) {
	o.mu.Lock()
	defer o.mu.Unlock()

	current := make(map[noteKey]uint8, len(active))
	for _, h := range active {
		key := noteKey{begin: h.WholeOrPart().Begin, note: noteFor(h.Value)}
		current[key] = velocityFor(h.Value)
	}

	// Note-off for haps that left the active set.
	for key := range o.sounding {
		if _, still := current[key]; !still {
			o.sendMsg(gomidi.NoteOff(o.channel, key.note))
			delete(o.sounding, key)
		}
	}
	// Note-on for haps that just entered it.
	for key, vel := range current {
		if _, already := o.sounding[key]; !already {
			o.sendMsg(gomidi.NoteOn(o.channel, key.note, vel))
			o.sounding[key] = vel
		}
	}
}

// Close silences everything still sounding.
func (o *Output) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for key := range o.sounding {
		o.sendMsg(gomidi.NoteOff(o.channel, key.note))
		delete(o.sounding, key)
	}
}

func (o *Output) sendMsg(msg gomidi.Message) {
	if err := o.send(msg); err != nil {
		debug.Log("midiout", "send failed: %v", err)
	}
}

func noteFor(v pattern.Value) uint8 {
	if v.Note != 0 {
		return v.Note
	}
	if n, ok := gmNotes[v.Sound]; ok {
		return n
	}
	return 60 // middle C for anything unrecognized
}

func velocityFor(v pattern.Value) uint8 {
	gain := v.Gain
	if gain <= 0 || gain > 1 {
		gain = 1
	}
	return uint8(gain * 100)
}
