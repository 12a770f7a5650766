package midiout

import (
	"testing"

	gomidi "gitlab.com/gomidi/midi/v2"

	"github.com/rjulian/strudel/pattern"
)

func newTestOutput() (*Output, *[]gomidi.Message) {
	var sent []gomidi.Message
	o := &Output{
		send:     func(m gomidi.Message) error { sent = append(sent, m); return nil },
		channel:  9,
		sounding: make(map[noteKey]uint8),
	}
	return o, &sent
}

func hapAt(begin, end float64, sound string) pattern.Hap {
	whole := pattern.Span{Begin: begin, End: end}
	return pattern.Hap{Whole: &whole, Part: whole, Value: pattern.Value{Sound: sound, Gain: 1}}
}

func TestFrameSendsOnePairPerHap(t *testing.T) {
	o, sent := newTestOutput()

	bd := hapAt(0, 0.5, "bd")
	o.Frame([]pattern.Hap{bd})
	o.Frame([]pattern.Hap{bd}) // still sounding: no duplicate note-on
	o.Frame(nil)               // left the active set: note-off

	if len(*sent) != 2 {
		t.Fatalf("sent %d messages, want 2 (one on, one off)", len(*sent))
	}
	var ch, key, vel uint8
	if !(*sent)[0].GetNoteOn(&ch, &key, &vel) {
		t.Fatalf("first message %v is not note-on", (*sent)[0])
	}
	if key != 36 || ch != 9 {
		t.Errorf("note-on key=%d ch=%d, want key=36 ch=9", key, ch)
	}
	if !(*sent)[1].GetNoteOff(&ch, &key, &vel) {
		t.Fatalf("second message %v is not note-off", (*sent)[1])
	}
	if key != 36 {
		t.Errorf("note-off key=%d, want 36", key)
	}
}

func TestConsecutiveHapsOfSameSoundRetrigger(t *testing.T) {
	o, sent := newTestOutput()

	o.Frame([]pattern.Hap{hapAt(0, 0.5, "hh")})
	o.Frame([]pattern.Hap{hapAt(0.5, 1, "hh")}) // new hap, same sound

	// off for the first, on for the second (order: offs before ons).
	if len(*sent) != 3 {
		t.Fatalf("sent %d messages, want 3", len(*sent))
	}
}

func TestCloseSilencesEverything(t *testing.T) {
	o, sent := newTestOutput()

	o.Frame([]pattern.Hap{hapAt(0, 1, "bd"), hapAt(0, 1, "sd")})
	o.Close()

	ons, offs := 0, 0
	for _, m := range *sent {
		var ch, key, vel uint8
		if m.GetNoteOn(&ch, &key, &vel) {
			ons++
		} else if m.GetNoteOff(&ch, &key, &vel) {
			offs++
		}
	}
	if ons != 2 || offs != 2 {
		t.Errorf("ons=%d offs=%d, want 2 and 2", ons, offs)
	}
}

func TestNoteFor(t *testing.T) {
	tests := []struct {
		value pattern.Value
		want  uint8
	}{
		{pattern.Value{Sound: "bd"}, 36},
		{pattern.Value{Sound: "bd", Note: 50}, 50},
		{pattern.Value{Sound: "mystery"}, 60},
	}
	for _, tt := range tests {
		if got := noteFor(tt.value); got != tt.want {
			t.Errorf("noteFor(%+v) = %d, want %d", tt.value, got, tt.want)
		}
	}
}
