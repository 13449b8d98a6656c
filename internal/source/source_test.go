package source

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"testing"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// writeSMF builds an in-memory file with one track per argument.
func writeSMF(t *testing.T, ppq uint16, tracks ...smf.Track) []byte {
	t.Helper()
	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(ppq)
	for i, tr := range tracks {
		if err := sm.Add(tr); err != nil {
			t.Fatalf("Error adding track %d: %v", i, err)
		}
	}
	var buf bytes.Buffer
	if _, err := sm.WriteTo(&buf); err != nil {
		t.Fatalf("Error writing MIDI: %v", err)
	}
	return buf.Bytes()
}

// drain reads an iterator to its end, failing on anything but io.EOF.
func drain(t *testing.T, it Iterator) []Event {
	t.Helper()
	var out []Event
	for {
		ev, err := it.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Unexpected error after %d events: %v", len(out), err)
		}
		out = append(out, ev)
	}
}

func only(events []Event, kinds ...Kind) []Event {
	var out []Event
	for _, ev := range events {
		for _, k := range kinds {
			if ev.Kind == k {
				out = append(out, ev)
				break
			}
		}
	}
	return out
}

func TestParseWrittenFile(t *testing.T) {
	var conductor smf.Track
	conductor.Add(0, smf.MetaMeter(3, 4))
	conductor.Add(0, smf.MetaTempo(120))
	conductor.Close(0)

	var notes smf.Track
	notes.Add(0, midi.ProgramChange(1, 52))
	notes.Add(0, midi.NoteOn(1, 60, 100))
	notes.Add(96, midi.NoteOff(1, 60))
	notes.Add(0, midi.NoteOn(1, 64, 0))
	notes.Add(10, midi.ControlChange(1, 7, 90))
	notes.Close(0)

	f, err := Parse(writeSMF(t, 96, conductor, notes))
	if err != nil {
		t.Fatalf("Error parsing: %v", err)
	}
	if f.TicksPerQuarter != 96 {
		t.Errorf("Expected 96 ticks per quarter, got %d", f.TicksPerQuarter)
	}
	if len(f.Tracks) != 2 {
		t.Fatalf("Expected 2 tracks, got %d", len(f.Tracks))
	}

	meta := only(drain(t, f.Tracks[0]), Tempo, TimeSignature)
	if len(meta) != 2 {
		t.Fatalf("Expected tempo and time signature, got %v", meta)
	}
	if meta[0].Kind != TimeSignature || meta[0].TimeSignature[0] != 3 || meta[0].TimeSignature[1] != 2 {
		t.Errorf("Expected 3/4 time signature first, got %v", meta[0])
	}
	if meta[1].Kind != Tempo || meta[1].Tempo != 500_000 {
		t.Errorf("Expected 500000us tempo, got %v", meta[1])
	}

	events := only(drain(t, f.Tracks[1]), ProgramChange, NoteOn, NoteOff, Controller)
	want := []struct {
		kind  Kind
		delta uint32
		key   uint8
	}{
		{ProgramChange, 0, 0},
		{NoteOn, 0, 60},
		{NoteOff, 96, 60},
		// NoteOn with zero velocity is a release.
		{NoteOff, 0, 64},
		{Controller, 10, 0},
	}
	if len(events) != len(want) {
		t.Fatalf("Expected %d channel events, got %d: %v", len(want), len(events), events)
	}
	for i, w := range want {
		ev := events[i]
		if ev.Kind != w.kind || ev.Delta != w.delta || ev.Channel != 1 {
			t.Errorf("Event %d: got %v, want %s +%d on ch1", i, ev, w.kind, w.delta)
		}
		if w.key != 0 && ev.Key != w.key {
			t.Errorf("Event %d: got key %d, want %d", i, ev.Key, w.key)
		}
	}
	if events[0].Program != 52 {
		t.Errorf("Expected program 52, got %d", events[0].Program)
	}
	if events[4].Controller != 7 || events[4].Value != 90 {
		t.Errorf("Expected cc7=90, got %v", events[4])
	}
}

func TestIteratorsRestart(t *testing.T) {
	var tr smf.Track
	tr.Add(0, midi.NoteOn(0, 60, 100))
	tr.Add(48, midi.NoteOff(0, 60))
	tr.Close(0)

	f, err := Parse(writeSMF(t, 96, tr))
	if err != nil {
		t.Fatalf("Error parsing: %v", err)
	}

	first := drain(t, f.Tracks[0])
	f.Rewind()
	second := drain(t, f.Tracks[0])
	if len(first) == 0 || len(first) != len(second) {
		t.Fatalf("Expected identical non-empty passes, got %d and %d events", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("Event %d differs after rewind: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestParseFirmwareSong(t *testing.T) {
	data, err := os.ReadFile("testdata/loop.mid")
	if err != nil {
		t.Fatalf("Error reading fixture: %v", err)
	}
	f, err := Parse(data)
	if err != nil {
		t.Fatalf("Error parsing fixture: %v", err)
	}
	if f.Format != 1 || len(f.Tracks) != 2 || f.TicksPerQuarter != 96 {
		t.Fatalf("Unexpected header: %s", f.Describe())
	}

	var tempo, sig *Event
	for _, ev := range drain(t, f.Tracks[0]) {
		switch ev.Kind {
		case Tempo:
			tempo = &ev
		case TimeSignature:
			sig = &ev
		}
	}
	if tempo == nil || tempo.Tempo != 400_000 {
		t.Errorf("Expected 400000us tempo, got %v", tempo)
	}
	if sig == nil || sig.TimeSignature != [4]uint8{8, 2, 24, 8} {
		t.Errorf("Expected 8/4 time signature, got %v", sig)
	}

	// Absolute ticks of the note events on the second track.
	var tick uint32
	var got []uint32
	var program uint8
	for _, ev := range drain(t, f.Tracks[1]) {
		tick += ev.Delta
		switch ev.Kind {
		case NoteOn, NoteOff:
			got = append(got, tick)
		case ProgramChange:
			program = ev.Program
		}
	}
	want := []uint32{0, 48, 144, 144, 192, 192}
	if len(got) != len(want) {
		t.Fatalf("Expected note ticks %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Note %d at tick %d, want %d", i, got[i], want[i])
		}
	}
	if program != 52 {
		t.Errorf("Expected program 52, got %d", program)
	}
}

func TestParseRejectsSMPTE(t *testing.T) {
	data := []byte{
		'M', 'T', 'h', 'd', 0, 0, 0, 6, 0, 0, 0, 1, 0xE7, 0x28,
		'M', 'T', 'r', 'k', 0, 0, 0, 4, 0x00, 0xFF, 0x2F, 0x00,
	}
	_, err := Parse(data)
	if !errors.Is(err, ErrSMPTE) {
		t.Errorf("Expected ErrSMPTE, got %v", err)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte("not a midi file")); err == nil {
		t.Error("Expected an error for non-MIDI data")
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want Event
	}{
		{"note on", []byte{0x92, 60, 90}, Event{Kind: NoteOn, Channel: 2, Key: 60, Velocity: 90}},
		{"note off", []byte{0x83, 61, 0}, Event{Kind: NoteOff, Channel: 3, Key: 61}},
		{"program", []byte{0xC4, 19}, Event{Kind: ProgramChange, Channel: 4, Program: 19}},
		{"controller", []byte{0xB0, 7, 100}, Event{Kind: Controller, Controller: 7, Value: 100}},
		{"poly aftertouch", []byte{0xA1, 60, 33}, Event{Kind: PolyAftertouch, Channel: 1, Key: 60, Controller: 33}},
		{"channel aftertouch", []byte{0xD5, 40}, Event{Kind: ChannelAftertouch, Channel: 5, Controller: 40}},
		{"tempo", []byte{0xFF, 0x51, 0x03, 0x07, 0xA1, 0x20}, Event{Kind: Tempo, MetaType: 0x51, Tempo: 500_000}},
		{"key", []byte{0xFF, 0x59, 0x02, 0xFD, 0x01}, Event{Kind: KeySignature, MetaType: 0x59, Accidentals: -3, Minor: true}},
		{"end of track", []byte{0xFF, 0x2F, 0x00}, Event{Kind: EndOfTrack, MetaType: 0x2F}},
		{"track name", []byte{0xFF, 0x03, 0x04, 'l', 'e', 'a', 'd'}, Event{Kind: TrackName, MetaType: 0x03, Text: "lead"}},
		{"marker", []byte{0xFF, 0x06, 0x01, 'A'}, Event{Kind: Meta, MetaType: 0x06}},
		{"sysex", []byte{0xF0, 0x7E, 0xF7}, Event{Kind: SysEx}},
	}

	for _, tt := range tests {
		got, err := Decode(tt.raw)
		if err != nil {
			t.Errorf("%s: unexpected error %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: got %+v, want %+v", tt.name, got, tt.want)
		}
	}
}

func TestDecodePitchBend(t *testing.T) {
	ev, err := Decode(midi.Pitchbend(6, 1000))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if ev.Kind != PitchBend || ev.Channel != 6 || ev.Bend != 1000 {
		t.Errorf("Expected PitchBend ch6 1000, got %+v", ev)
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, raw := range [][]byte{nil, {0xFF}, {0xFF, 0x51, 0x01, 0x07}} {
		if _, err := Decode(raw); !errors.Is(err, ErrMalformed) {
			t.Errorf("Decode(% X) error = %v, want ErrMalformed", raw, err)
		}
	}
}

func TestFailingIterator(t *testing.T) {
	it := Failing(Event{Kind: NoteOn})
	if _, err := it.Next(); err != nil {
		t.Fatalf("Unexpected error on first event: %v", err)
	}
	if _, err := it.Next(); !errors.Is(err, ErrMalformed) {
		t.Errorf("Expected ErrMalformed at the end, got %v", err)
	}
	it.Reset()
	if _, err := it.Next(); err != nil {
		t.Errorf("Expected reset to restart the iterator, got %v", err)
	}
}

// rawSMF assembles a format 1 file from hand-written track bodies.
func rawSMF(division uint16, tracks ...[]byte) []byte {
	out := []byte("MThd")
	out = binary.BigEndian.AppendUint32(out, 6)
	out = binary.BigEndian.AppendUint16(out, 1)
	out = binary.BigEndian.AppendUint16(out, uint16(len(tracks))) //nolint:gosec // test fixture
	out = binary.BigEndian.AppendUint16(out, division)
	for _, tr := range tracks {
		out = append(out, "MTrk"...)
		out = binary.BigEndian.AppendUint32(out, uint32(len(tr))) //nolint:gosec // test fixture
		out = append(out, tr...)
	}
	return out
}

// drainUntilError reads an iterator until it fails and returns the events
// before the failure.
func drainUntilError(t *testing.T, it Iterator) ([]Event, error) {
	t.Helper()
	var out []Event
	for i := 0; i < 1000; i++ {
		ev, err := it.Next()
		if err != nil {
			return out, err
		}
		out = append(out, ev)
	}
	t.Fatal("Iterator never ended")
	return nil, nil
}

func TestParseKeepsTracksBeforeCorruption(t *testing.T) {
	data, err := os.ReadFile("testdata/corrupt.mid")
	if err != nil {
		t.Fatalf("Error reading fixture: %v", err)
	}
	f, err := Parse(data)
	if err != nil {
		t.Fatalf("Expected the intact track to survive, got %v", err)
	}
	if len(f.Tracks) != 2 {
		t.Fatalf("Expected 2 tracks, got %d", len(f.Tracks))
	}

	good := drain(t, f.Tracks[0])
	if len(good) != 3 || good[0].Kind != NoteOn || good[1].Kind != NoteOff || good[1].Delta != 96 || good[2].Kind != EndOfTrack {
		t.Errorf("Expected NoteOn, NoteOff +96, EndOfTrack on track 0, got %v", good)
	}

	bad, err := drainUntilError(t, f.Tracks[1])
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("Expected ErrMalformed from track 1, got %v", err)
	}
	want := Event{Kind: NoteOn, Channel: 1, Key: 64, Velocity: 100}
	if len(bad) != 1 || bad[0] != want {
		t.Errorf("Expected %+v before the damage, got %v", want, bad)
	}

	f.Rewind()
	if again, _ := drainUntilError(t, f.Tracks[1]); len(again) != 1 {
		t.Errorf("Expected the damaged track to replay its prefix, got %v", again)
	}
}

func TestParseIsolatesCorruptTracks(t *testing.T) {
	intact := []byte{0x00, 0x90, 0x3C, 0x64, 0x60, 0x80, 0x3C, 0x00, 0x00, 0xFF, 0x2F, 0x00}

	tests := []struct {
		name   string
		track  []byte
		events int
	}{
		{"undefined status first", []byte{0x00, 0xF4, 0x00, 0xFF, 0x2F, 0x00}, 0},
		{"data byte without status", []byte{0x00, 0x40, 0x64, 0x00, 0xFF, 0x2F, 0x00}, 0},
		{"undefined status after note", []byte{0x00, 0x91, 0x40, 0x64, 0x10, 0xF4, 0x00, 0xFF, 0x2F, 0x00}, 1},
		{"truncated message", []byte{0x00, 0xC1, 0x05, 0x00, 0x91, 0x40}, 1},
		{"truncated meta", []byte{0x00, 0xFF, 0x03, 0x10, 'a'}, 0},
	}

	for _, tt := range tests {
		f, err := Parse(rawSMF(96, intact, tt.track))
		if err != nil {
			t.Errorf("%s: unexpected error %v", tt.name, err)
			continue
		}
		if len(f.Tracks) != 2 {
			t.Errorf("%s: expected 2 tracks, got %d", tt.name, len(f.Tracks))
			continue
		}
		if good := drain(t, f.Tracks[0]); len(only(good, NoteOn, NoteOff)) != 2 {
			t.Errorf("%s: expected the intact track's notes, got %v", tt.name, good)
		}
		events, err := drainUntilError(t, f.Tracks[1])
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("%s: expected ErrMalformed, got %v", tt.name, err)
		}
		if len(events) != tt.events {
			t.Errorf("%s: expected %d event(s) before the damage, got %v", tt.name, tt.events, events)
		}
	}
}

func TestParseHeaderErrorsStillFailFast(t *testing.T) {
	corrupt := []byte{0x00, 0xF4, 0x00, 0xFF, 0x2F, 0x00}

	if _, err := Parse(rawSMF(0xE728, corrupt)); !errors.Is(err, ErrSMPTE) {
		t.Errorf("Expected ErrSMPTE, got %v", err)
	}
	if _, err := Parse(rawSMF(0, corrupt)); !errors.Is(err, ErrZeroResolution) {
		t.Errorf("Expected ErrZeroResolution, got %v", err)
	}
	data := rawSMF(96, corrupt)
	data[9] = 7
	if _, err := Parse(data); err == nil {
		t.Error("Expected an unknown format to be rejected")
	}
}

func TestScanTrack(t *testing.T) {
	body := []byte{
		0x00, 0x90, 0x3C, 0x64,
		0x10, 0x3C, 0x00, // running status
		0x00, 0xC1, 0x05,
		0x81, 0x00, 0xFF, 0x51, 0x03, 0x07, 0xA1, 0x20,
		0x00, 0xF0, 0x02, 0x7E, 0xF7,
		0x00, 0xFF, 0x2F, 0x00,
		0x00, 0x90, 0x3C, 0x64, // after the end of track
	}
	tr, err := scanTrack(body)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	want := []struct {
		delta uint32
		kind  Kind
	}{
		{0, NoteOn}, {16, NoteOff}, {0, ProgramChange}, {128, Tempo}, {0, SysEx}, {0, EndOfTrack},
	}
	if len(tr) != len(want) {
		t.Fatalf("Expected %d events, got %d", len(want), len(tr))
	}
	for i, w := range want {
		ev, err := Decode(tr[i].Message)
		if err != nil {
			t.Errorf("Event %d: unexpected error %v", i, err)
			continue
		}
		if tr[i].Delta != w.delta || ev.Kind != w.kind {
			t.Errorf("Event %d: got +%d %s, want +%d %s", i, tr[i].Delta, ev.Kind, w.delta, w.kind)
		}
	}
}
