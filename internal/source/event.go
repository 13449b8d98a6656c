// Package source adapts a Standard MIDI File into per-track restartable
// event iterators.
package source

import (
	"errors"
	"fmt"
	"io"
)

// Kind classifies a track event.
type Kind uint8

const (
	NoteOn Kind = iota
	NoteOff
	PolyAftertouch
	Controller
	ProgramChange
	ChannelAftertouch
	PitchBend
	Tempo
	TimeSignature
	KeySignature
	EndOfTrack
	TrackName
	InstrumentName
	Text
	Meta // any other meta event
	SysEx
	Escape
)

var kindNames = [...]string{
	NoteOn:            "NoteOn",
	NoteOff:           "NoteOff",
	PolyAftertouch:    "Aftertouch",
	Controller:        "Controller",
	ProgramChange:     "ProgramChange",
	ChannelAftertouch: "ChannelAftertouch",
	PitchBend:         "PitchBend",
	Tempo:             "Tempo",
	TimeSignature:     "TimeSignature",
	KeySignature:      "KeySignature",
	EndOfTrack:        "EndOfTrack",
	TrackName:         "TrackName",
	InstrumentName:    "InstrumentName",
	Text:              "Text",
	Meta:              "Meta",
	SysEx:             "SysEx",
	Escape:            "Escape",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// IsChannel reports whether the kind is a channel voice message.
func (k Kind) IsChannel() bool {
	return k <= PitchBend
}

// IsMeta reports whether the kind is a meta event.
func (k Kind) IsMeta() bool {
	return k >= Tempo && k <= Meta
}

// Event is one decoded track event. It is a flat value so iterating a
// track never allocates for channel messages; only the fields relevant to
// Kind are set.
type Event struct {
	Delta uint32
	Kind  Kind

	Channel  uint8
	Key      uint8
	Velocity uint8
	Program  uint8
	// Controller number for Controller; pressure for the aftertouch kinds.
	Controller uint8
	Value      uint8
	Bend       int16

	// Tempo in microseconds per quarter note.
	Tempo         uint32
	TimeSignature [4]uint8
	Accidentals   int8
	Minor         bool
	MetaType      uint8
	Text          string
}

func (e Event) String() string {
	switch e.Kind {
	case NoteOn:
		return fmt.Sprintf("+%d NoteOn ch%d key%d vel%d", e.Delta, e.Channel, e.Key, e.Velocity)
	case NoteOff:
		return fmt.Sprintf("+%d NoteOff ch%d key%d", e.Delta, e.Channel, e.Key)
	case ProgramChange:
		return fmt.Sprintf("+%d ProgramChange ch%d prog%d", e.Delta, e.Channel, e.Program)
	case Controller:
		return fmt.Sprintf("+%d Controller ch%d cc%d=%d", e.Delta, e.Channel, e.Controller, e.Value)
	case PitchBend:
		return fmt.Sprintf("+%d PitchBend ch%d %d", e.Delta, e.Channel, e.Bend)
	case Tempo:
		return fmt.Sprintf("+%d Tempo %dus/q", e.Delta, e.Tempo)
	case TimeSignature:
		return fmt.Sprintf("+%d TimeSignature %d/%d", e.Delta, e.TimeSignature[0], 1<<e.TimeSignature[1])
	case KeySignature:
		return fmt.Sprintf("+%d KeySignature %d minor=%v", e.Delta, e.Accidentals, e.Minor)
	case TrackName, InstrumentName, Text:
		return fmt.Sprintf("+%d %s %q", e.Delta, e.Kind, e.Text)
	default:
		return fmt.Sprintf("+%d %s", e.Delta, e.Kind)
	}
}

var (
	// ErrMalformed is returned by Iterator.Next for an event that cannot be
	// classified. It ends that track only.
	ErrMalformed = errors.New("source: malformed event")
	// ErrSMPTE is returned by Parse for timecode-based files.
	ErrSMPTE = errors.New("source: SMPTE timing is not supported")
	// ErrZeroResolution is returned by Parse when the header declares zero
	// ticks per quarter note.
	ErrZeroResolution = errors.New("source: zero ticks per quarter note")
)

// Iterator walks one track. Next returns io.EOF after the last event.
// Reset rewinds to the first event.
type Iterator interface {
	Next() (Event, error)
	Reset()
}

type sliceIter struct {
	events []Event
	pos    int
}

// FromEvents returns an Iterator over a fixed event list.
func FromEvents(events ...Event) Iterator {
	return &sliceIter{events: events}
}

func (it *sliceIter) Next() (Event, error) {
	if it.pos >= len(it.events) {
		return Event{}, io.EOF
	}
	ev := it.events[it.pos]
	it.pos++
	return ev, nil
}

func (it *sliceIter) Reset() {
	it.pos = 0
}

// Failing returns an Iterator that yields events and then ErrMalformed
// instead of io.EOF.
func Failing(events ...Event) Iterator {
	return &failingIter{sliceIter{events: events}}
}

type failingIter struct {
	sliceIter
}

func (it *failingIter) Next() (Event, error) {
	ev, err := it.sliceIter.Next()
	if errors.Is(err, io.EOF) {
		return Event{}, ErrMalformed
	}
	return ev, err
}
