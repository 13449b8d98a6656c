// Package song holds the timing and signature state of the song being
// played. Meta events mutate it in place as they are dispatched.
package song

import (
	"errors"
	"fmt"
	"math"

	"github.com/icco/buzzer/internal/source"
)

const (
	// DefaultTempo is 120 BPM in microseconds per quarter note.
	DefaultTempo    = 500_000
	microsPerMinute = 60_000_000
)

// ErrZeroResolution is returned by New for a zero ticks-per-quarter header.
var ErrZeroResolution = errors.New("song: ticks per quarter note must be positive")

// KeySignature is the number of sharps (positive) or flats (negative) and
// the mode.
type KeySignature struct {
	Accidentals int8
	Minor       bool
}

func (k KeySignature) String() string {
	mode := "major"
	if k.Minor {
		mode = "minor"
	}
	switch {
	case k.Accidentals > 0:
		return fmt.Sprintf("%d sharp(s) %s", k.Accidentals, mode)
	case k.Accidentals < 0:
		return fmt.Sprintf("%d flat(s) %s", -int(k.Accidentals), mode)
	default:
		return "no accidentals " + mode
	}
}

// Metadata is the mutable timing state of a song.
type Metadata struct {
	ticksPerQuarter uint16
	tempo           uint32

	// TimeSignature is numerator, log2 denominator, MIDI clocks per
	// metronome click and notated 32nd notes per quarter.
	TimeSignature [4]uint8
	Key           KeySignature
}

// New creates metadata with the header resolution and the SMF defaults:
// 120 BPM, 4/4, C major.
func New(ticksPerQuarter uint16) (*Metadata, error) {
	if ticksPerQuarter == 0 {
		return nil, ErrZeroResolution
	}
	return &Metadata{
		ticksPerQuarter: ticksPerQuarter,
		tempo:           DefaultTempo,
		TimeSignature:   [4]uint8{4, 2, 24, 8},
	}, nil
}

// TicksPerQuarter returns the header resolution.
func (m *Metadata) TicksPerQuarter() uint16 {
	return m.ticksPerQuarter
}

// Tempo returns microseconds per quarter note.
func (m *Metadata) Tempo() uint32 {
	return m.tempo
}

// SetTempo replaces the tempo. A zero tempo is ignored.
func (m *Metadata) SetTempo(micros uint32) {
	if micros == 0 {
		return
	}
	m.tempo = micros
}

// BPM derives beats per minute from the tempo.
func (m *Metadata) BPM() uint16 {
	bpm := microsPerMinute / m.tempo
	if bpm > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(bpm)
}

// Micros converts a tick delta to microseconds at the current tempo.
func (m *Metadata) Micros(delta uint32) uint64 {
	return uint64(delta) * uint64(m.tempo) / uint64(m.ticksPerQuarter)
}

// Apply updates the metadata from a meta event and reports whether the
// event was one it tracks.
func (m *Metadata) Apply(ev source.Event) bool {
	switch ev.Kind {
	case source.Tempo:
		m.SetTempo(ev.Tempo)
	case source.TimeSignature:
		m.TimeSignature = ev.TimeSignature
	case source.KeySignature:
		m.Key = KeySignature{Accidentals: ev.Accidentals, Minor: ev.Minor}
	default:
		return false
	}
	return true
}

func (m *Metadata) String() string {
	return fmt.Sprintf("%d ticks/q, %dus/q (%d BPM), %d/%d, %s",
		m.ticksPerQuarter, m.tempo, m.BPM(),
		m.TimeSignature[0], 1<<m.TimeSignature[1], m.Key)
}
