package source

import (
	"fmt"
	"io"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// Meta event type bytes.
const (
	metaText           = 0x01
	metaTrackName      = 0x03
	metaInstrumentName = 0x04
	metaEndOfTrack     = 0x2F
	metaTempo          = 0x51
	metaTimeSignature  = 0x58
	metaKeySignature   = 0x59
)

// File is a parsed song: its header and one iterator per track.
type File struct {
	Format          uint16
	TicksPerQuarter uint16
	Tracks          []Iterator
}

// Parse reads a Standard MIDI File from memory. Files with SMPTE timing are
// rejected since their ticks cannot be converted through a tempo. Tracks
// are read one by one: a corrupt track yields the events before the damage
// and then ErrMalformed while the other tracks stay intact.
func Parse(data []byte) (*File, error) {
	h, pos, err := readHeader(data)
	if err != nil {
		return nil, fmt.Errorf("error reading MIDI file: %w", err)
	}
	ppq, err := h.ppq()
	if err != nil {
		return nil, err
	}

	tracks := parseTracks(data, h, pos)
	if len(tracks) == 0 && h.tracks > 0 {
		return nil, fmt.Errorf("error reading MIDI file: %d track(s) declared, none found", h.tracks)
	}
	return &File{Format: h.format, TicksPerQuarter: ppq, Tracks: tracks}, nil
}

// Describe renders the header for diagnostics.
func (f *File) Describe() string {
	return fmt.Sprintf("format %d, %d track(s), %d ticks/quarter", f.Format, len(f.Tracks), f.TicksPerQuarter)
}

// Rewind resets every track iterator.
func (f *File) Rewind() {
	for _, it := range f.Tracks {
		it.Reset()
	}
}

// trackIter walks a decoded track. A track cut short by corruption carries
// the error to return in place of io.EOF.
type trackIter struct {
	track smf.Track
	pos   int
	err   error
}

func (it *trackIter) Next() (Event, error) {
	if it.pos >= len(it.track) {
		if it.err != nil {
			return Event{}, it.err
		}
		return Event{}, io.EOF
	}
	ev := it.track[it.pos]
	it.pos++
	out, err := Decode([]byte(ev.Message))
	if err != nil {
		return Event{}, fmt.Errorf("event %d: %w", it.pos-1, err)
	}
	out.Delta = ev.Delta
	return out, nil
}

func (it *trackIter) Reset() {
	it.pos = 0
}

// Decode classifies one raw track message. The returned event has no delta.
func Decode(raw []byte) (Event, error) {
	if len(raw) == 0 {
		return Event{}, ErrMalformed
	}

	switch raw[0] {
	case 0xFF:
		return decodeMeta(raw)
	case 0xF0:
		return Event{Kind: SysEx}, nil
	case 0xF7:
		return Event{Kind: Escape}, nil
	}

	msg := midi.Message(raw)
	var ev Event
	switch {
	case msg.GetNoteStart(&ev.Channel, &ev.Key, &ev.Velocity):
		ev.Kind = NoteOn
	case msg.GetNoteEnd(&ev.Channel, &ev.Key):
		ev.Kind = NoteOff
	case msg.GetProgramChange(&ev.Channel, &ev.Program):
		ev.Kind = ProgramChange
	case msg.GetControlChange(&ev.Channel, &ev.Controller, &ev.Value):
		ev.Kind = Controller
	case msg.GetPolyAfterTouch(&ev.Channel, &ev.Key, &ev.Controller):
		ev.Kind = PolyAftertouch
	case msg.GetAfterTouch(&ev.Channel, &ev.Controller):
		ev.Kind = ChannelAftertouch
	default:
		var abs uint16
		if msg.GetPitchBend(&ev.Channel, &ev.Bend, &abs) {
			ev.Kind = PitchBend
			return ev, nil
		}
		return Event{}, fmt.Errorf("%w: % X", ErrMalformed, raw)
	}
	return ev, nil
}

func decodeMeta(raw []byte) (Event, error) {
	if len(raw) < 2 {
		return Event{}, fmt.Errorf("%w: short meta event", ErrMalformed)
	}
	ev := Event{Kind: Meta, MetaType: raw[1]}
	data := metaPayload(raw[2:])

	switch raw[1] {
	case metaTempo:
		if len(data) < 3 {
			return Event{}, fmt.Errorf("%w: tempo payload %d bytes", ErrMalformed, len(data))
		}
		ev.Kind = Tempo
		ev.Tempo = uint32(data[0])<<16 | uint32(data[1])<<8 | uint32(data[2])
	case metaTimeSignature:
		if len(data) < 4 {
			return Event{}, fmt.Errorf("%w: time signature payload %d bytes", ErrMalformed, len(data))
		}
		ev.Kind = TimeSignature
		copy(ev.TimeSignature[:], data[:4])
	case metaKeySignature:
		if len(data) < 2 {
			return Event{}, fmt.Errorf("%w: key signature payload %d bytes", ErrMalformed, len(data))
		}
		ev.Kind = KeySignature
		ev.Accidentals = int8(data[0]) //nolint:gosec // two's complement by definition
		ev.Minor = data[1] != 0
	case metaEndOfTrack:
		ev.Kind = EndOfTrack
	case metaTrackName:
		ev.Kind = TrackName
		ev.Text = string(data)
	case metaInstrumentName:
		ev.Kind = InstrumentName
		ev.Text = string(data)
	case metaText:
		ev.Kind = Text
		ev.Text = string(data)
	}
	return ev, nil
}

// metaPayload strips the variable-length size prefix from a meta body. When
// the prefix does not match the remaining length the body is returned as is.
func metaPayload(body []byte) []byte {
	var n uint32
	for i := 0; i < len(body) && i < 4; i++ {
		n = n<<7 | uint32(body[i]&0x7F)
		if body[i]&0x80 == 0 {
			if rest := body[i+1:]; uint32(len(rest)) == n { //nolint:gosec // len is small
				return rest
			}
			break
		}
	}
	return body
}
