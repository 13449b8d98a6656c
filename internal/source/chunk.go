package source

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"gitlab.com/gomidi/midi/v2/smf"
)

const (
	chunkHeaderLen = 8
	headerDataLen  = 6
)

var errTruncated = errors.New("truncated event")

// header is the MThd chunk data.
type header struct {
	format   uint16
	tracks   uint16
	division uint16
}

// readHeader checks the MThd chunk and returns it with the offset of the
// first chunk after it.
func readHeader(data []byte) (header, int, error) {
	if len(data) < chunkHeaderLen+headerDataLen || string(data[:4]) != "MThd" {
		return header{}, 0, errors.New("missing MThd header")
	}
	size := binary.BigEndian.Uint32(data[4:8])
	if size < headerDataLen || uint64(size) > uint64(len(data)-chunkHeaderLen) {
		return header{}, 0, fmt.Errorf("bad MThd length %d", size)
	}
	h := header{
		format:   binary.BigEndian.Uint16(data[8:10]),
		tracks:   binary.BigEndian.Uint16(data[10:12]),
		division: binary.BigEndian.Uint16(data[12:14]),
	}
	if h.format > 2 {
		return header{}, 0, fmt.Errorf("unsupported SMF format %d", h.format)
	}
	return h, chunkHeaderLen + int(size), nil
}

// ppq validates the division word.
func (h header) ppq() (uint16, error) {
	if h.division&0x8000 != 0 {
		return 0, fmt.Errorf("%w: division %#04x", ErrSMPTE, h.division)
	}
	if h.division == 0 {
		return 0, ErrZeroResolution
	}
	return h.division, nil
}

// trackChunks returns the bodies of the MTrk chunks in order. A chunk
// whose length runs past the data is cut at the end of the data.
func trackChunks(data []byte, pos int) [][]byte {
	var out [][]byte
	for pos+chunkHeaderLen <= len(data) {
		id := string(data[pos : pos+4])
		end := uint64(pos+chunkHeaderLen) + uint64(binary.BigEndian.Uint32(data[pos+4:pos+8]))
		if end > uint64(len(data)) {
			end = uint64(len(data))
		}
		if id == "MTrk" {
			out = append(out, data[pos+chunkHeaderLen:end])
		}
		pos = int(end)
	}
	return out
}

// readSMF runs the gomidi reader, turning its panics on undefined status
// bytes into errors.
func readSMF(data []byte) (s *smf.SMF, err error) {
	defer func() {
		if r := recover(); r != nil {
			s, err = nil, fmt.Errorf("%w: %v", ErrMalformed, r)
		}
	}()
	return smf.ReadFrom(bytes.NewReader(data))
}

// parseTracks reads each track chunk on its own so that a corrupt track
// does not take the rest of the file with it. Every chunk is scanned first
// since gomidi reads past undefined status bytes and accepts a truncated
// last track. Clean chunks are then read by gomidi; the good prefix of a
// corrupt one is kept and its iterator ends with ErrMalformed.
func parseTracks(data []byte, h header, pos int) []Iterator {
	var tracks []Iterator
	for i, body := range trackChunks(data, pos) {
		scanned, err := scanTrack(body)
		if err != nil {
			tracks = append(tracks, &trackIter{
				track: scanned,
				err:   fmt.Errorf("track %d: %w: %v", i, ErrMalformed, err),
			})
			continue
		}
		s, err := readSMF(singleTrack(h, body))
		if err != nil || len(s.Tracks) != 1 {
			tracks = append(tracks, &trackIter{track: scanned})
			continue
		}
		tracks = append(tracks, &trackIter{track: s.Tracks[0]})
	}
	return tracks
}

// singleTrack wraps one track body in a format 0 file with the original
// division.
func singleTrack(h header, body []byte) []byte {
	out := make([]byte, 0, 2*chunkHeaderLen+headerDataLen+len(body))
	out = append(out, "MThd"...)
	out = binary.BigEndian.AppendUint32(out, headerDataLen)
	out = binary.BigEndian.AppendUint16(out, 0)
	out = binary.BigEndian.AppendUint16(out, 1)
	out = binary.BigEndian.AppendUint16(out, h.division)
	out = append(out, "MTrk"...)
	out = binary.BigEndian.AppendUint32(out, uint32(len(body))) //nolint:gosec // chunk length came from a uint32
	return append(out, body...)
}

// scanTrack walks a track body event by event. It returns the events read
// before the first error and stops at the end of track.
func scanTrack(body []byte) (smf.Track, error) {
	var (
		tr      smf.Track
		running byte
		pos     int
	)
	for pos < len(body) {
		delta, n, err := readVLQ(body[pos:])
		if err != nil {
			return tr, fmt.Errorf("delta at byte %d: %w", pos, err)
		}
		pos += n
		if pos >= len(body) {
			return tr, fmt.Errorf("event at byte %d: %w", pos, errTruncated)
		}

		status := body[pos]
		switch {
		case status == 0xFF:
			if pos+2 > len(body) {
				return tr, fmt.Errorf("meta at byte %d: %w", pos, errTruncated)
			}
			size, n, err := readVLQ(body[pos+2:])
			if err != nil {
				return tr, fmt.Errorf("meta length at byte %d: %w", pos, err)
			}
			end := pos + 2 + n + int(size)
			if end > len(body) {
				return tr, fmt.Errorf("meta at byte %d: %w", pos, errTruncated)
			}
			tr = append(tr, smf.Event{Delta: delta, Message: smf.Message(body[pos:end])})
			running = 0
			if body[pos+1] == metaEndOfTrack {
				return tr, nil
			}
			pos = end
		case status == 0xF0 || status == 0xF7:
			size, n, err := readVLQ(body[pos+1:])
			if err != nil {
				return tr, fmt.Errorf("sysex length at byte %d: %w", pos, err)
			}
			end := pos + 1 + n + int(size)
			if end > len(body) {
				return tr, fmt.Errorf("sysex at byte %d: %w", pos, errTruncated)
			}
			tr = append(tr, smf.Event{Delta: delta, Message: smf.Message(body[pos:end])})
			running = 0
			pos = end
		case status > 0xF0:
			return tr, fmt.Errorf("undefined status %#02x at byte %d", status, pos)
		default:
			if status < 0x80 {
				if running == 0 {
					return tr, fmt.Errorf("data byte %#02x without running status at byte %d", status, pos)
				}
				status = running
			} else {
				running = status
				pos++
			}
			size := 2
			if kind := status & 0xF0; kind == 0xC0 || kind == 0xD0 {
				size = 1
			}
			if pos+size > len(body) {
				return tr, fmt.Errorf("channel message at byte %d: %w", pos, errTruncated)
			}
			msg := append([]byte{status}, body[pos:pos+size]...)
			for _, b := range msg[1:] {
				if b >= 0x80 {
					return tr, fmt.Errorf("status byte %#02x inside channel message at byte %d", b, pos)
				}
			}
			tr = append(tr, smf.Event{Delta: delta, Message: smf.Message(msg)})
			pos += size
		}
	}
	return tr, nil
}

// readVLQ decodes a variable-length quantity of at most four bytes.
func readVLQ(b []byte) (uint32, int, error) {
	var v uint32
	for i := 0; i < 4; i++ {
		if i >= len(b) {
			return 0, 0, errTruncated
		}
		v = v<<7 | uint32(b[i]&0x7F)
		if b[i]&0x80 == 0 {
			return v, i + 1, nil
		}
	}
	return 0, 0, errors.New("variable-length quantity longer than four bytes")
}
