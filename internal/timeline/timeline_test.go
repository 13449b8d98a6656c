package timeline

import (
	"bytes"
	"log"
	"math/rand"
	"strings"
	"testing"

	"github.com/icco/buzzer/internal/source"
)

// track builds an iterator of NoteOn events keyed by their position so
// tests can tell events apart.
func track(deltas ...uint32) source.Iterator {
	events := make([]source.Event, len(deltas))
	for i, d := range deltas {
		events[i] = source.Event{Delta: d, Kind: source.NoteOn, Key: uint8(i)} //nolint:gosec // small fixture
	}
	return source.FromEvents(events...)
}

type hit struct {
	track int
	tick  uint64
	key   uint8
}

func collect(m *Merger) []hit {
	var out []hit
	for {
		s, ok := m.Next()
		if !ok {
			return out
		}
		out = append(out, hit{s.Track, s.Tick, s.Event.Key})
	}
}

func TestMergeOrdering(t *testing.T) {
	m := New([]source.Iterator{track(0, 10), track(5, 0)}, nil)

	got := collect(m)
	want := []hit{
		{0, 0, 0},
		{1, 5, 0},
		{1, 5, 1},
		{0, 10, 1},
	}
	if len(got) != len(want) {
		t.Fatalf("Expected %d steps, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Step %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
	if !m.Done() {
		t.Error("Expected merger to be done")
	}
}

func TestTiesGoToLowestTrack(t *testing.T) {
	m := New([]source.Iterator{track(7), track(7), track(0, 7)}, nil)

	got := collect(m)
	want := []hit{
		{2, 0, 0},
		{0, 7, 0},
		{1, 7, 0},
		{2, 7, 1},
	}
	for i := range want {
		if i >= len(got) || got[i] != want[i] {
			t.Fatalf("Expected %v, got %v", want, got)
		}
	}
}

func TestZeroDeltasDrainBeforeTimeAdvances(t *testing.T) {
	m := New([]source.Iterator{track(3, 3), track(0, 0, 0, 4)}, nil)

	var ticks []uint64
	var tracks []int
	for {
		s, ok := m.Next()
		if !ok {
			break
		}
		ticks = append(ticks, s.Tick)
		tracks = append(tracks, s.Track)
	}
	wantTicks := []uint64{0, 0, 0, 3, 4, 6}
	wantTracks := []int{1, 1, 1, 0, 1, 0}
	for i := range wantTicks {
		if ticks[i] != wantTicks[i] || tracks[i] != wantTracks[i] {
			t.Fatalf("Expected ticks %v on tracks %v, got %v on %v", wantTicks, wantTracks, ticks, tracks)
		}
	}
}

func TestStepDeltaIsRelativeToPreviousStep(t *testing.T) {
	m := New([]source.Iterator{track(10, 10), track(15)}, nil)

	var deltas []uint32
	for {
		s, ok := m.Next()
		if !ok {
			break
		}
		deltas = append(deltas, s.Delta)
	}
	want := []uint32{10, 5, 5}
	for i := range want {
		if i >= len(deltas) || deltas[i] != want[i] {
			t.Fatalf("Expected deltas %v, got %v", want, deltas)
		}
	}
}

func TestRandomMergeIsOrdered(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		n := 1 + rng.Intn(6)
		iters := make([]source.Iterator, n)
		total := 0
		abs := make([][]uint64, n)
		for i := range iters {
			count := rng.Intn(12)
			deltas := make([]uint32, count)
			var at uint64
			for j := range deltas {
				if rng.Intn(3) > 0 {
					deltas[j] = uint32(rng.Intn(50)) //nolint:gosec // small
				}
				at += uint64(deltas[j])
				abs[i] = append(abs[i], at)
			}
			iters[i] = track(deltas...)
			total += count
		}

		got := collect(New(iters, nil))
		if len(got) != total {
			t.Fatalf("Round %d: expected %d events, got %d", round, total, len(got))
		}
		next := make([]int, n)
		for i, h := range got {
			if h.tick != abs[h.track][next[h.track]] {
				t.Fatalf("Round %d: track %d event %d at tick %d, want %d",
					round, h.track, next[h.track], h.tick, abs[h.track][next[h.track]])
			}
			next[h.track]++
			if i == 0 {
				continue
			}
			prev := got[i-1]
			if h.tick < prev.tick {
				t.Fatalf("Round %d: tick went backwards at step %d: %v then %v", round, i, prev, h)
			}
			if h.tick == prev.tick && h.track < prev.track {
				t.Fatalf("Round %d: track %d fired after track %d at tick %d", round, h.track, prev.track, h.tick)
			}
		}
	}
}

func TestMalformedTrackStopsOnlyThatTrack(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)

	bad := source.Failing(
		source.Event{Delta: 0, Kind: source.NoteOn, Key: 1},
	)
	m := New([]source.Iterator{bad, track(5, 5)}, logger)

	got := collect(m)
	if len(got) != 3 {
		t.Fatalf("Expected 1 event from the bad track and 2 from the good one, got %v", got)
	}
	if got[0].track != 0 || got[1].track != 1 || got[2].track != 1 {
		t.Errorf("Unexpected order: %v", got)
	}
	if !strings.Contains(buf.String(), "track 0") {
		t.Errorf("Expected the corrupt track to be logged, got %q", buf.String())
	}
}

func TestEmptyTracks(t *testing.T) {
	m := New([]source.Iterator{track(), track()}, nil)
	if !m.Done() {
		t.Error("Expected merger over empty tracks to be done")
	}
	if _, ok := m.Next(); ok {
		t.Error("Expected no steps")
	}

	if _, ok := New(nil, nil).Next(); ok {
		t.Error("Expected no steps without tracks")
	}
}

func TestReset(t *testing.T) {
	m := New([]source.Iterator{track(0, 10), track(5, 0)}, nil)
	first := collect(m)
	m.Reset()
	if m.Tick() != 0 || m.Live() != 2 {
		t.Fatalf("Expected reset to tick 0 with 2 live tracks, got tick %d and %d live", m.Tick(), m.Live())
	}
	second := collect(m)
	if len(first) != len(second) {
		t.Fatalf("Expected %d steps after reset, got %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("Step %d differs after reset: %v vs %v", i, first[i], second[i])
		}
	}
}
