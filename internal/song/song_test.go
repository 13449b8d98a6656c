package song

import (
	"errors"
	"testing"

	"github.com/icco/buzzer/internal/source"
)

func TestNewDefaults(t *testing.T) {
	m, err := New(96)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if m.Tempo() != DefaultTempo || m.BPM() != 120 {
		t.Errorf("Expected 120 BPM default, got %dus (%d BPM)", m.Tempo(), m.BPM())
	}
	if m.TimeSignature != [4]uint8{4, 2, 24, 8} {
		t.Errorf("Expected 4/4 default, got %v", m.TimeSignature)
	}
	if m.Key != (KeySignature{}) {
		t.Errorf("Expected C major default, got %v", m.Key)
	}
}

func TestNewRejectsZeroResolution(t *testing.T) {
	if _, err := New(0); !errors.Is(err, ErrZeroResolution) {
		t.Errorf("Expected ErrZeroResolution, got %v", err)
	}
}

func TestMicros(t *testing.T) {
	tests := []struct {
		ppq   uint16
		tempo uint32
		delta uint32
		want  uint64
	}{
		{96, 500_000, 96, 500_000},
		{96, 500_000, 48, 250_000},
		{480, 400_000, 120, 100_000},
		{1, 500_000, 0, 0},
		// 2^16 ticks at the maximum 24-bit tempo needs 64-bit headroom.
		{1, 0xFFFFFF, 0xFFFF, 0xFFFF * 0xFFFFFF},
	}

	for _, tt := range tests {
		m, _ := New(tt.ppq)
		m.SetTempo(tt.tempo)
		if got := m.Micros(tt.delta); got != tt.want {
			t.Errorf("Micros(%d) at %dus/q, %d ppq = %d, want %d", tt.delta, tt.tempo, tt.ppq, got, tt.want)
		}
	}
}

func TestApplyIsImmediate(t *testing.T) {
	m, _ := New(96)
	before := m.Micros(96)

	if !m.Apply(source.Event{Kind: source.Tempo, Tempo: 250_000}) {
		t.Fatal("Expected tempo event to be applied")
	}
	if after := m.Micros(96); after != 250_000 || after == before {
		t.Errorf("Expected next conversion to use the new tempo, got %d", after)
	}
	if m.BPM() != 240 {
		t.Errorf("Expected 240 BPM, got %d", m.BPM())
	}

	m.Apply(source.Event{Kind: source.TimeSignature, TimeSignature: [4]uint8{6, 3, 36, 8}})
	if m.TimeSignature != [4]uint8{6, 3, 36, 8} {
		t.Errorf("Expected 6/8, got %v", m.TimeSignature)
	}

	m.Apply(source.Event{Kind: source.KeySignature, Accidentals: -2, Minor: true})
	if m.Key != (KeySignature{Accidentals: -2, Minor: true}) {
		t.Errorf("Expected 2 flats minor, got %v", m.Key)
	}

	if m.Apply(source.Event{Kind: source.NoteOn}) {
		t.Error("Expected NoteOn to be ignored")
	}
}

func TestZeroTempoIgnored(t *testing.T) {
	m, _ := New(96)
	m.SetTempo(0)
	if m.Tempo() != DefaultTempo {
		t.Errorf("Expected zero tempo to be ignored, got %d", m.Tempo())
	}
}
