// Package audio makes buzzer lines audible on a desktop host. Every level
// change is timestamped and replayed a fixed latency later through the
// system audio output, so the speaker hears the same square waves a
// piezo would.
package audio

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/icco/buzzer/internal/gpio"
)

const (
	sampleRate   = 44100
	channelCount = 2 // stereo
	bitDepth     = 2 // 16-bit
	frameSize    = channelCount * bitDepth

	// DefaultLatency is how far behind the lines the speaker runs.
	DefaultLatency = 120 * time.Millisecond
	defaultVolume  = 0.3

	// maxPending bounds the toggle log when nothing is reading it.
	maxPending = 1 << 16
)

type toggle struct {
	at   uint64 // microseconds
	line int
	high bool
}

// Renderer turns a log of timestamped line toggles into PCM. It implements
// io.Reader so oto can pull from it directly.
type Renderer struct {
	mu       sync.Mutex
	rate     uint64
	lines    int
	volume   float64
	recorded uint32 // last recorded level per line
	levels   uint32 // level per line at the render position
	pending  []toggle
	frame    uint64
}

// NewRenderer creates a renderer for n lines at rate frames per second.
// It panics for more than 32 lines.
func NewRenderer(n, rate int, volume float64) *Renderer {
	if n > 32 {
		panic("audio: at most 32 lines")
	}
	return &Renderer{
		rate:   uint64(rate), //nolint:gosec // positive sample rate
		lines:  max(n, 1),
		volume: volume,
	}
}

// Record logs a level change of line at the given time in microseconds.
// Repeated levels are ignored. Times must not go backwards; an earlier
// time is moved up to the previous entry.
func (r *Renderer) Record(at uint64, line int, high bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bit := uint32(1) << uint(line)
	if (r.recorded&bit != 0) == high {
		return
	}
	if high {
		r.recorded |= bit
	} else {
		r.recorded &^= bit
	}

	if n := len(r.pending); n > 0 && at < r.pending[n-1].at {
		at = r.pending[n-1].at
	}
	if len(r.pending) >= maxPending {
		r.apply(r.pending[0])
		r.pending = r.pending[1:]
	}
	r.pending = append(r.pending, toggle{at: at, line: line, high: high})
}

func (r *Renderer) apply(t toggle) {
	bit := uint32(1) << uint(t.line)
	if t.high {
		r.levels |= bit
	} else {
		r.levels &^= bit
	}
}

// Pending returns the number of toggles not yet rendered.
func (r *Renderer) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// SetVolume sets the master volume (0.0 - 1.0)
func (r *Renderer) SetVolume(vol float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.volume = min(max(vol, 0), 1)
}

// Read renders whole stereo frames: each high line adds an equal share of
// the volume.
func (r *Renderer) Read(buf []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frames := len(buf) / frameSize
	step := r.volume * 32767 / float64(r.lines)
	next := 0
	for i := 0; i < frames; i++ {
		now := r.frame * 1_000_000 / r.rate
		for next < len(r.pending) && r.pending[next].at <= now {
			r.apply(r.pending[next])
			next++
		}
		r.frame++

		high := 0
		for l := r.levels; l != 0; l &= l - 1 {
			high++
		}
		sample := uint16(int16(float64(high) * step))

		idx := i * frameSize
		binary.LittleEndian.PutUint16(buf[idx:], sample)
		binary.LittleEndian.PutUint16(buf[idx+2:], sample)
	}
	r.pending = append(r.pending[:0], r.pending[next:]...)
	return frames * frameSize, nil
}

// Monitor owns the oto context and hands out lines that feed its renderer.
type Monitor struct {
	otoCtx   *oto.Context
	player   *oto.Player
	renderer *Renderer
	lines    []gpio.Line
	start    time.Time
	latency  time.Duration
}

// NewMonitor opens the system audio output for n lines.
func NewMonitor(n int, latency time.Duration) (*Monitor, error) {
	if latency <= 0 {
		latency = DefaultLatency
	}
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channelCount,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   latency / 2,
	}

	otoCtx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-readyChan

	m := &Monitor{
		otoCtx:   otoCtx,
		renderer: NewRenderer(n, sampleRate, defaultVolume),
		latency:  latency,
	}
	m.lines = make([]gpio.Line, n)
	for i := range m.lines {
		m.lines[i] = &line{m: m, id: i}
	}

	m.player = otoCtx.NewPlayer(m.renderer)
	m.start = time.Now()
	m.player.Play()
	return m, nil
}

// Lines returns one audible output per voice.
func (m *Monitor) Lines() []gpio.Line {
	return m.lines
}

// Renderer exposes the mixer, mostly for volume control.
func (m *Monitor) Renderer() *Renderer {
	return m.renderer
}

func (m *Monitor) record(id int, high bool) {
	at := time.Since(m.start) + m.latency
	m.renderer.Record(uint64(at.Microseconds()), id, high) //nolint:gosec // monotonic, positive
}

// Close stops the audio stream.
func (m *Monitor) Close() error {
	// As of oto v3.4 the player needs no Close; pausing stops the reads.
	m.player.Pause()
	return nil
}

type line struct {
	m  *Monitor
	id int
}

func (l *line) High() { l.m.record(l.id, true) }
func (l *line) Low()  { l.m.record(l.id, false) }
