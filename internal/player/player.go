// Package player schedules a parsed song onto a voice pool: it merges the
// tracks, waits out each delta while the voices oscillate, and dispatches
// the events.
package player

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/icco/buzzer/internal/clock"
	"github.com/icco/buzzer/internal/instrument"
	"github.com/icco/buzzer/internal/song"
	"github.com/icco/buzzer/internal/source"
	"github.com/icco/buzzer/internal/timeline"
	"github.com/icco/buzzer/internal/voice"
)

// DefaultTickMicros is the scheduler step between voice updates.
const DefaultTickMicros = 20

// liveResolution is the resolution assumed for events that arrive without
// a file header, as in live mode.
const liveResolution = 480

// State is the playback phase.
type State int

const (
	Loading State = iota
	Playing
	Draining
	Idle
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Playing:
		return "playing"
	case Draining:
		return "draining"
	case Idle:
		return "idle"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// TraceFunc observes every dispatched step. v is the voice a NoteOn or
// NoteOff touched, if any, and err the allocation error for dropped notes.
type TraceFunc func(step timeline.Step, v *voice.Voice, err error)

// Options tune the scheduler.
type Options struct {
	// TickMicros is the granularity of the wait loop. Zero means
	// DefaultTickMicros.
	TickMicros uint32
	// Calibration scales every wait to compensate for loop overhead.
	Calibration clock.Calibration
	// EndOnFirstTrackEnd stops playback at the first EndOfTrack instead of
	// when every track is exhausted.
	EndOnFirstTrackEnd bool
	// Verbose logs messages that are recognized but not implemented.
	Verbose bool
	Trace   TraceFunc
}

// Player drives one pool from a song or from live events.
type Player struct {
	pool   *voice.Pool
	delay  clock.Delay
	opts   Options
	logger *log.Logger

	mu       sync.Mutex
	state    State
	meta     *song.Metadata
	channels [16]instrument.Profile
}

// New creates an idle player. A nil logger discards messages.
func New(pool *voice.Pool, delay clock.Delay, opts Options, logger *log.Logger) *Player {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if opts.TickMicros == 0 {
		opts.TickMicros = DefaultTickMicros
	}
	if opts.Calibration.Validate() != nil {
		opts.Calibration = clock.Identity
	}
	meta, _ := song.New(liveResolution)
	p := &Player{
		pool:   pool,
		delay:  delay,
		opts:   opts,
		logger: logger,
		state:  Idle,
		meta:   meta,
	}
	p.resetChannels()
	return p
}

func (p *Player) resetChannels() {
	for i := range p.channels {
		p.channels[i] = instrument.Default()
	}
}

// Pool returns the driven voice pool.
func (p *Player) Pool() *voice.Pool { return p.pool }

// State returns the current playback phase.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Player) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Metadata returns the timing state of the current or last song.
func (p *Player) Metadata() *song.Metadata {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.meta
}

// Channel returns the instrument currently assigned to a channel.
func (p *Player) Channel(ch uint8) instrument.Profile {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channels[ch&0x0F]
}

// Play runs a song to completion or until ctx is done. Every voice is
// silenced before it returns.
func (p *Player) Play(ctx context.Context, f *source.File) error {
	p.setState(Loading)
	meta, err := song.New(f.TicksPerQuarter)
	if err != nil {
		p.setState(Idle)
		return fmt.Errorf("error loading song: %w", err)
	}
	p.mu.Lock()
	p.meta = meta
	p.resetChannels()
	p.mu.Unlock()

	merger := timeline.New(f.Tracks, p.logger)
	p.logger.Printf("playing %s", f.Describe())

	p.setState(Playing)
	err = p.run(ctx, merger)

	p.setState(Draining)
	p.pool.ResetAll()
	p.setState(Idle)
	p.logger.Printf("stopped at tick %d", merger.Tick())
	return err
}

func (p *Player) run(ctx context.Context, merger *timeline.Merger) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		step, ok := merger.Next()
		if !ok {
			return nil
		}
		if step.Delta > 0 {
			if err := p.wait(ctx, p.Metadata().Micros(step.Delta)); err != nil {
				return err
			}
		}

		v, err := p.Dispatch(step.Event)
		if p.opts.Trace != nil {
			p.opts.Trace(step, v, err)
		}
		if step.Event.Kind == source.EndOfTrack {
			p.logger.Printf("track %d ended at tick %d", step.Track, step.Tick)
			if p.opts.EndOnFirstTrackEnd {
				return nil
			}
		}
	}
}

// wait lets micros of song time pass in TickMicros steps, advancing every
// voice and reclaiming expired ones as it goes.
func (p *Player) wait(ctx context.Context, micros uint64) error {
	remaining := p.opts.Calibration.Scale(micros)
	tick := uint64(p.opts.TickMicros)
	for remaining > 0 {
		step := min(remaining, tick)
		if p.pool.Tick(uint32(step)) { //nolint:gosec // bounded by TickMicros
			p.pool.Sweep()
		}
		p.delay.Wait(uint32(step)) //nolint:gosec // bounded by TickMicros
		remaining -= step
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

// Dispatch applies one event. It is safe to call from a MIDI driver
// callback while Live ticks the pool.
func (p *Player) Dispatch(ev source.Event) (*voice.Voice, error) {
	switch ev.Kind {
	case source.NoteOn:
		if ev.Velocity == 0 {
			v, _ := p.pool.Release(ev.Channel, ev.Key)
			return v, nil
		}
		return p.pool.Allocate(ev.Channel, ev.Key, p.Channel(ev.Channel))
	case source.NoteOff:
		v, _ := p.pool.Release(ev.Channel, ev.Key)
		return v, nil
	case source.ProgramChange:
		prof := instrument.For(ev.Program)
		p.mu.Lock()
		p.channels[ev.Channel&0x0F] = prof
		p.mu.Unlock()
		p.logger.Printf("ch%d now %s", ev.Channel, prof.Name)
	case source.Tempo, source.TimeSignature, source.KeySignature:
		p.mu.Lock()
		p.meta.Apply(ev)
		meta := p.meta.String()
		p.mu.Unlock()
		if p.opts.Verbose {
			p.logger.Printf("song: %s", meta)
		}
	case source.EndOfTrack, source.SysEx, source.Escape:
	case source.TrackName, source.InstrumentName, source.Text:
		if p.opts.Verbose {
			p.logger.Printf("%s: %q", ev.Kind, ev.Text)
		}
	default:
		if p.opts.Verbose {
			p.logger.Printf("not implemented: %s", ev)
		}
	}
	return nil, nil
}

// Live ticks the pool on a wall-clock timer until ctx is done, for events
// that arrive through Dispatch from another goroutine. Every voice is
// silenced before it returns.
func (p *Player) Live(ctx context.Context) {
	p.setState(Playing)
	interval := time.Duration(p.opts.TickMicros) * time.Microsecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			p.setState(Draining)
			p.pool.ResetAll()
			p.setState(Idle)
			return
		case now := <-ticker.C:
			elapsed := now.Sub(last).Microseconds()
			last = now
			if elapsed <= 0 {
				continue
			}
			if p.pool.Tick(uint32(min(elapsed, int64(time.Second/time.Microsecond)))) { //nolint:gosec // capped at one second
				p.pool.Sweep()
			}
		}
	}
}
