package voice

import (
	"errors"
	"io"
	"log"
	"sync"

	"github.com/icco/buzzer/internal/gpio"
	"github.com/icco/buzzer/internal/instrument"
)

const (
	numChannels = 16
	numKeys     = 128
)

// DefaultCapacity is the number of buzzer lines on the reference board.
const DefaultCapacity = 16

// ErrNoFreeVoice is returned by Allocate when every voice is bound.
var ErrNoFreeVoice = errors.New("voice: no free voice")

// Pool owns every voice and tracks which are free and which are bound to a
// (channel, key). A voice is always in exactly one of the two collections.
//
// Playback calls the pool from a single loop, but every method takes the
// pool lock so a timer goroutine may drive Tick while another dispatches
// notes.
type Pool struct {
	mu     sync.Mutex
	logger *log.Logger

	all []*Voice

	// free is a FIFO ring so released voices rest before reuse.
	free      []*Voice
	freeHead  int
	freeCount int

	byNote [numChannels][numKeys]*Voice
	active []*Voice
}

// NewPool creates one voice per line. A nil logger discards messages.
func NewPool(lines []gpio.Line, logger *log.Logger) *Pool {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	p := &Pool{
		logger: logger,
		all:    make([]*Voice, len(lines)),
		free:   make([]*Voice, len(lines)),
		active: make([]*Voice, 0, len(lines)),
	}
	for i, line := range lines {
		v := New(i, line)
		p.all[i] = v
		p.pushFree(v)
	}
	return p
}

func (p *Pool) pushFree(v *Voice) {
	p.free[(p.freeHead+p.freeCount)%len(p.free)] = v
	p.freeCount++
}

func (p *Pool) popFree() *Voice {
	if p.freeCount == 0 {
		return nil
	}
	v := p.free[p.freeHead]
	p.free[p.freeHead] = nil
	p.freeHead = (p.freeHead + 1) % len(p.free)
	p.freeCount--
	return v
}

// Allocate binds a free voice to (channel, key) with the profile's pitch and
// lifetime. When the pair is already sounding, the old voice is returned to
// the free pool first. With no free voice the note is dropped and
// ErrNoFreeVoice returned; the pool is unchanged.
func (p *Pool) Allocate(channel, key uint8, prof instrument.Profile) (*Voice, error) {
	channel &= numChannels - 1
	key &= numKeys - 1

	p.mu.Lock()
	defer p.mu.Unlock()

	if old := p.byNote[channel][key]; old != nil {
		p.logger.Printf("ch%d key%d retriggered, recycling voice %d", channel, key, old.id)
		p.releaseLocked(old)
	}

	v := p.popFree()
	if v == nil {
		p.logger.Printf("no free voice for ch%d key%d, note dropped", channel, key)
		return nil, ErrNoFreeVoice
	}
	v.Start(channel, key, prof)
	p.byNote[channel][key] = v
	p.active = append(p.active, v)
	return v, nil
}

// Release returns the voice bound to (channel, key) to the free pool. It
// reports false when nothing was bound there.
func (p *Pool) Release(channel, key uint8) (*Voice, bool) {
	channel &= numChannels - 1
	key &= numKeys - 1

	p.mu.Lock()
	defer p.mu.Unlock()

	v := p.byNote[channel][key]
	if v == nil {
		return nil, false
	}
	p.releaseLocked(v)
	return v, true
}

func (p *Pool) releaseLocked(v *Voice) {
	p.byNote[v.channel][v.key] = nil
	for i, a := range p.active {
		if a == v {
			copy(p.active[i:], p.active[i+1:])
			p.active[len(p.active)-1] = nil
			p.active = p.active[:len(p.active)-1]
			break
		}
	}
	v.Stop()
	p.pushFree(v)
}

// Sweep returns every expired voice to the free pool and reports how many
// it reclaimed. Voices with an indefinite lifetime are never touched.
func (p *Pool) Sweep() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for i := 0; i < len(p.active); {
		v := p.active[i]
		if v.State() != Expiring {
			i++
			continue
		}
		p.releaseLocked(v)
		n++
	}
	return n
}

// ResetAll silences and frees every bound voice.
func (p *Pool) ResetAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.active) > 0 {
		p.releaseLocked(p.active[0])
	}
}

// Tick advances every bound voice by micros and reports whether any of
// them has expired.
func (p *Pool) Tick(micros uint32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	expired := false
	for _, v := range p.active {
		v.Update(micros)
		if v.lifetime <= 0 {
			expired = true
		}
	}
	return expired
}

// Lookup returns the voice bound to (channel, key).
func (p *Pool) Lookup(channel, key uint8) (*Voice, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := p.byNote[channel&(numChannels-1)][key&(numKeys-1)]
	return v, v != nil
}

// Cap returns the number of voices.
func (p *Pool) Cap() int { return len(p.all) }

// Free returns the number of unbound voices.
func (p *Pool) Free() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.freeCount
}

// Active returns the number of bound voices.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// VoiceInfo is a copy of a bound voice's state.
type VoiceInfo struct {
	ID       int
	Channel  uint8
	Key      uint8
	Period   uint16
	Hertz    uint32
	Lifetime int32
	State    State
}

// Snapshot copies the bound voices in allocation order. The copies are
// taken under the pool lock so they can be read while notes keep arriving.
func (p *Pool) Snapshot() []VoiceInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]VoiceInfo, len(p.active))
	for i, v := range p.active {
		out[i] = VoiceInfo{
			ID:       v.id,
			Channel:  v.channel,
			Key:      v.key,
			Period:   v.period,
			Hertz:    v.Hertz(),
			Lifetime: v.lifetime,
			State:    v.State(),
		}
	}
	return out
}

// Voices returns every voice by ID, bound or not.
func (p *Pool) Voices() []*Voice {
	out := make([]*Voice, len(p.all))
	copy(out, p.all)
	return out
}
