// Package voice drives square-wave buzzer voices and allocates them to
// sounding notes.
package voice

import (
	"fmt"
	"math"

	"github.com/icco/buzzer/internal/gpio"
	"github.com/icco/buzzer/internal/instrument"
)

// Period limits in microseconds (50Hz..10kHz).
const (
	MinPeriod = 100
	MaxPeriod = 20_000
	middleKey = 64
)

// State is the lifecycle position of a voice.
type State int

const (
	Idle     State = iota // free, line held low
	Sounding              // bound to a note and toggling
	Expiring              // bound, lifetime used up, waiting for a sweep
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sounding:
		return "sounding"
	case Expiring:
		return "expiring"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// PeriodFor applies the pitch law: the period shrinks linearly by the
// profile's semitone delta for every key above 64. The linear law is an
// approximation of equal temperament that needs only integer arithmetic.
func PeriodFor(p instrument.Profile, key uint8) uint16 {
	period := int32(p.BasePeriod) - int32(p.SemitoneDelta)*(int32(key)-middleKey)
	return clampPeriod(period)
}

func clampPeriod(period int32) uint16 {
	switch {
	case period < MinPeriod:
		return MinPeriod
	case period > MaxPeriod:
		return MaxPeriod
	default:
		return uint16(period) //nolint:gosec // clamped above
	}
}

// Voice is one buzzer line and the oscillator state that toggles it. A
// voice owns its line for the life of the program; only its note binding
// changes.
type Voice struct {
	id   int
	line gpio.Line

	high    bool
	elapsed uint32
	period  uint16
	half    uint32
	// lifetime is microseconds left before expiry, or instrument.Forever.
	lifetime int32
	enabled  bool

	bound   bool
	channel uint8
	key     uint8
}

// New creates an idle voice on line. The line is driven low.
func New(id int, line gpio.Line) *Voice {
	v := &Voice{id: id, line: line, lifetime: instrument.Forever, enabled: true}
	v.SetPeriod(instrument.Default().BasePeriod)
	line.Low()
	return v
}

// ID identifies the voice's physical line.
func (v *Voice) ID() int { return v.id }

// Line returns the owned output.
func (v *Voice) Line() gpio.Line { return v.line }

// Period returns the full oscillation period in microseconds.
func (v *Voice) Period() uint16 { return v.period }

// Hertz returns the oscillation frequency.
func (v *Voice) Hertz() uint32 {
	return 1_000_000 / uint32(v.period)
}

// High reports the current output level.
func (v *Voice) High() bool { return v.high }

// Lifetime returns the remaining lifetime in microseconds.
func (v *Voice) Lifetime() int32 { return v.lifetime }

// Binding returns the (channel, key) the voice plays, if any.
func (v *Voice) Binding() (channel, key uint8, ok bool) {
	return v.channel, v.key, v.bound
}

// State derives the lifecycle state.
func (v *Voice) State() State {
	switch {
	case !v.bound:
		return Idle
	case v.lifetime <= 0:
		return Expiring
	default:
		return Sounding
	}
}

// SetPeriod sets the oscillation period, clamped to the supported range.
func (v *Voice) SetPeriod(period uint16) {
	v.period = clampPeriod(int32(period))
	v.half = uint32(v.period) / 2
}

// AdjustPeriod shifts the period by delta microseconds, clamped.
func (v *Voice) AdjustPeriod(delta int16) {
	v.period = clampPeriod(int32(v.period) + int32(delta))
	v.half = uint32(v.period) / 2
}

// SetEnabled mutes or unmutes the voice. A muted voice keeps its phase but
// holds the line low.
func (v *Voice) SetEnabled(on bool) {
	v.enabled = on
	if !on {
		v.line.Low()
	} else if v.high {
		v.line.High()
	}
}

// Enabled reports whether the voice drives its line.
func (v *Voice) Enabled() bool { return v.enabled }

// Start binds the voice to a note and restarts its oscillator.
func (v *Voice) Start(channel, key uint8, p instrument.Profile) {
	v.bound = true
	v.channel = channel
	v.key = key
	v.SetPeriod(PeriodFor(p, key))
	v.lifetime = p.Duration
	v.elapsed = 0
	v.high = false
	v.enabled = true
	v.line.Low()
}

// Stop unbinds the voice and drives the line low.
func (v *Voice) Stop() {
	v.bound = false
	v.elapsed = 0
	v.high = false
	v.lifetime = instrument.Forever
	v.line.Low()
}

// Update advances the oscillator by micros. Each time a half period has
// elapsed the line flips; the remainder carries into the next half so the
// duty cycle stays at 50% for any tick size.
func (v *Voice) Update(micros uint32) {
	v.elapsed += micros
	for v.elapsed >= v.half {
		v.elapsed -= v.half
		v.high = !v.high
		if !v.enabled {
			continue
		}
		if v.high {
			v.line.High()
		} else {
			v.line.Low()
		}
	}
	if v.lifetime != instrument.Forever && v.lifetime > 0 {
		v.lifetime -= int32(min(micros, math.MaxInt32)) //nolint:gosec // bounded by min
	}
}

func (v *Voice) String() string {
	if !v.bound {
		return fmt.Sprintf("voice %d: %s", v.id, Idle)
	}
	return fmt.Sprintf("voice %d: %s ch%d key%d %dus (%dHz)", v.id, v.State(), v.channel, v.key, v.period, v.Hertz())
}
