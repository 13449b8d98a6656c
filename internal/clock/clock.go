// Package clock provides the busy-wait delay the scheduler spins on and the
// calibration that maps musical microseconds onto loop time.
package clock

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"strconv"
	"strings"
	"time"
)

// Delay blocks the caller for roughly the given number of microseconds.
// Implementations must not yield to a scheduler; playback timing depends on
// each call having a fixed cost.
type Delay interface {
	Wait(micros uint32)
}

// Spin busy-waits on the monotonic clock.
type Spin struct{}

// Wait spins until micros have elapsed.
func (Spin) Wait(micros uint32) {
	deadline := time.Now().Add(time.Duration(micros) * time.Microsecond)
	for time.Now().Before(deadline) {
	}
}

// Nop returns immediately. Playback driven by Nop runs as fast as the CPU
// allows, which is what tests and offline rendering want.
type Nop struct{}

// Wait does nothing.
func (Nop) Wait(uint32) {}

// Counter records the total requested delay without waiting.
type Counter struct {
	Calls  int
	Micros uint64
}

// Wait adds micros to the running total.
func (c *Counter) Wait(micros uint32) {
	c.Calls++
	c.Micros += uint64(micros)
}

// Calibration scales a musical wait into scheduler time. It compensates for
// per-iteration loop overhead on a given target and carries no musical
// meaning.
type Calibration struct {
	Num uint32 `json:"num"`
	Den uint32 `json:"den"`
}

var (
	// Identity leaves waits unchanged; right for Spin on a desktop host.
	Identity = Calibration{Num: 1, Den: 1}
	// ESP32 is the factor measured for the 240MHz firmware loop.
	ESP32 = Calibration{Num: 27, Den: 10}
)

// ErrBadCalibration is returned for a zero or malformed calibration.
var ErrBadCalibration = errors.New("clock: invalid calibration")

// Scale applies the calibration with a 128-bit intermediate. A result that
// does not fit in 64 bits saturates.
func (c Calibration) Scale(micros uint64) uint64 {
	if c.Den == 0 {
		return micros
	}
	hi, lo := bits.Mul64(micros, uint64(c.Num))
	if hi >= uint64(c.Den) {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, uint64(c.Den))
	return q
}

// Validate rejects calibrations that would divide by zero or stall.
func (c Calibration) Validate() error {
	if c.Num == 0 || c.Den == 0 {
		return fmt.Errorf("%w: %d/%d", ErrBadCalibration, c.Num, c.Den)
	}
	return nil
}

// String renders the calibration as "num/den".
func (c Calibration) String() string {
	return fmt.Sprintf("%d/%d", c.Num, c.Den)
}

// Set parses "num/den", a bare integer, or a decimal such as "2.7".
// It makes Calibration usable as a pflag.Value.
func (c *Calibration) Set(s string) error {
	s = strings.TrimSpace(s)
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err := strconv.ParseUint(num, 10, 32)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrBadCalibration, s)
		}
		d, err := strconv.ParseUint(den, 10, 32)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrBadCalibration, s)
		}
		next := Calibration{Num: uint32(n), Den: uint32(d)}
		if err := next.Validate(); err != nil {
			return err
		}
		*c = next
		return nil
	}

	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > 6 {
		frac = frac[:6]
	}
	den := uint64(1)
	for range frac {
		den *= 10
	}
	n, err := strconv.ParseUint(whole+frac, 10, 32)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrBadCalibration, s)
	}
	next := Calibration{Num: uint32(n), Den: uint32(den)}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

// Type names the flag value type for pflag help output.
func (c *Calibration) Type() string {
	return "ratio"
}
