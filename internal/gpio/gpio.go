// Package gpio defines the fast digital output capability the voice engine
// toggles, plus host-side implementations for tests and silent playback.
package gpio

import (
	"fmt"
	"sync/atomic"
)

// Line is one digital output owned by a single voice. High and Low are on
// the hot path, called thousands of times per second per sounding voice,
// so implementations should compile down to a single store where the
// target allows it.
type Line interface {
	High()
	Low()
}

// Bank is a simulated port of up to 32 lines addressed by bit mask. It keeps
// the current level of every line and a toggle count per line.
type Bank struct {
	levels  atomic.Uint32
	toggles [32]atomic.Uint64
	width   int
}

// NewBank creates a bank with n lines.
func NewBank(n int) *Bank {
	if n < 0 || n > 32 {
		panic(fmt.Sprintf("gpio: bank width %d out of range", n))
	}
	return &Bank{width: n}
}

// Lines returns one Line per bank bit, in bit order.
func (b *Bank) Lines() []Line {
	lines := make([]Line, b.width)
	for i := range lines {
		lines[i] = &BankLine{bank: b, bit: uint8(i)} //nolint:gosec // i < 32
	}
	return lines
}

// Levels returns the current output word.
func (b *Bank) Levels() uint32 {
	return b.levels.Load()
}

// Level reports whether line i is high.
func (b *Bank) Level(i int) bool {
	return b.levels.Load()&(1<<uint(i)) != 0
}

// Toggles returns how many level changes line i has seen.
func (b *Bank) Toggles(i int) uint64 {
	return b.toggles[i].Load()
}

// BankLine drives one bit of a Bank.
type BankLine struct {
	bank *Bank
	bit  uint8
}

// Mask returns the line's bit mask within its bank.
func (l *BankLine) Mask() uint32 {
	return 1 << l.bit
}

// High sets the line; a no-op when it is already high.
func (l *BankLine) High() {
	if old := l.bank.levels.Or(l.Mask()); old&l.Mask() == 0 {
		l.bank.toggles[l.bit].Add(1)
	}
}

// Low clears the line; a no-op when it is already low.
func (l *BankLine) Low() {
	if old := l.bank.levels.And(^l.Mask()); old&l.Mask() != 0 {
		l.bank.toggles[l.bit].Add(1)
	}
}

// Nop is a line that discards every write.
type Nop struct{}

// High does nothing.
func (Nop) High() {}

// Low does nothing.
func (Nop) Low() {}

// NopLines returns n discarding lines.
func NopLines(n int) []Line {
	lines := make([]Line, n)
	for i := range lines {
		lines[i] = Nop{}
	}
	return lines
}
