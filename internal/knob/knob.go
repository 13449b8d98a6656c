// Package knob runs the post-playback loop in which a rotary encoder
// retunes a single voice and a push button switches it on and off.
package knob

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/icco/buzzer/internal/clock"
	"github.com/icco/buzzer/internal/voice"
)

const (
	// PeriodStep is the period change per encoder detent in microseconds.
	PeriodStep = 20
	// AnalogStep is the settings value change per detent.
	AnalogStep = 10
	// StartPeriod is the knob voice's period when a session begins.
	StartPeriod = 1000
)

// Rotation is one encoder detent.
type Rotation int

const (
	None  Rotation = 0
	Left  Rotation = -1
	Right Rotation = 1
)

func (r Rotation) String() string {
	switch r {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return "none"
	}
}

// Analog8 is an 8-bit settings value that saturates at both ends.
type Analog8 uint8

// Turn moves the value one step in the rotation's direction.
func (a Analog8) Turn(r Rotation) Analog8 {
	switch r {
	case Right:
		if a > 255-AnalogStep {
			return 255
		}
		return a + AnalogStep
	case Left:
		if a < AnalogStep {
			return 0
		}
		return a - AnalogStep
	default:
		return a
	}
}

// Input is one sampled control change.
type Input struct {
	Rotation Rotation
	Press    bool
}

// Status is the knob voice as the user sees it.
type Status struct {
	Period  uint16
	Hertz   uint32
	Enabled bool
	Analog  Analog8
}

func (s Status) String() string {
	state := "off"
	if s.Enabled {
		state = "on"
	}
	return fmt.Sprintf("Period: %dus (%dHz) %s, analog %d", s.Period, s.Hertz, state, s.Analog)
}

// Session owns one voice for the duration of the knob loop.
type Session struct {
	voice  *voice.Voice
	tick   uint32
	analog Analog8
	logger *log.Logger
}

// NewSession retunes v to StartPeriod and enables it. tick is the
// microseconds the voice advances per loop iteration; zero means one.
func NewSession(v *voice.Voice, tick uint32, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if tick == 0 {
		tick = 1
	}
	v.SetPeriod(StartPeriod)
	v.SetEnabled(true)
	return &Session{voice: v, tick: tick, logger: logger}
}

// Status reports the current voice settings.
func (s *Session) Status() Status {
	return Status{
		Period:  s.voice.Period(),
		Hertz:   s.voice.Hertz(),
		Enabled: s.voice.Enabled(),
		Analog:  s.analog,
	}
}

// Apply handles one input: Right shortens the period, Left lengthens it,
// and a press toggles the voice.
func (s *Session) Apply(in Input) Status {
	if in.Press {
		s.voice.SetEnabled(!s.voice.Enabled())
	}
	if in.Rotation != None {
		s.voice.AdjustPeriod(int16(-PeriodStep * in.Rotation))
		s.analog = s.analog.Turn(in.Rotation)
	}
	st := s.Status()
	s.logger.Print(st)
	return st
}

// Run spins until ctx is done: drain pending input, advance the voice one
// tick and wait. notify, if set, receives the status after every input.
// The line is driven low on return.
func (s *Session) Run(ctx context.Context, delay clock.Delay, events <-chan Input, notify func(Status)) error {
	defer s.voice.SetEnabled(false)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
	drain:
		for {
			select {
			case in, ok := <-events:
				if !ok {
					events = nil
					break drain
				}
				st := s.Apply(in)
				if notify != nil {
					notify(st)
				}
			default:
				break drain
			}
		}
		s.voice.Update(s.tick)
		delay.Wait(s.tick)
	}
}
