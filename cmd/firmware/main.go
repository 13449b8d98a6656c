//go:build baremetal

// Command firmware plays the embedded song on the board's buzzers and then
// hands the first buzzer to the rotary encoder.
package main

import (
	"context"
	_ "embed"
	"log"
	"machine"
	"os"

	"tinygo.org/x/drivers/encoders"

	"github.com/icco/buzzer/internal/clock"
	"github.com/icco/buzzer/internal/gpio"
	"github.com/icco/buzzer/internal/knob"
	"github.com/icco/buzzer/internal/player"
	"github.com/icco/buzzer/internal/source"
	"github.com/icco/buzzer/internal/voice"
)

//go:embed song.mid
var songData []byte

var (
	led = machine.GPIO2

	// Encoder clock, data and switch.
	clk = machine.GPIO5
	dt  = machine.GPIO13
	sw  = machine.GPIO12

	buzzerPins = [voice.DefaultCapacity]machine.Pin{
		machine.GPIO26, machine.GPIO27, machine.GPIO14, machine.GPIO15,
		machine.GPIO16, machine.GPIO17, machine.GPIO18, machine.GPIO19,
		machine.GPIO21, machine.GPIO22, machine.GPIO23, machine.GPIO25,
		machine.GPIO32, machine.GPIO33, machine.GPIO4, machine.GPIO0,
	}
)

// encoderDelay spins like clock.Spin but samples the encoder and button
// first, queueing what changed for the knob session.
type encoderDelay struct {
	enc     *encoders.QuadratureDevice
	last    int
	pressed bool
	inputs  chan knob.Input
}

func (d *encoderDelay) Wait(micros uint32) {
	if pos := d.enc.Position(); pos != d.last {
		r := knob.Right
		if pos < d.last {
			r = knob.Left
		}
		d.last = pos
		d.queue(knob.Input{Rotation: r})
	}
	// The switch pulls low when pressed.
	if down := !sw.Get(); down != d.pressed {
		d.pressed = down
		if down {
			d.queue(knob.Input{Press: true})
		}
	}
	clock.Spin{}.Wait(micros)
}

func (d *encoderDelay) queue(in knob.Input) {
	select {
	case d.inputs <- in:
	default:
	}
}

func halt(logger *log.Logger, err error) {
	logger.Printf("halted: %v", err)
	for {
		led.High()
		clock.Spin{}.Wait(100_000)
		led.Low()
		clock.Spin{}.Wait(900_000)
	}
}

func main() {
	logger := log.New(os.Stdout, "[player] ", 0)

	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	sw.Configure(machine.PinConfig{Mode: machine.PinInputPullup})

	lines := make([]gpio.Line, len(buzzerPins))
	for i, pin := range buzzerPins {
		pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
		lines[i] = pin
	}

	f, err := source.Parse(songData)
	if err != nil {
		halt(logger, err)
	}
	logger.Print(f.Describe())

	pool := voice.NewPool(lines, log.New(os.Stdout, "[voice] ", 0))
	p := player.New(pool, clock.Spin{}, player.Options{
		TickMicros:  player.DefaultTickMicros,
		Calibration: clock.ESP32,
	}, logger)
	if err := p.Play(context.Background(), f); err != nil {
		halt(logger, err)
	}

	enc := encoders.NewQuadratureViaInterrupt(clk, dt)
	enc.Configure(encoders.QuadratureConfig{Precision: 4})

	delay := &encoderDelay{enc: enc, inputs: make(chan knob.Input, 8)}
	session := knob.NewSession(pool.Voices()[0], 1, log.New(os.Stdout, "[knob] ", 0))
	session.Run(context.Background(), delay, delay.inputs, func(st knob.Status) {
		if st.Enabled {
			led.High()
		} else {
			led.Low()
		}
	})
}
