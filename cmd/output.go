package cmd

import (
	"log"
	"time"

	"github.com/icco/buzzer/internal/audio"
	"github.com/icco/buzzer/internal/config"
	"github.com/icco/buzzer/internal/gpio"
)

// output is the set of lines the voices drive: audible through the audio
// monitor, or a silent bank that only counts toggles.
type output struct {
	lines   []gpio.Line
	bank    *gpio.Bank
	monitor *audio.Monitor
}

func openOutput(cfg *config.Config, logger *log.Logger) *output {
	if cfg.Audio.Enabled {
		latency := time.Duration(cfg.Audio.LatencyMillis) * time.Millisecond
		m, err := audio.NewMonitor(cfg.Voices, latency)
		if err == nil {
			return &output{lines: m.Lines(), monitor: m}
		}
		logger.Printf("audio unavailable, playing silently: %v", err)
	}
	bank := gpio.NewBank(cfg.Voices)
	return &output{lines: bank.Lines(), bank: bank}
}

// report logs per-line toggle counts for a silent bank.
func (o *output) report(logger *log.Logger) {
	if o.bank == nil {
		return
	}
	for i := range o.lines {
		if n := o.bank.Toggles(i); n > 0 {
			logger.Printf("voice %d: %d toggles", i, n)
		}
	}
}

func (o *output) Close() {
	if o.monitor != nil {
		o.monitor.Close()
	}
}
