package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/icco/buzzer/internal/clock"
	"github.com/icco/buzzer/internal/knob"
	"github.com/icco/buzzer/internal/tui"
	"github.com/icco/buzzer/internal/voice"
)

// knobTick is the voice step of the knob loop in microseconds.
const knobTick = 10

var knobCmd = &cobra.Command{
	Use:   "knob",
	Short: "Tune a single buzzer voice with the keyboard",
	Long: `Start a single voice at 1kHz and retune it with the arrow keys, the way the
rotary encoder does on the board. Space switches the voice on and off.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := *settings
		cfg.Voices = 1
		out := openOutput(&cfg, newLogger("knob"))
		defer out.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runKnobSession(ctx, voice.New(0, out.lines[0]), "")
	},
}

func init() {
	rootCmd.AddCommand(knobCmd)
}

// runKnobSession spins the knob loop on its own goroutine while the TUI
// feeds it key presses. It returns when the TUI quits.
func runKnobSession(ctx context.Context, v *voice.Voice, title string) error {
	inputs := make(chan knob.Input, 16)
	session := knob.NewSession(v, knobTick, quietLogger())

	p := tea.NewProgram(tui.NewKnob(title, inputs, session.Status()), tea.WithAltScreen())

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- session.Run(ctx, clock.Spin{}, inputs, func(st knob.Status) {
			p.Send(tui.StatusMsg(st))
		})
		p.Quit()
	}()

	_, err := p.Run()
	cancel()
	if runErr := <-done; err == nil && !errors.Is(runErr, context.Canceled) {
		err = runErr
	}
	return err
}
