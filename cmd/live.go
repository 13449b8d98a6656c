package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/icco/buzzer/internal/clock"
	"github.com/icco/buzzer/internal/player"
	"github.com/icco/buzzer/internal/source"
	"github.com/icco/buzzer/internal/voice"
)

var deviceName string

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Play incoming MIDI on the buzzer voices",
	Long: `Create a virtual MIDI input device and play every note it receives on the buzzer voices.

The virtual device shows up as a MIDI output destination in other music software.
Program changes select the instrument profile of a channel exactly as they do in a file.

Example:
  buzzer live --name "My Buzzer"
`,
	Args: cobra.NoArgs,
	RunE: runLive,
}

func init() {
	liveCmd.Flags().StringVarP(&deviceName, "name", "N", "", "name for the virtual MIDI device")
	rootCmd.AddCommand(liveCmd)
}

func runLive(cmd *cobra.Command, args []string) error {
	if deviceName == "" {
		deviceName = settings.Live.DeviceName
	}

	// Component logs would tear the alt screen.
	out := openOutput(settings, quietLogger())
	defer out.Close()
	pool := voice.NewPool(out.lines, quietLogger())
	p := player.New(pool, clock.Nop{}, player.Options{
		TickMicros: settings.TickMicros,
	}, quietLogger())

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go p.Live(ctx)

	m := newLiveModel(deviceName, p)
	prog := tea.NewProgram(m, tea.WithAltScreen())
	m.program = prog // Store reference so MIDI callback can send messages

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(c)
	go func() {
		select {
		case <-c:
			prog.Send(tea.Quit())
		case <-ctx.Done():
		}
	}()

	_, err := prog.Run()
	return err
}

const maxMessageHistory = 20

// liveModel represents the TUI state for the virtual MIDI device
type liveModel struct {
	deviceName     string
	player         *player.Player
	driver         *rtmididrv.Driver
	inPort         drivers.In // Single virtual MIDI input port (receives all channels)
	stopFunc       func()     // Stop function for the port
	lastMessage    string
	messageHistory []string // Historical log of MIDI messages
	messageCount   int
	dropped        int
	err            error
	program        *tea.Program // Reference to send messages from MIDI callback
}

// midiEventMsg is sent when a MIDI message has been dispatched
type midiEventMsg struct {
	event   source.Event
	voice   int
	dropped bool
}

func newLiveModel(name string, p *player.Player) *liveModel {
	return &liveModel{
		deviceName:     name,
		player:         p,
		messageHistory: make([]string, 0, maxMessageHistory),
	}
}

func (m *liveModel) Init() tea.Cmd {
	return m.initMIDI
}

type initResultMsg struct {
	driver *rtmididrv.Driver
	inPort drivers.In
	err    error
}

func (m *liveModel) initMIDI() tea.Msg {
	driver, err := rtmididrv.New()
	if err != nil {
		return initResultMsg{err: fmt.Errorf("failed to initialize MIDI driver: %w", err)}
	}

	// Create a single virtual MIDI input port that receives all channels
	port, err := driver.OpenVirtualIn(m.deviceName)
	if err != nil {
		driver.Close()
		return initResultMsg{err: fmt.Errorf("failed to create virtual MIDI port: %w", err)}
	}

	return initResultMsg{driver: driver, inPort: port}
}

func (m *liveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case initResultMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.driver = msg.driver
		m.inPort = msg.inPort

		// Start listening for MIDI messages
		return m, m.listenMIDI

	case midiEventMsg:
		m.handleMIDIEvent(msg)
		m.messageCount++
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, m.cleanup
		case "r":
			m.player.Pool().ResetAll()
			m.record("Reset: all voices freed")
		}
	}

	return m, nil
}

// onMessage runs on the driver's goroutine. Dispatch takes the pool lock,
// so it can interleave with the live ticker.
func (m *liveModel) onMessage(data []byte, timestamp int32) {
	ev, err := source.Decode(data)
	if err != nil {
		return
	}
	// All notes off
	if ev.Kind == source.Controller && ev.Controller == 123 {
		m.player.Pool().ResetAll()
	}

	v, err := m.player.Dispatch(ev)
	id := -1
	if v != nil {
		id = v.ID()
	}
	if m.program != nil {
		m.program.Send(midiEventMsg{event: ev, voice: id, dropped: err != nil})
	}
}

func (m *liveModel) listenMIDI() tea.Msg {
	if m.inPort == nil {
		return nil
	}

	stop, err := m.inPort.Listen(m.onMessage, drivers.ListenConfig{})
	if err != nil {
		m.err = fmt.Errorf("failed to listen to MIDI port: %w", err)
		return nil
	}

	m.stopFunc = stop
	m.lastMessage = fmt.Sprintf("Listening on: %s", m.inPort.String())
	return nil
}

func (m *liveModel) handleMIDIEvent(msg midiEventMsg) {
	ev := msg.event
	var message string

	switch ev.Kind {
	case source.NoteOn:
		if msg.dropped {
			m.dropped++
			message = fmt.Sprintf("Dropped:  Ch%d %-4s (no free voice)", ev.Channel+1, midiNoteName(ev.Key))
		} else {
			message = fmt.Sprintf("Note On:  Ch%d %-4s vel:%d -> voice %d",
				ev.Channel+1, midiNoteName(ev.Key), ev.Velocity, msg.voice)
		}
	case source.NoteOff:
		message = fmt.Sprintf("Note Off: Ch%d %-4s", ev.Channel+1, midiNoteName(ev.Key))
	case source.ProgramChange:
		message = fmt.Sprintf("Program:  Ch%d %s", ev.Channel+1, m.player.Channel(ev.Channel).Name)
	case source.Controller:
		message = fmt.Sprintf("CC:       Ch%d ctrl:%d val:%d", ev.Channel+1, ev.Controller, ev.Value)
	default:
		message = ev.String()
	}
	m.record(message)
}

func (m *liveModel) record(message string) {
	m.lastMessage = message

	// Add to history (keep most recent at top)
	m.messageHistory = append([]string{message}, m.messageHistory...)
	if len(m.messageHistory) > maxMessageHistory {
		m.messageHistory = m.messageHistory[:maxMessageHistory]
	}
}

func (m *liveModel) cleanup() tea.Msg {
	// Stop listener
	if m.stopFunc != nil {
		m.stopFunc()
	}
	// Close port
	if m.inPort != nil {
		m.inPort.Close()
	}
	if m.driver != nil {
		m.driver.Close()
	}
	m.player.Pool().ResetAll()
	return tea.Quit()
}

func (m *liveModel) View() string {
	var b strings.Builder

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FAFAFA")).
		Background(lipgloss.Color("#7D56F4")).
		Padding(0, 1)

	subtitleStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888"))

	statusStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#00FF00")).
		Bold(true)

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FF0000")).
		Bold(true)

	noteStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FFD700"))

	helpStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#626262"))

	b.WriteString(titleStyle.Render("buzzer live") + "\n\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render("Error: "+m.err.Error()) + "\n\n")
		b.WriteString(helpStyle.Render("Press Ctrl+C to quit"))
		return b.String()
	}

	b.WriteString(subtitleStyle.Render("Device Name: ") + m.deviceName + "\n")
	if m.inPort != nil {
		b.WriteString(subtitleStyle.Render("MIDI Port: ") + statusStyle.Render(m.inPort.String()) + "\n")
	} else {
		b.WriteString(subtitleStyle.Render("MIDI Port: ") + "Initializing...\n")
	}

	pool := m.player.Pool()
	bound := pool.Snapshot()
	fmt.Fprintf(&b, "%s%d/%d busy, %d dropped\n\n", subtitleStyle.Render("Voices: "), len(bound), pool.Cap(), m.dropped)

	b.WriteString(subtitleStyle.Render("Sounding:") + "\n")
	active := make(map[uint8]bool)
	if len(bound) == 0 {
		b.WriteString("  (no notes playing)\n")
	} else {
		notes := make([]string, 0, len(bound))
		for _, v := range bound {
			active[v.Key] = true
			notes = append(notes, fmt.Sprintf("Ch%d:%s@%dHz", v.Channel+1, midiNoteName(v.Key), v.Hertz))
		}
		b.WriteString("  " + noteStyle.Render(strings.Join(notes, " ")) + "\n")
	}

	// Message history log
	b.WriteString("\n" + subtitleStyle.Render(fmt.Sprintf("Message Log: [%d total]", m.messageCount)) + "\n")

	logStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	logHighlightStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF"))

	if len(m.messageHistory) == 0 {
		b.WriteString("  " + logStyle.Render("(waiting for input)") + "\n")
	}
	for i, msg := range m.messageHistory[:min(len(m.messageHistory), 10)] {
		if i == 0 {
			b.WriteString("  " + logHighlightStyle.Render("▶ "+msg) + "\n")
		} else {
			b.WriteString("  " + logStyle.Render("  "+msg) + "\n")
		}
	}

	b.WriteString("\n" + renderKeyboard(active) + "\n")
	b.WriteString("\n" + helpStyle.Render("r: free all voices • q/Ctrl+C: quit"))

	return b.String()
}

func renderKeyboard(active map[uint8]bool) string {
	// Two octaves from C3 (48) to B4 (71)
	whiteStyle := lipgloss.NewStyle().Background(lipgloss.Color("#FFFFFF")).Foreground(lipgloss.Color("#000000"))
	blackStyle := lipgloss.NewStyle().Background(lipgloss.Color("#000000")).Foreground(lipgloss.Color("#FFFFFF"))
	activeWhite := lipgloss.NewStyle().Background(lipgloss.Color("#00FF00")).Foreground(lipgloss.Color("#000000"))
	activeBlack := lipgloss.NewStyle().Background(lipgloss.Color("#00AA00")).Foreground(lipgloss.Color("#FFFFFF"))

	whiteKeys := []uint8{0, 2, 4, 5, 7, 9, 11}
	blackAfter := []int{1, 3, -1, 6, 8, 10, -1}

	var top, bottom strings.Builder
	for octave := 3; octave <= 4; octave++ {
		base := uint8(octave*12 + 12) //nolint:gosec // small

		for _, offset := range blackAfter {
			switch {
			case offset < 0:
				top.WriteString(" ")
			case active[base+uint8(offset)]: //nolint:gosec // small
				top.WriteString(activeBlack.Render("█"))
			default:
				top.WriteString(blackStyle.Render("█"))
			}
			top.WriteString(" ")
		}

		for _, offset := range whiteKeys {
			if active[base+offset] {
				bottom.WriteString(activeWhite.Render("█"))
			} else {
				bottom.WriteString(whiteStyle.Render("█"))
			}
			bottom.WriteString(" ")
		}
	}

	return top.String() + "\n" + bottom.String()
}

func midiNoteName(note uint8) string {
	notes := []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}
	octave := int(note/12) - 1
	return fmt.Sprintf("%s%d", notes[note%12], octave)
}
