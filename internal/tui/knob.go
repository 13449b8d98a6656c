// Package tui is the terminal front end of the knob session.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"

	"github.com/icco/buzzer/internal/knob"
)

const (
	keyLeft  = "left"
	keyRight = "right"

	meterWidth = 32
	maxHistory = 8
	fps        = 60
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))

	onStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)

	offStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	meterStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD700"))

	logStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#AAAAAA"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))
)

// StatusMsg carries a knob status from the session goroutine.
type StatusMsg knob.Status

type frameMsg time.Time

// KnobModel forwards key presses to a knob session and draws its state.
type KnobModel struct {
	title  string
	inputs chan<- knob.Input
	status knob.Status

	// meter eases toward the analog value.
	spring   harmonica.Spring
	meter    float64
	velocity float64

	history []string
	dropped int
}

// NewKnob creates the model. inputs should be buffered; a full channel
// drops the key press.
func NewKnob(title string, inputs chan<- knob.Input, initial knob.Status) KnobModel {
	return KnobModel{
		title:  title,
		inputs: inputs,
		status: initial,
		spring: harmonica.NewSpring(harmonica.FPS(fps), 6.0, 0.5),
	}
}

func animate() tea.Cmd {
	return tea.Tick(time.Second/fps, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

// Init starts the meter animation.
func (m KnobModel) Init() tea.Cmd {
	return animate()
}

func (m *KnobModel) send(in knob.Input) {
	select {
	case m.inputs <- in:
	default:
		m.dropped++
	}
}

// Update handles keys, session status and animation frames.
func (m KnobModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case keyLeft, "h":
			m.send(knob.Input{Rotation: knob.Left})
		case keyRight, "l":
			m.send(knob.Input{Rotation: knob.Right})
		case " ", "enter":
			m.send(knob.Input{Press: true})
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}

	case StatusMsg:
		m.status = knob.Status(msg)
		m.history = append([]string{m.status.String()}, m.history...)
		if len(m.history) > maxHistory {
			m.history = m.history[:maxHistory]
		}

	case frameMsg:
		target := float64(m.status.Analog) / 255
		m.meter, m.velocity = m.spring.Update(m.meter, m.velocity, target)
		return m, animate()
	}
	return m, nil
}

// View renders the voice settings, the analog meter and recent changes.
func (m KnobModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("buzzer knob") + "\n\n")
	if m.title != "" {
		b.WriteString(subtitleStyle.Render("Song: ") + m.title + "\n\n")
	}

	state := offStyle.Render("● off")
	if m.status.Enabled {
		state = onStyle.Render("● on")
	}
	fmt.Fprintf(&b, "%s %dus (%dHz)\n", state, m.status.Period, m.status.Hertz)
	b.WriteString(subtitleStyle.Render("Analog: ") + renderMeter(m.meter) +
		fmt.Sprintf(" %3d\n", m.status.Analog))

	b.WriteString("\n" + subtitleStyle.Render("Changes:") + "\n")
	if len(m.history) == 0 {
		b.WriteString("  " + logStyle.Render("(turn the knob)") + "\n")
	}
	for _, line := range m.history {
		b.WriteString("  " + logStyle.Render(line) + "\n")
	}
	if m.dropped > 0 {
		b.WriteString(offStyle.Render(fmt.Sprintf("%d key press(es) dropped", m.dropped)) + "\n")
	}

	b.WriteString("\n" + helpStyle.Render("←/h: lower • →/l: higher • space: on/off • q: quit"))
	return b.String()
}

// renderMeter draws level (0..1, spring overshoot clipped) as a bar.
func renderMeter(level float64) string {
	filled := int(min(max(level, 0), 1)*meterWidth + 0.5)
	return "[" + meterStyle.Render(strings.Repeat("█", filled)) + strings.Repeat("·", meterWidth-filled) + "]"
}
