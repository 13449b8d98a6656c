package cmd

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/icco/buzzer/internal/instrument"
	"github.com/icco/buzzer/internal/voice"
)

var instrumentsCmd = &cobra.Command{
	Use:   "instruments [name]",
	Short: "List the General MIDI instrument profiles",
	Long: `List the period, lifetime and pitch slope assigned to each General MIDI program.

With a name, only the matching program is shown together with its pitch at a few
reference keys.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInstruments,
}

func init() {
	rootCmd.AddCommand(instrumentsCmd)
}

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4"))

	cellStyle = lipgloss.NewStyle().Padding(0, 1)
)

func lifetime(p instrument.Profile) string {
	if p.Indefinite() {
		return "until off"
	}
	return fmt.Sprintf("%dms", p.Duration/1000)
}

func runInstruments(cmd *cobra.Command, args []string) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return cellStyle
		})

	if len(args) == 1 {
		prof, program, ok := instrument.Lookup(args[0])
		if !ok {
			return fmt.Errorf("no instrument named %q", args[0])
		}
		t.Headers("Program", "Name", "Key", "Period", "Hz", "Lifetime")
		for _, key := range []uint8{36, 48, 60, 64, 72, 84} {
			v := voice.PeriodFor(prof, key)
			t.Row(strconv.Itoa(int(program)), prof.Name, strconv.Itoa(int(key)),
				fmt.Sprintf("%dus", v), strconv.Itoa(1_000_000/int(v)), lifetime(prof))
		}
		fmt.Fprintln(cmd.OutOrStdout(), t)
		return nil
	}

	t.Headers("Program", "Name", "Base", "Slope", "Lifetime")
	for i, prof := range instrument.All() {
		t.Row(strconv.Itoa(i), prof.Name, fmt.Sprintf("%dus", prof.BasePeriod),
			fmt.Sprintf("%dus/key", prof.SemitoneDelta), lifetime(prof))
	}
	fmt.Fprintln(cmd.OutOrStdout(), t)
	return nil
}
