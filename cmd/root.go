package cmd

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/icco/buzzer/internal/clock"
	"github.com/icco/buzzer/internal/config"
)

var (
	cfgFile     string
	calibration = clock.Identity
	// settings is the config file merged with any flags given on the
	// command line. It is resolved before every subcommand runs.
	settings = config.DefaultConfig()
)

var rootCmd = &cobra.Command{
	Use:   "buzzer",
	Short: "Play MIDI files on square-wave buzzer voices",
	Long: `buzzer plays Standard MIDI Files on a fixed pool of square-wave buzzer voices.

Tracks are merged on the fly and every note is given a voice whose pitch and
length come from the General MIDI program of its channel. On a desktop host the
voices are played through the system audio output; on a microcontroller they
drive GPIO pins directly.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
}

func init() {
	bindFlags(rootCmd.PersistentFlags())
}

func bindFlags(flags *pflag.FlagSet) {
	flags.StringVar(&cfgFile, "config", "", "config file (default ~/.config/buzzer/config.json)")
	flags.IntP("voices", "n", 16, "number of buzzer voices")
	flags.Uint32("tick", 20, "scheduler tick in microseconds")
	flags.Var(&calibration, "calibration", "wait calibration as num/den or a decimal factor")
	flags.BoolP("verbose", "v", false, "log unsupported events and dump song state")
}

func loadSettings(cmd *cobra.Command, _ []string) error {
	var (
		cfg *config.Config
		err error
	)
	if cfgFile != "" {
		cfg, err = config.LoadFrom(cfgFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("voices") {
		cfg.Voices, _ = flags.GetInt("voices")
	}
	if flags.Changed("tick") {
		cfg.TickMicros, _ = flags.GetUint32("tick")
	}
	if flags.Changed("calibration") {
		cfg.Calibration = calibration
	}
	if flags.Changed("verbose") {
		cfg.Verbose, _ = flags.GetBool("verbose")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	settings = cfg
	return nil
}

// saveSettings persists settings to wherever they were loaded from.
func saveSettings() error {
	if cfgFile != "" {
		return settings.SaveTo(cfgFile)
	}
	return settings.Save()
}

// newLogger returns a component logger on stderr.
func newLogger(component string) *log.Logger {
	return log.New(os.Stderr, "["+component+"] ", log.Ltime)
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
