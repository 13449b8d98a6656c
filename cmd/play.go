package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"
	"github.com/sqweek/dialog"

	"github.com/icco/buzzer/internal/clock"
	"github.com/icco/buzzer/internal/player"
	"github.com/icco/buzzer/internal/source"
	"github.com/icco/buzzer/internal/voice"
)

var (
	playSilent   bool
	playNoKnob   bool
	playFirstEnd bool
)

var playCmd = &cobra.Command{
	Use:   "play [file.mid]",
	Short: "Play a MIDI file on the buzzer voices",
	Long: `Play a Standard MIDI File on the buzzer voices, then hand the first voice to the
knob so it can be retuned with the arrow keys.

Without a file argument a file chooser is opened.

Example:
  buzzer play song.mid --voices 8
`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlay,
}

func init() {
	playCmd.Flags().BoolVar(&playSilent, "silent", false, "drive counting lines instead of the audio output")
	playCmd.Flags().BoolVar(&playNoKnob, "no-knob", false, "exit when the song ends")
	playCmd.Flags().BoolVar(&playFirstEnd, "first-track-end", false, "stop at the first end of track")
	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	path, err := choosePath(args)
	if err != nil {
		if errors.Is(err, dialog.ErrCancelled) {
			return errors.New("no file chosen")
		}
		return err
	}

	f, err := loadSong(path)
	if err != nil {
		return err
	}

	logger := newLogger("player")
	if playSilent {
		settings.Audio.Enabled = false
	}
	out := openOutput(settings, logger)
	defer out.Close()

	pool := voice.NewPool(out.lines, newLogger("voice"))
	p := player.New(pool, clock.Spin{}, player.Options{
		TickMicros:         settings.TickMicros,
		Calibration:        settings.Calibration,
		EndOnFirstTrackEnd: settings.EndOnFirstTrackEnd || playFirstEnd,
		Verbose:            settings.Verbose,
	}, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := p.Play(ctx, f); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	out.report(logger)
	if settings.Verbose {
		spew.Fdump(os.Stderr, p.Metadata())
	}

	settings.LastFile = path
	if err := saveSettings(); err != nil {
		logger.Printf("could not remember %s: %v", path, err)
	}

	if playNoKnob || ctx.Err() != nil {
		return nil
	}
	return runKnobSession(ctx, pool.Voices()[0], filepath.Base(path)+", "+f.Describe())
}

func loadSong(path string) (*source.File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-chosen song
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}
	f, err := source.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("error loading %s: %w", path, err)
	}
	return f, nil
}

// choosePath returns the file path either from the command-line args
// or from an interactive file dialog.
func choosePath(args []string) (string, error) {
	if len(args) > 0 {
		absPath, err := filepath.Abs(args[0])
		if err != nil {
			return "", fmt.Errorf("cannot get absolute path: %w", err)
		}
		if err := validatePath(absPath); err != nil {
			return "", fmt.Errorf("passed argument is not a valid path: %w", err)
		}
		return absPath, nil
	}

	startDir, err := os.Getwd()
	if err != nil {
		startDir = "."
	}
	if settings.LastFile != "" {
		startDir = filepath.Dir(settings.LastFile)
	}

	path, err := dialog.
		File().
		Title("Open MIDI file").
		Filter("MIDI files (*.mid, *.midi)", "mid", "midi").
		SetStartDir(startDir).
		Load()
	if err != nil {
		// Caller checks for dialog.ErrCancelled.
		return "", err
	}
	if path == "" {
		return "", dialog.ErrCancelled
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("cannot get absolute path: %w", err)
	}
	if err := validatePath(absPath); err != nil {
		return "", fmt.Errorf("dialog selection invalid: %w", err)
	}
	return absPath, nil
}

// validatePath checks that p names an existing MIDI file.
func validatePath(p string) error {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".mid", ".midi":
	default:
		return fmt.Errorf("file must have a .mid or .midi extension")
	}
	if _, err := os.Stat(p); err != nil {
		return fmt.Errorf("cannot stat file: %w", err)
	}
	return nil
}
