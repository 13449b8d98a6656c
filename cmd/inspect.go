package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"github.com/icco/buzzer/internal/clock"
	"github.com/icco/buzzer/internal/gpio"
	"github.com/icco/buzzer/internal/player"
	"github.com/icco/buzzer/internal/song"
	"github.com/icco/buzzer/internal/source"
	"github.com/icco/buzzer/internal/timeline"
	"github.com/icco/buzzer/internal/voice"
)

var inspectEvents bool

var inspectCmd = &cobra.Command{
	Use:   "inspect file.mid",
	Short: "Describe a MIDI file and simulate its playback",
	Long: `Print the header and event summary of a MIDI file, then play it offline on silent
voices to report its length, peak polyphony and any notes the voice pool would drop.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().BoolVarP(&inspectEvents, "events", "e", false, "print every merged event")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	f, err := loadSong(args[0])
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, f.Describe())

	meta, err := song.New(f.TicksPerQuarter)
	if err != nil {
		return err
	}
	counts := summarize(w, f, meta)
	kinds := make([]source.Kind, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, k := range kinds {
		fmt.Fprintf(w, "%6d %s\n", counts[k], k)
	}
	fmt.Fprintf(w, "final state: %s\n", meta)
	if settings.Verbose {
		spew.Fdump(w, meta)
	}

	f.Rewind()
	stats, err := simulate(cmd.Context(), f)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "length %s, %d note(s), peak %d/%d voices, %d dropped\n",
		stats.length.Round(time.Millisecond), stats.notes, stats.peak, settings.Voices, stats.dropped)
	return nil
}

// summarize walks the merged song once, applying its meta events to meta.
func summarize(w io.Writer, f *source.File, meta *song.Metadata) map[source.Kind]int {
	counts := make(map[source.Kind]int)
	m := timeline.New(f.Tracks, newLogger("timeline"))
	for {
		step, ok := m.Next()
		if !ok {
			break
		}
		counts[step.Event.Kind]++
		meta.Apply(step.Event)
		if inspectEvents {
			fmt.Fprintf(w, "%8d t%-2d %s\n", step.Tick, step.Track, step.Event)
		}
	}
	return counts
}

type simulation struct {
	length  time.Duration
	notes   int
	peak    int
	dropped int
}

// simulate plays f on a silent bank without waiting.
func simulate(ctx context.Context, f *source.File) (simulation, error) {
	var (
		stats simulation
		delay clock.Counter
	)
	bank := gpio.NewBank(settings.Voices)
	pool := voice.NewPool(bank.Lines(), quietLogger())
	p := player.New(pool, &delay, player.Options{
		TickMicros:         settings.TickMicros,
		Calibration:        clock.Identity,
		EndOnFirstTrackEnd: settings.EndOnFirstTrackEnd,
		Trace: func(step timeline.Step, v *voice.Voice, err error) {
			if step.Event.Kind != source.NoteOn || step.Event.Velocity == 0 {
				return
			}
			stats.notes++
			if errors.Is(err, voice.ErrNoFreeVoice) {
				stats.dropped++
			}
			stats.peak = max(stats.peak, pool.Active())
		},
	}, quietLogger())

	if err := p.Play(ctx, f); err != nil {
		return stats, err
	}
	stats.length = time.Duration(delay.Micros) * time.Microsecond //nolint:gosec // song length
	return stats, nil
}
