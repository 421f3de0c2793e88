package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"unicode"

	"github.com/spf13/cobra"

	"github.com/jefflunt/tiny-outcome/internal/outcome"
)

type replayOptions struct {
	tracker trackerFlags
	every   int
}

func newReplayCmd() *cobra.Command {
	var opts replayOptions
	cmd := &cobra.Command{
		Use:   "replay [file]",
		Short: "Feed a recorded 0/1 sequence through a tracker and print its state",
		Long: `Reads outcomes as 0 and 1 characters from file, or stdin when no file is
given. Whitespace and commas between outcomes are ignored.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return runReplay(in, cmd.OutOrStdout(), opts)
		},
	}
	opts.tracker.bind(cmd.Flags())
	cmd.Flags().IntVar(&opts.every, "every", 0, "print the tracker line every N outcomes (0 prints only the final state)")
	return cmd
}

func runReplay(in io.Reader, out io.Writer, opts replayOptions) error {
	settings := opts.tracker.settings()
	tracker, err := settings.NewTracker()
	if err != nil {
		return err
	}

	pushed := 0
	err = scanSamples(in, func(sample int) error {
		if err := tracker.Push(sample); err != nil {
			return err
		}
		pushed++
		if opts.every > 0 && pushed%opts.every == 0 {
			fmt.Fprintf(out, "%6d %s\n", pushed, tracker)
		}
		return nil
	})
	if err != nil {
		return err
	}

	tracker.UpdateStats()
	fmt.Fprintf(out, "final  %s\n", tracker)
	fmt.Fprintf(out, "stats  min=%.4f max=%.4f avg=%.4f\n", tracker.Min(), tracker.Max(), tracker.Avg())
	fmt.Fprintf(out, "value  0x%s\n", tracker.NumericValue().Text(16))
	fmt.Fprintf(out, "winner %t at %.2f\n", tracker.WinnerAt(settings.Threshold), settings.Threshold)

	window := min(settings.LatelyWindow, tracker.Samples())
	if window > 0 {
		lately, err := tracker.WinnerAtLately(settings.Threshold, window)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "lately %t over last %d\n", lately, window)
	}
	return nil
}

// scanSamples calls fn for every 0 or 1 rune in r.
func scanSamples(r io.Reader, fn func(int) error) error {
	br := bufio.NewReader(r)
	for pos := 1; ; pos++ {
		ch, _, err := br.ReadRune()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		switch {
		case ch == '0' || ch == '1':
			if err := fn(int(ch - '0')); err != nil {
				return err
			}
		case ch == ',' || unicode.IsSpace(ch):
		default:
			return fmt.Errorf("%w: %q at offset %d", outcome.ErrInvalidSample, ch, pos)
		}
	}
}
