package outcome

import (
	"github.com/montanaflynn/stats"
)

// MaxStatsWindow caps the window length used by UpdateStats.
const MaxStatsWindow = 100

// UpdateStats recomputes Min, Max and Avg over every contiguous window of
// min(samples, MaxStatsWindow) logical samples. Push never calls it.
func (t *Tracker) UpdateStats() {
	if t.samples == 0 {
		return
	}

	size := t.samples
	if size > MaxStatsWindow {
		size = MaxStatsWindow
	}
	fractions := make(stats.Float64Data, 0, t.samples-size+1)

	ones := 0
	for i := 0; i < size; i++ {
		ones += int(t.at(i))
	}
	fractions = append(fractions, float64(ones)/float64(size))
	for end := size; end < t.samples; end++ {
		ones += int(t.at(end)) - int(t.at(end-size))
		fractions = append(fractions, float64(ones)/float64(size))
	}

	// fractions is never empty, so the errors are always nil
	t.min, _ = fractions.Min()
	t.max, _ = fractions.Max()
	t.avg, _ = fractions.Mean()
}

// Min is the lowest windowed ones fraction as of the last UpdateStats.
func (t *Tracker) Min() float64 {
	return t.min
}

func (t *Tracker) Max() float64 {
	return t.max
}

func (t *Tracker) Avg() float64 {
	return t.avg
}
