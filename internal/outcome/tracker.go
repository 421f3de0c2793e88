package outcome

import (
	"fmt"
	"math/big"
)

const unset int8 = -1

// Tracker keeps the last precision binary outcomes and the probability of a 1.
// It is not safe for concurrent use; callers must serialize access.
type Tracker struct {
	precision int
	warmup    int

	buffer  []int8
	cursor  int
	samples int
	warmth  int
	ones    int

	probability float64
	min         float64
	max         float64
	avg         float64
}

func New(precision int, warmup Warmup) (*Tracker, error) {
	if precision <= 0 {
		return nil, fmt.Errorf("%w: precision must be positive, got %d", ErrInvalidConfiguration, precision)
	}
	threshold, err := warmup.Threshold(precision)
	if err != nil {
		return nil, err
	}

	buffer := make([]int8, precision)
	for i := range buffer {
		buffer[i] = unset
	}

	return &Tracker{
		precision: precision,
		warmup:    threshold,
		buffer:    buffer,
		min:       1,
		max:       0,
	}, nil
}

// Push records one outcome. On error the tracker is left untouched.
func (t *Tracker) Push(sample int) error {
	if !ValidSample(sample) {
		return fmt.Errorf("%w: %d is not 0 or 1", ErrInvalidSample, sample)
	}

	evictedOne := t.Full() && t.buffer[t.cursor] == 1

	t.buffer[t.cursor] = int8(sample)
	t.cursor = (t.cursor + 1) % t.precision

	if t.warmth < t.warmup {
		t.warmth++
	}
	if t.samples < t.precision {
		t.samples++
	}

	if evictedOne {
		t.ones--
	}
	if sample == 1 {
		t.ones++
	}

	t.probability = float64(t.ones) / float64(t.samples)
	return nil
}

func (t *Tracker) Precision() int {
	return t.precision
}

func (t *Tracker) WarmupThreshold() int {
	return t.warmup
}

func (t *Tracker) Samples() int {
	return t.samples
}

func (t *Tracker) Warmth() int {
	return t.warmth
}

func (t *Tracker) Ones() int {
	return t.ones
}

func (t *Tracker) Probability() float64 {
	return t.probability
}

func (t *Tracker) Warm() bool {
	return t.warmth >= t.warmup
}

func (t *Tracker) Cold() bool {
	return !t.Warm()
}

func (t *Tracker) Full() bool {
	return t.samples == t.precision
}

// WinnerAt does not look at warmth; gate on Warm separately.
func (t *Tracker) WinnerAt(threshold float64) bool {
	return t.probability >= threshold
}

// WinnerAtLately compares the ones fraction of the newest window samples to threshold.
func (t *Tracker) WinnerAtLately(threshold float64, window int) (bool, error) {
	if window <= 0 || window > t.samples {
		return false, fmt.Errorf("%w: %d with %d samples held", ErrInvalidWindow, window, t.samples)
	}

	ones := 0
	for i := t.samples - window; i < t.samples; i++ {
		if t.at(i) == 1 {
			ones++
		}
	}
	return float64(ones)/float64(window) >= threshold, nil
}

// Ordered returns the held samples oldest first.
func (t *Tracker) Ordered() []int {
	out := make([]int, t.samples)
	for i := range out {
		out[i] = int(t.at(i))
	}
	return out
}

// NumericValue reads the ordered samples as a binary number, oldest bit first.
func (t *Tracker) NumericValue() *big.Int {
	v := new(big.Int)
	for i := 0; i < t.samples; i++ {
		if t.at(i) == 1 {
			v.SetBit(v, t.samples-1-i, 1)
		}
	}
	return v
}

// at returns the i-th logical sample, 0 being the oldest held.
func (t *Tracker) at(i int) int8 {
	start := 0
	if t.Full() {
		start = t.cursor
	}
	return t.buffer[(start+i)%t.precision]
}
