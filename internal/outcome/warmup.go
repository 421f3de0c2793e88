package outcome

import (
	"fmt"
	"strconv"
	"strings"
)

// WarmupPolicy names how many samples a tracker needs before it is warm.
type WarmupPolicy int

const (
	warmupUnset WarmupPolicy = iota
	WarmupFull
	WarmupTwoThirds
	WarmupHalf
	WarmupOneThird
	WarmupNone
	WarmupExplicit
)

var policyNames = map[WarmupPolicy]string{
	WarmupFull:      "full",
	WarmupTwoThirds: "two_thirds",
	WarmupHalf:      "half",
	WarmupOneThird:  "one_third",
	WarmupNone:      "none",
}

// Warmup is either a named policy or an explicit sample count.
// The zero value is invalid.
type Warmup struct {
	policy  WarmupPolicy
	samples int
}

var (
	Full      = Warmup{policy: WarmupFull}
	TwoThirds = Warmup{policy: WarmupTwoThirds}
	Half      = Warmup{policy: WarmupHalf}
	OneThird  = Warmup{policy: WarmupOneThird}
	NoWarmup  = Warmup{policy: WarmupNone}
)

// WarmupSamples returns an explicit warmup of n pushes.
func WarmupSamples(n int) Warmup {
	return Warmup{policy: WarmupExplicit, samples: n}
}

// ParseWarmup accepts a policy name or a positive integer.
func ParseWarmup(s string) (Warmup, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	for policy, name := range policyNames {
		if v == name {
			return Warmup{policy: policy}, nil
		}
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return Warmup{}, fmt.Errorf("%w: unknown warmup %q", ErrInvalidConfiguration, s)
	}
	return WarmupSamples(n), nil
}

func (w Warmup) Policy() WarmupPolicy {
	return w.policy
}

func (w Warmup) String() string {
	if w.policy == WarmupExplicit {
		return strconv.Itoa(w.samples)
	}
	if name, ok := policyNames[w.policy]; ok {
		return name
	}
	return "invalid"
}

// Threshold resolves the warmup against a precision.
func (w Warmup) Threshold(precision int) (int, error) {
	switch w.policy {
	case WarmupFull:
		return precision, nil
	case WarmupTwoThirds:
		return precision / 3 * 2, nil
	case WarmupHalf:
		return precision / 2, nil
	case WarmupOneThird:
		return precision / 3, nil
	case WarmupNone:
		return 0, nil
	case WarmupExplicit:
		if w.samples < 1 {
			return 0, fmt.Errorf("%w: warmup must be positive, got %d", ErrInvalidConfiguration, w.samples)
		}
		if w.samples > precision {
			return 0, fmt.Errorf("%w: warmup %d exceeds precision %d", ErrInvalidConfiguration, w.samples, precision)
		}
		return w.samples, nil
	default:
		return 0, fmt.Errorf("%w: unknown warmup policy %d", ErrInvalidConfiguration, w.policy)
	}
}
