package outcome

import "errors"

var (
	ErrInvalidConfiguration = errors.New("invalid tracker configuration")
	ErrInvalidSample        = errors.New("invalid sample")
	ErrInvalidWindow        = errors.New("invalid window")
)

// ValidSample reports whether v can be pushed into a tracker.
func ValidSample(v int) bool {
	return v == 0 || v == 1
}
