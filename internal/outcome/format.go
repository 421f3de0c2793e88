package outcome

import (
	"fmt"
	"strings"
)

const recentShown = 10

// String renders a one-line summary for logs, e.g.
//
//	L10 ?????????1 c 1.00 1/166::1/500
func (t *Tracker) String() string {
	var b strings.Builder
	b.WriteString("L10 ")

	shown := t.samples
	if shown > recentShown {
		shown = recentShown
	}
	b.WriteString(strings.Repeat("?", recentShown-shown))
	for i := t.samples - shown; i < t.samples; i++ {
		b.WriteByte('0' + byte(t.at(i)))
	}

	state := "c"
	if t.Warm() {
		state = "W"
	}
	fmt.Fprintf(&b, " %s %.2f %d/%d::%d/%d", state, t.probability, t.warmth, t.warmup, t.samples, t.precision)
	return b.String()
}
