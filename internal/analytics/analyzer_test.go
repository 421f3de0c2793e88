package analytics

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jefflunt/tiny-outcome/internal/config"
	"github.com/jefflunt/tiny-outcome/internal/model"
	"github.com/jefflunt/tiny-outcome/internal/outcome"
)

func newTestAnalyzer() *Analyzer {
	cfg := config.Default()
	cfg.Signals = map[string]config.TrackerConfig{
		"small": {Precision: 4, Warmup: "half", Threshold: 0.5, LatelyWindow: 2},
	}
	return NewAnalyzer(cfg, zerolog.Nop())
}

func record(t *testing.T, a *Analyzer, signal string, ts int64, values ...int) model.Snapshot {
	t.Helper()
	var snap model.Snapshot
	for i, v := range values {
		var err error
		snap, err = a.Record(model.Outcome{Signal: signal, Value: v, Timestamp: ts + int64(i)})
		require.NoError(t, err)
	}
	return snap
}

func TestRecordAndSnapshot(t *testing.T) {
	a := newTestAnalyzer()

	snap := record(t, a, "small", 10, 1, 0, 1)
	assert.Equal(t, 1.0, snap.Min, "record must not refresh stats")
	assert.Equal(t, 0.0, snap.Max)
	assert.Empty(t, snap.Diagnostic)
	assert.Empty(t, snap.Register)

	got, err := a.Snapshot("small")
	require.NoError(t, err)

	want := model.Snapshot{
		Signal:          "small",
		Precision:       4,
		WarmupThreshold: 2,
		Samples:         3,
		Warmth:          2,
		Ones:            2,
		Probability:     2.0 / 3,
		Min:             2.0 / 3,
		Max:             2.0 / 3,
		Avg:             2.0 / 3,
		Warm:            true,
		Full:            false,
		Winner:          true,
		Lately:          true,
		Diagnostic:      "L10 ???????101 W 0.67 2/2::3/4",
		Register:        "5",
		UpdatedAt:       12,
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordUsesDefaultTracker(t *testing.T) {
	a := newTestAnalyzer()
	snap := record(t, a, "other", 1, 1)

	assert.Equal(t, 500, snap.Precision)
	assert.Equal(t, 166, snap.WarmupThreshold)
	assert.False(t, snap.Warm)
	assert.True(t, snap.Winner)
}

func TestRecordFillsTimestamp(t *testing.T) {
	a := newTestAnalyzer()
	snap, err := a.Record(model.Outcome{Signal: "small", Value: 1})
	require.NoError(t, err)
	assert.NotZero(t, snap.UpdatedAt)
}

func TestRecordRejectsInvalidInput(t *testing.T) {
	a := newTestAnalyzer()

	_, err := a.Record(model.Outcome{Signal: "", Value: 1})
	assert.ErrorIs(t, err, ErrEmptySignal)

	_, err = a.Record(model.Outcome{Signal: "small", Value: 3})
	assert.ErrorIs(t, err, outcome.ErrInvalidSample)
	assert.Empty(t, a.Signals())
}

func TestRecordRejectsBadSignalConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Signals = map[string]config.TrackerConfig{"broken": {Warmup: "sometimes"}}
	a := NewAnalyzer(cfg, zerolog.Nop())

	_, err := a.Record(model.Outcome{Signal: "broken", Value: 1})
	assert.ErrorIs(t, err, outcome.ErrInvalidConfiguration)
}

func TestRecordCapsSignals(t *testing.T) {
	a := newTestAnalyzer()
	a.cfg.MaxSignals = 2

	record(t, a, "small", 1, 1)
	record(t, a, "other", 1, 0)

	_, err := a.Record(model.Outcome{Signal: "third", Value: 1})
	assert.ErrorIs(t, err, ErrTooManySignals)
	assert.Equal(t, []string{"other", "small"}, a.Signals())

	// held signals keep recording at the cap
	snap := record(t, a, "small", 2, 1)
	assert.Equal(t, 2, snap.Samples)
}

func TestUnknownSignal(t *testing.T) {
	a := newTestAnalyzer()

	_, err := a.Snapshot("nope")
	assert.ErrorIs(t, err, ErrUnknownSignal)
	_, err = a.Lately("nope", 0.5, 1)
	assert.ErrorIs(t, err, ErrUnknownSignal)
}

func TestLately(t *testing.T) {
	a := newTestAnalyzer()
	record(t, a, "small", 1, 0, 0, 1, 1)

	won, err := a.Lately("small", 1, 2)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = a.Lately("small", 0.6, 4)
	require.NoError(t, err)
	assert.False(t, won)

	_, err = a.Lately("small", 0.5, 5)
	assert.ErrorIs(t, err, outcome.ErrInvalidWindow)
	_, err = a.Lately("small", 0.5, 0)
	assert.ErrorIs(t, err, outcome.ErrInvalidWindow)
}

func TestTransitions(t *testing.T) {
	a := newTestAnalyzer()
	record(t, a, "small", 100, 1, 1, 0, 0, 1, 1)

	assert.Equal(t, []model.Transition{
		{Signal: "small", Kind: model.TransitionWarm, Samples: 2, Timestamp: 101},
		{Signal: "small", Kind: model.TransitionFull, Samples: 4, Timestamp: 103},
	}, a.Transitions())
}

func TestTransitionLogIsBounded(t *testing.T) {
	a := newTestAnalyzer()
	a.maxTransitions = 3

	for _, name := range []string{"small", "a", "b"} {
		a.cfg.Signals[name] = config.TrackerConfig{Precision: 1, Warmup: "full"}
		record(t, a, name, 1, 1)
	}

	got := a.Transitions()
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].Signal)
	assert.Equal(t, model.TransitionFull, got[0].Kind)
	assert.Equal(t, "b", got[2].Signal)
}

func TestSignalsSorted(t *testing.T) {
	a := newTestAnalyzer()
	record(t, a, "zeta", 1, 1)
	record(t, a, "alpha", 1, 0)
	record(t, a, "small", 1, 1)

	assert.Equal(t, []string{"alpha", "small", "zeta"}, a.Signals())
}

func TestConcurrentRecord(t *testing.T) {
	a := newTestAnalyzer()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_, _ = a.Record(model.Outcome{Signal: "shared", Value: (w + i) % 2, Timestamp: 1})
				_, _ = a.Snapshot("shared")
			}
		}(w)
	}
	wg.Wait()

	snap, err := a.Snapshot("shared")
	require.NoError(t, err)
	assert.Equal(t, 500, snap.Samples)
	assert.True(t, snap.Full)
	assert.LessOrEqual(t, snap.Ones, snap.Samples)
}
