package analytics

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"github.com/rs/zerolog"

	"github.com/jefflunt/tiny-outcome/internal/config"
	"github.com/jefflunt/tiny-outcome/internal/model"
	"github.com/jefflunt/tiny-outcome/internal/outcome"
)

const defaultTransitionLog = 256

var (
	ErrUnknownSignal  = errors.New("unknown signal")
	ErrEmptySignal    = errors.New("signal name is required")
	ErrTooManySignals = errors.New("signal limit reached")
)

type signalState struct {
	tracker   *outcome.Tracker
	settings  config.TrackerConfig
	updatedAt int64
}

// Analyzer owns one tracker per signal and serializes every access to them.
type Analyzer struct {
	cfg    *config.Config
	logger zerolog.Logger
	now    func() time.Time

	mu             sync.RWMutex
	signals        map[string]*signalState
	transitions    deque.Deque[model.Transition]
	maxTransitions int
}

func NewAnalyzer(cfg *config.Config, logger zerolog.Logger) *Analyzer {
	return &Analyzer{
		cfg:            cfg,
		logger:         logger,
		now:            time.Now,
		signals:        make(map[string]*signalState),
		maxTransitions: defaultTransitionLog,
	}
}

// Record pushes o into its signal's tracker, creating the tracker on first use.
// Windowed stats in the returned snapshot are as of the last Snapshot call, and
// Diagnostic and Register are left empty.
func (a *Analyzer) Record(o model.Outcome) (model.Snapshot, error) {
	if o.Signal == "" {
		return model.Snapshot{}, ErrEmptySignal
	}
	if !outcome.ValidSample(o.Value) {
		return model.Snapshot{}, fmt.Errorf("%w: %d is not 0 or 1", outcome.ErrInvalidSample, o.Value)
	}
	if o.Timestamp == 0 {
		o.Timestamp = a.now().Unix()
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	st, err := a.stateLocked(o.Signal)
	if err != nil {
		return model.Snapshot{}, err
	}

	wasWarm, wasFull := st.tracker.Warm(), st.tracker.Full()
	if err := st.tracker.Push(o.Value); err != nil {
		return model.Snapshot{}, err
	}
	st.updatedAt = o.Timestamp

	if !wasWarm && st.tracker.Warm() {
		a.appendTransitionLocked(o.Signal, model.TransitionWarm, st.tracker.Samples(), o.Timestamp)
	}
	if !wasFull && st.tracker.Full() {
		a.appendTransitionLocked(o.Signal, model.TransitionFull, st.tracker.Samples(), o.Timestamp)
	}

	return snapshotOf(o.Signal, st), nil
}

// Snapshot refreshes the windowed stats of signal and returns its state.
func (a *Analyzer) Snapshot(signal string) (model.Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	st, ok := a.signals[signal]
	if !ok {
		return model.Snapshot{}, fmt.Errorf("%w: %q", ErrUnknownSignal, signal)
	}
	st.tracker.UpdateStats()

	snap := snapshotOf(signal, st)
	snap.Diagnostic = st.tracker.String()
	snap.Register = st.tracker.NumericValue().Text(16)
	return snap, nil
}

func (a *Analyzer) Lately(signal string, threshold float64, window int) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	st, ok := a.signals[signal]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownSignal, signal)
	}
	return st.tracker.WinnerAtLately(threshold, window)
}

func (a *Analyzer) Signals() []string {
	a.mu.RLock()
	names := make([]string, 0, len(a.signals))
	for name := range a.signals {
		names = append(names, name)
	}
	a.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Transitions returns the retained latch transitions, oldest first.
func (a *Analyzer) Transitions() []model.Transition {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]model.Transition, a.transitions.Len())
	for i := range out {
		out[i] = a.transitions.At(i)
	}
	return out
}

func (a *Analyzer) stateLocked(signal string) (*signalState, error) {
	if st, ok := a.signals[signal]; ok {
		return st, nil
	}
	if len(a.signals) >= a.cfg.MaxSignals {
		return nil, fmt.Errorf("%w: %d signals held, %q refused", ErrTooManySignals, len(a.signals), signal)
	}

	settings := a.cfg.TrackerFor(signal)
	tracker, err := settings.NewTracker()
	if err != nil {
		return nil, fmt.Errorf("tracker for %q: %w", signal, err)
	}
	st := &signalState{tracker: tracker, settings: settings}
	a.signals[signal] = st

	a.logger.Debug().
		Str("signal", signal).
		Int("precision", tracker.Precision()).
		Int("warmup", tracker.WarmupThreshold()).
		Msg("tracker created")
	return st, nil
}

func (a *Analyzer) appendTransitionLocked(signal string, kind model.TransitionKind, samples int, ts int64) {
	a.transitions.PushBack(model.Transition{
		Signal:    signal,
		Kind:      kind,
		Samples:   samples,
		Timestamp: ts,
	})
	for a.transitions.Len() > a.maxTransitions {
		a.transitions.PopFront()
	}

	a.logger.Info().
		Str("signal", signal).
		Str("kind", string(kind)).
		Int("samples", samples).
		Msg("tracker transition")
}

func snapshotOf(signal string, st *signalState) model.Snapshot {
	t := st.tracker

	lately := false
	if window := min(st.settings.LatelyWindow, t.Samples()); window > 0 {
		// window is within (0, samples], so the error is impossible
		lately, _ = t.WinnerAtLately(st.settings.Threshold, window)
	}

	return model.Snapshot{
		Signal:          signal,
		Precision:       t.Precision(),
		WarmupThreshold: t.WarmupThreshold(),
		Samples:         t.Samples(),
		Warmth:          t.Warmth(),
		Ones:            t.Ones(),
		Probability:     t.Probability(),
		Min:             t.Min(),
		Max:             t.Max(),
		Avg:             t.Avg(),
		Warm:            t.Warm(),
		Full:            t.Full(),
		Winner:          t.WinnerAt(st.settings.Threshold),
		Lately:          lately,
		UpdatedAt:       st.updatedAt,
	}
}
