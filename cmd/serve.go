package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/jefflunt/tiny-outcome/internal/analytics"
	"github.com/jefflunt/tiny-outcome/internal/config"
	"github.com/jefflunt/tiny-outcome/internal/model"
	"github.com/jefflunt/tiny-outcome/internal/outcome"
	"github.com/jefflunt/tiny-outcome/internal/persistence"
)

type snapshotStore interface {
	Check(ctx context.Context) error
	Stop() error
	Save(ctx context.Context, o model.Outcome, snap model.Snapshot) error
	FetchLatest(ctx context.Context, signal string) (*model.Snapshot, error)
	Recent(ctx context.Context, signal string, n int) ([]model.Outcome, error)
}

type app struct {
	cfg      *config.Config
	store    snapshotStore
	analyzer *analytics.Analyzer
	limiter  *rate.Limiter
	queue    chan model.Outcome
	ctx      context.Context
	cancel   context.CancelFunc
	registry *prometheus.Registry
	prom     promMetrics
	logger   zerolog.Logger
}

func newServeCmd() *cobra.Command {
	var flags serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP ingest and query service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(flags)
		},
	}
	flags.bind(cmd.Flags())
	return cmd
}

func runServe(flags serveFlags) error {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	if flags.addr != "" {
		cfg.HTTP.Addr = flags.addr
	}
	if err := setupLogging(cfg.Log); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// a nil *SnapshotStore must not end up inside the interface
	var store snapshotStore
	if cfg.Redis.Enabled {
		s := persistence.NewSnapshotStore(cfg.Redis, log.Logger)
		if err := s.Check(ctx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis ping failed")
		}
		store = s
	}

	analyzer := analytics.NewAnalyzer(cfg, log.Logger)
	service := newApp(ctx, cfg, store, analyzer, log.Logger)
	go service.workerLoop()

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           service.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen failed")
		}
	}()

	awaitSignal(cancel)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown error")
	}
	if store != nil {
		if err := store.Stop(); err != nil {
			log.Error().Err(err).Msg("redis close error")
		}
	}
	return nil
}

func newApp(ctx context.Context, cfg *config.Config, store snapshotStore, analyzer *analytics.Analyzer, logger zerolog.Logger) *app {
	service := &app{
		cfg:      cfg,
		store:    store,
		analyzer: analyzer,
		limiter:  rate.NewLimiter(rate.Limit(cfg.HTTP.RateLimit), cfg.HTTP.Burst),
		queue:    make(chan model.Outcome, cfg.HTTP.QueueSize),
		registry: prometheus.NewRegistry(),
		prom:     buildPromMetrics(),
		logger:   logger,
	}
	service.ctx, service.cancel = context.WithCancel(ctx)
	service.prom.register(service.registry)

	return service
}

func (a *app) router() http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/health", a.healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/ingest", a.ingestHandler).Methods(http.MethodPost)
	r.HandleFunc("/signals", a.signalsHandler).Methods(http.MethodGet)
	r.HandleFunc("/signals/{signal}", a.snapshotHandler).Methods(http.MethodGet)
	r.HandleFunc("/signals/{signal}/lately", a.latelyHandler).Methods(http.MethodGet)
	r.HandleFunc("/signals/{signal}/recent", a.recentHandler).Methods(http.MethodGet)
	r.HandleFunc("/transitions", a.transitionsHandler).Methods(http.MethodGet)
	r.HandleFunc("/latest", a.latestHandler).Methods(http.MethodGet)
	return r
}

func (a *app) healthHandler(w http.ResponseWriter, r *http.Request) {
	if a.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := a.store.Check(ctx); err != nil {
			writeText(w, http.StatusServiceUnavailable, "redis unavailable")
			return
		}
	}
	writeText(w, http.StatusOK, "ok")
}

// ingestRequest mirrors model.Outcome with Value as a pointer so a missing
// value is told apart from 0.
type ingestRequest struct {
	Signal    string `json:"signal"`
	Value     *int   `json:"value"`
	Timestamp int64  `json:"timestamp"`
}

func (a *app) ingestHandler(w http.ResponseWriter, r *http.Request) {
	if !a.limiter.Allow() {
		a.prom.rateLimitedTotal.Inc()
		writeText(w, http.StatusTooManyRequests, "rate limited")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req ingestRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&req); err != nil {
		a.prom.badReqTotal.Inc()
		writeText(w, http.StatusBadRequest, "invalid json")
		return
	}

	if req.Signal == "" {
		a.prom.badReqTotal.Inc()
		writeText(w, http.StatusBadRequest, "signal is required")
		return
	}
	if req.Value == nil {
		a.prom.badReqTotal.Inc()
		writeText(w, http.StatusBadRequest, "value is required")
		return
	}
	if !outcome.ValidSample(*req.Value) {
		a.prom.badReqTotal.Inc()
		writeText(w, http.StatusBadRequest, "value must be 0 or 1")
		return
	}

	o := model.Outcome{Signal: req.Signal, Value: *req.Value, Timestamp: req.Timestamp}
	if o.Timestamp == 0 {
		o.Timestamp = time.Now().Unix()
	}

	select {
	case a.queue <- o:
		a.prom.ingestedTotal.Inc()
		writeText(w, http.StatusAccepted, "accepted")
	default:
		a.prom.queueFullTotal.Inc()
		writeText(w, http.StatusServiceUnavailable, "queue full")
	}
}

func (a *app) signalsHandler(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, a.analyzer.Signals())
}

func (a *app) snapshotHandler(w http.ResponseWriter, r *http.Request) {
	snap, err := a.analyzer.Snapshot(mux.Vars(r)["signal"])
	if err != nil {
		a.writeAnalyzerError(w, err)
		return
	}
	a.prom.observeStats(snap)
	respondJSON(w, snap)
}

type latelyResponse struct {
	Signal    string  `json:"signal"`
	Threshold float64 `json:"threshold"`
	Window    int     `json:"window"`
	Winner    bool    `json:"winner"`
}

func (a *app) latelyHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["signal"]
	settings := a.cfg.TrackerFor(name)
	res := latelyResponse{Signal: name, Threshold: settings.Threshold, Window: settings.LatelyWindow}

	q := r.URL.Query()
	if v := q.Get("threshold"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeText(w, http.StatusBadRequest, "invalid threshold")
			return
		}
		res.Threshold = parsed
	}
	if v := q.Get("window"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			writeText(w, http.StatusBadRequest, "invalid window")
			return
		}
		res.Window = parsed
	}

	winner, err := a.analyzer.Lately(name, res.Threshold, res.Window)
	if err != nil {
		a.writeAnalyzerError(w, err)
		return
	}
	res.Winner = winner
	respondJSON(w, res)
}

func (a *app) recentHandler(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		writeText(w, http.StatusServiceUnavailable, "redis disabled")
		return
	}

	n := 0
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			writeText(w, http.StatusBadRequest, "invalid n")
			return
		}
		n = parsed
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	recent, err := a.store.Recent(ctx, mux.Vars(r)["signal"], n)
	if err != nil {
		a.logger.Error().Err(err).Msg("redis recent failed")
		writeText(w, http.StatusInternalServerError, "redis error")
		return
	}
	respondJSON(w, recent)
}

func (a *app) transitionsHandler(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, a.analyzer.Transitions())
}

// latestHandler serves the snapshot last published for a signal. Min, Max and
// Avg in it are as of the last /signals/{signal} request, and stay at 1/0/0
// until one is made.
func (a *app) latestHandler(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		writeText(w, http.StatusServiceUnavailable, "redis disabled")
		return
	}

	name := r.URL.Query().Get("signal")
	if name == "" {
		writeText(w, http.StatusBadRequest, "signal is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	snap, err := a.store.FetchLatest(ctx, name)
	if err != nil {
		a.logger.Error().Err(err).Msg("redis fetch failed")
		writeText(w, http.StatusInternalServerError, "redis error")
		return
	}
	if snap == nil {
		writeText(w, http.StatusNotFound, "no data")
		return
	}

	respondJSON(w, snap)
}

func (a *app) writeAnalyzerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, analytics.ErrUnknownSignal):
		writeText(w, http.StatusNotFound, "unknown signal")
	case errors.Is(err, outcome.ErrInvalidWindow):
		writeText(w, http.StatusBadRequest, err.Error())
	default:
		a.logger.Error().Err(err).Msg("analyzer error")
		writeText(w, http.StatusInternalServerError, "internal error")
	}
}

func (a *app) workerLoop() {
	for {
		select {
		case <-a.ctx.Done():
			return
		case o := <-a.queue:
			a.process(o)
		}
	}
}

func (a *app) process(o model.Outcome) {
	start := time.Now()
	defer func() {
		a.prom.procTimeSeconds.Observe(time.Since(start).Seconds())
	}()

	snap, err := a.analyzer.Record(o)
	if err != nil {
		a.prom.recordErrTotal.Inc()
		a.logger.Warn().Err(err).Str("signal", o.Signal).Msg("record failed")
		return
	}
	a.prom.observeSnapshot(snap)

	if a.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(a.ctx, 2*time.Second)
	defer cancel()
	if err := a.store.Save(ctx, o, snap); err != nil {
		a.prom.publishErrTotal.Inc()
		a.logger.Error().Err(err).Str("signal", o.Signal).Msg("snapshot publish failed")
	}
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}

func respondJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func awaitSignal(cancel context.CancelFunc) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancel()
	log.Info().Msg("shutdown signal received")
}
