package main

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jefflunt/tiny-outcome/internal/model"
)

type promMetrics struct {
	ingestedTotal    prometheus.Counter
	badReqTotal      prometheus.Counter
	queueFullTotal   prometheus.Counter
	rateLimitedTotal prometheus.Counter
	recordErrTotal   prometheus.Counter
	publishErrTotal  prometheus.Counter
	procTimeSeconds  prometheus.Histogram

	probability *prometheus.GaugeVec
	samples     *prometheus.GaugeVec
	ones        *prometheus.GaugeVec
	warm        *prometheus.GaugeVec
	full        *prometheus.GaugeVec
	windowMin   *prometheus.GaugeVec
	windowMax   *prometheus.GaugeVec
	windowAvg   *prometheus.GaugeVec
}

func buildPromMetrics() promMetrics {
	signalGauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, []string{"signal"})
	}

	return promMetrics{
		ingestedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outcome_ingest_total",
			Help: "Total outcomes accepted for processing",
		}),
		badReqTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outcome_ingest_bad_request_total",
			Help: "Total rejected ingest requests",
		}),
		queueFullTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outcome_ingest_queue_full_total",
			Help: "Total ingest requests rejected because queue is full",
		}),
		rateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outcome_ingest_rate_limited_total",
			Help: "Total ingest requests rejected by the rate limiter",
		}),
		recordErrTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outcome_record_error_total",
			Help: "Total outcomes the analyzer could not record",
		}),
		publishErrTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outcome_publish_error_total",
			Help: "Total failed snapshot publishes to redis",
		}),
		procTimeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "outcome_processing_seconds",
			Help:    "Latency for recording and publishing one outcome",
			Buckets: prometheus.DefBuckets,
		}),
		probability: signalGauge("outcome_probability", "Fraction of 1 outcomes held in the window"),
		samples:     signalGauge("outcome_samples", "Outcomes held in the window"),
		ones:        signalGauge("outcome_ones", "1 outcomes held in the window"),
		warm:        signalGauge("outcome_warm", "1 once the tracker has warmed up"),
		full:        signalGauge("outcome_full", "1 once the window has filled"),
		windowMin:   signalGauge("outcome_window_min", "Lowest windowed ones fraction at the last stats refresh"),
		windowMax:   signalGauge("outcome_window_max", "Highest windowed ones fraction at the last stats refresh"),
		windowAvg:   signalGauge("outcome_window_avg", "Mean windowed ones fraction at the last stats refresh"),
	}
}

func (m promMetrics) register(reg prometheus.Registerer) {
	reg.MustRegister(
		m.ingestedTotal,
		m.badReqTotal,
		m.queueFullTotal,
		m.rateLimitedTotal,
		m.recordErrTotal,
		m.publishErrTotal,
		m.procTimeSeconds,
		m.probability,
		m.samples,
		m.ones,
		m.warm,
		m.full,
		m.windowMin,
		m.windowMax,
		m.windowAvg,
	)
}

func (m promMetrics) observeSnapshot(s model.Snapshot) {
	m.probability.WithLabelValues(s.Signal).Set(s.Probability)
	m.samples.WithLabelValues(s.Signal).Set(float64(s.Samples))
	m.ones.WithLabelValues(s.Signal).Set(float64(s.Ones))
	m.warm.WithLabelValues(s.Signal).Set(boolGauge(s.Warm))
	m.full.WithLabelValues(s.Signal).Set(boolGauge(s.Full))
}

func (m promMetrics) observeStats(s model.Snapshot) {
	m.observeSnapshot(s)
	m.windowMin.WithLabelValues(s.Signal).Set(s.Min)
	m.windowMax.WithLabelValues(s.Signal).Set(s.Max)
	m.windowAvg.WithLabelValues(s.Signal).Set(s.Avg)
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
