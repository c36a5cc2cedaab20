package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	shiftOpenedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "shiftsync",
		Subsystem: "shifts",
		Name:      "last_shift_opened_timestamp_seconds",
		Help:      "Unix timestamp of the most recent shift opened.",
	})
	shiftClosedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "shiftsync",
		Subsystem: "shifts",
		Name:      "last_shift_closed_timestamp_seconds",
		Help:      "Unix timestamp of the most recent shift closed.",
	})
	autoEndedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "shiftsync",
		Subsystem: "shifts",
		Name:      "auto_ended_total",
		Help:      "Number of shifts force-closed after exceeding the maximum duration.",
	})
	replayRejectionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shiftsync",
		Subsystem: "shifts",
		Name:      "replay_rejections_total",
		Help:      "Clock actions refused by the state machine, labeled by action.",
	}, []string{"action"})
)

func init() {
	prometheus.MustRegister(shiftOpenedGauge, shiftClosedGauge, autoEndedCounter, replayRejectionCounter)
}

// RecordShiftOpened updates the open watermark gauge.
func RecordShiftOpened(ts time.Time) {
	if ts.IsZero() {
		return
	}
	shiftOpenedGauge.Set(float64(ts.Unix()))
}

// RecordShiftClosed updates the close watermark gauge.
func RecordShiftClosed(ts time.Time) {
	if ts.IsZero() {
		return
	}
	shiftClosedGauge.Set(float64(ts.Unix()))
}

// RecordAutoEnded counts a forced shift close.
func RecordAutoEnded() {
	autoEndedCounter.Inc()
}

// RecordReplayRejection counts a clock action refused by the state machine.
func RecordReplayRejection(action string) {
	replayRejectionCounter.WithLabelValues(action).Inc()
}
