package syncer

import "github.com/prometheus/client_golang/prometheus"

var (
	syncedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shiftsync",
		Subsystem: "syncer",
		Name:      "actions_synced_total",
		Help:      "Queued actions delivered to the server.",
	}, []string{"action"})

	rejectedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shiftsync",
		Subsystem: "syncer",
		Name:      "actions_rejected_total",
		Help:      "Queued actions the server rejected terminally.",
	}, []string{"action"})

	failedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shiftsync",
		Subsystem: "syncer",
		Name:      "actions_abandoned_total",
		Help:      "Queued actions dropped after exhausting their retry attempts.",
	}, []string{"action"})

	expiredCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shiftsync",
		Subsystem: "syncer",
		Name:      "actions_expired_total",
		Help:      "Queued actions dropped for exceeding the expiry window.",
	}, []string{"action"})

	passDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "shiftsync",
		Subsystem: "syncer",
		Name:      "pass_duration_seconds",
		Help:      "Duration of queue drain passes.",
		Buckets:   prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(syncedCounter, rejectedCounter, failedCounter, expiredCounter, passDuration)
}
