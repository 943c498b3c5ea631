package race

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	reasonMalformedLine     = "malformed_line"
	reasonMalformedDuration = "malformed_duration"
	reasonOther             = "other"
)

type Metrics struct {
	linesIngested   *prometheus.CounterVec
	linesRejected   *prometheus.CounterVec
	racesCompleted  prometheus.Counter
	rankingDuration prometheus.Histogram
}

// NewMetrics builds the race collectors and registers them with reg when it
// is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		linesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "racestandings",
			Name:      "lines_ingested_total",
			Help:      "Timing log lines applied to a race.",
		}, []string{"race"}),
		linesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "racestandings",
			Name:      "lines_rejected_total",
			Help:      "Timing log lines rejected, by reason.",
		}, []string{"race", "reason"}),
		racesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "racestandings",
			Name:      "races_completed_total",
			Help:      "Races that reached completion.",
		}),
		rankingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "racestandings",
			Name:      "ranking_duration_seconds",
			Help:      "Time spent recomputing positions and gaps, including the event applied by a single ingest.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.linesIngested, m.linesRejected, m.racesCompleted, m.rankingDuration)
	}
	return m
}
