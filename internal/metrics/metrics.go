package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "crowevents"

var (
	PointWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "point_writes_total", Help: "Point writes by operation",
	}, []string{"op"})
	Recalcs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: "recalc_seconds", Help: "Score recalculation latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	RescanMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "rescan_messages_total", Help: "Messages seen by rescans, by result",
	}, []string{"result"})
	RescansActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "rescans_active", Help: "Rescans in flight",
	})
	HandlerErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "handler_errors_total", Help: "Handler errors",
	})
	JobRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "job_runs_total", Help: "Background job runs",
	}, []string{"job"})
	JobErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "job_errors_total", Help: "Background job errors",
	}, []string{"job"})
	JobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: "job_duration_seconds", Help: "Background job duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	DBPing = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Name: "db_ping_seconds", Help: "DB ping latency",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(PointWrites, Recalcs, RescanMessages, RescansActive, HandlerErrors,
		JobRuns, JobErrors, JobDuration, DBPing)
}

func Handler() http.Handler { return promhttp.Handler() }

func ObserveDBPing(d time.Duration) { DBPing.Observe(d.Seconds()) }

// ObserveRecalc удобно звать через defer: defer metrics.ObserveRecalc("full", time.Now())
func ObserveRecalc(kind string, start time.Time) {
	Recalcs.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}
