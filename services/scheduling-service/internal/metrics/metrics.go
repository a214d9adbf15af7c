package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SchedulingMetrics implements scheduling.Recorder and outbox.Observer.
// A nil *SchedulingMetrics records nothing.
type SchedulingMetrics struct {
	slotQueries     prometheus.Counter
	slotsReturned   prometheus.Histogram
	slotLatency     prometheus.Histogram
	admissions      *prometheus.CounterVec
	outboxPublished prometheus.Counter
	outboxFailures  prometheus.Counter
	httpRequests    *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		slotQueries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tidyhome",
			Subsystem: "scheduling",
			Name:      "slot_queries_total",
			Help:      "Slot listing requests answered",
		}),
		slotsReturned: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tidyhome",
			Subsystem: "scheduling",
			Name:      "slots_returned",
			Help:      "Number of slots returned per listing",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		slotLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tidyhome",
			Subsystem: "scheduling",
			Name:      "slot_query_seconds",
			Help:      "Latency of slot listing including store reads",
			Buckets:   prometheus.DefBuckets,
		}),
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tidyhome",
			Subsystem: "scheduling",
			Name:      "booking_admissions_total",
			Help:      "Booking admission attempts by outcome",
		}, []string{"outcome"}),
		outboxPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tidyhome",
			Subsystem: "outbox",
			Name:      "published_total",
			Help:      "Outbox events relayed to Kafka",
		}),
		outboxFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tidyhome",
			Subsystem: "outbox",
			Name:      "failures_total",
			Help:      "Failed outbox relay batches",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tidyhome",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"route", "code"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.slotQueries, m.slotsReturned, m.slotLatency, m.admissions,
		m.outboxPublished, m.outboxFailures, m.httpRequests)
	return m
}

func (m *SchedulingMetrics) SlotsListed(count int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.slotQueries.Inc()
	m.slotsReturned.Observe(float64(count))
	m.slotLatency.Observe(elapsed.Seconds())
}

func (m *SchedulingMetrics) AdmissionOutcome(outcome string) {
	if m == nil {
		return
	}
	m.admissions.WithLabelValues(outcome).Inc()
}

func (m *SchedulingMetrics) OutboxPublished(n int) {
	if m == nil {
		return
	}
	m.outboxPublished.Add(float64(n))
}

func (m *SchedulingMetrics) OutboxFailed() {
	if m == nil {
		return
	}
	m.outboxFailures.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.code == 0 {
		r.code = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if r.code == 0 {
		r.code = http.StatusOK
	}
	return r.ResponseWriter.Write(p)
}

// Instrument counts requests to h under a fixed route label.
func (m *SchedulingMetrics) Instrument(route string, h http.Handler) http.Handler {
	if m == nil {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w}
		h.ServeHTTP(rec, r)
		code := rec.code
		if code == 0 {
			code = http.StatusOK
		}
		m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	})
}
