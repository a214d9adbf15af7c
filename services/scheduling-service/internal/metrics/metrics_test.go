package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSchedulingMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SlotsListed(16, 20*time.Millisecond)
	m.AdmissionOutcome("created")
	m.AdmissionOutcome("conflict")
	m.AdmissionOutcome("conflict")
	m.OutboxPublished(3)
	m.OutboxFailed()

	if got := testutil.ToFloat64(m.slotQueries); got != 1 {
		t.Fatalf("slot queries = %v", got)
	}
	if got := testutil.ToFloat64(m.admissions.WithLabelValues("conflict")); got != 2 {
		t.Fatalf("conflicts = %v", got)
	}
	if got := testutil.ToFloat64(m.outboxPublished); got != 3 {
		t.Fatalf("published = %v", got)
	}
	if got := testutil.ToFloat64(m.outboxFailures); got != 1 {
		t.Fatalf("failures = %v", got)
	}
}

func TestInstrumentCountsStatus(t *testing.T) {
	m := New(prometheus.NewRegistry())
	h := m.Instrument("bookings.create", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "taken", http.StatusConflict)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/bookings", nil))

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("bookings.create", "409")); got != 1 {
		t.Fatalf("requests = %v", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *SchedulingMetrics
	m.SlotsListed(1, time.Second)
	m.AdmissionOutcome("created")
	m.OutboxPublished(1)
	m.OutboxFailed()
	h := m.Instrument("x", http.NotFoundHandler())
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}
