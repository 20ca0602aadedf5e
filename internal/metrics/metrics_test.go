package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected metrics handler to return 200, got %d", rr.Code)
	}
	return rr.Body.String()
}

func TestCollectorRecordsHTTPMetrics(t *testing.T) {
	collector, err := NewCollector()
	if err != nil {
		t.Fatalf("NewCollector returned error: %v", err)
	}

	handlerInvoked := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerInvoked = true
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("ok"))
	})

	rr := httptest.NewRecorder()
	collector.InstrumentHandler(handler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if !handlerInvoked {
		t.Fatal("expected handler to be invoked")
	}
	if rr.Code != http.StatusAccepted {
		t.Fatalf("unexpected status code: %d", rr.Code)
	}

	body := scrape(t, collector)
	if !strings.Contains(body, `feedpoller_http_requests_total{method="GET",path="/healthz",status="202"} 1`) {
		t.Fatalf("requests_total metric not recorded, body=%q", body)
	}
	if !strings.Contains(body, `feedpoller_http_request_duration_seconds_count{method="GET",path="/healthz",status="202"} 1`) {
		t.Fatalf("request_duration_seconds_count metric not recorded, body=%q", body)
	}
}

func TestCollectorRecordsPollingMetrics(t *testing.T) {
	collector, err := NewCollector()
	if err != nil {
		t.Fatalf("NewCollector returned error: %v", err)
	}

	collector.ObservePoll("changed", "", 150*time.Millisecond)
	collector.ObservePoll("failed", "http", time.Second)
	collector.ObservePoll("failed", "http", time.Second)
	collector.AddEntriesInserted(3)
	collector.AddEntriesInserted(0)
	collector.ObserveBatch(4, 2*time.Second)

	body := scrape(t, collector)
	for _, want := range []string{
		`feedpoller_ingest_polls_total{error_kind="none",outcome="changed"} 1`,
		`feedpoller_ingest_polls_total{error_kind="http",outcome="failed"} 2`,
		`feedpoller_ingest_poll_duration_seconds_count{outcome="failed"} 2`,
		`feedpoller_ingest_entries_inserted_total 3`,
		`feedpoller_scheduler_batches_total 1`,
		`feedpoller_scheduler_batch_size_sum 4`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in metrics output", want)
		}
	}
}

type fakeLimiter struct{ hosts int }

func (f fakeLimiter) TrackedHosts() int { return f.hosts }
func (f fakeLimiter) MaxPerHost() int   { return 3 }

func TestCollectorLimiterGauges(t *testing.T) {
	collector, err := NewCollector()
	if err != nil {
		t.Fatalf("NewCollector returned error: %v", err)
	}
	if err := collector.RegisterLimiter(fakeLimiter{hosts: 2}); err != nil {
		t.Fatalf("RegisterLimiter returned error: %v", err)
	}
	if err := collector.RegisterLimiter(fakeLimiter{}); err == nil {
		t.Error("expected duplicate registration to fail")
	}

	body := scrape(t, collector)
	if !strings.Contains(body, "feedpoller_limiter_tracked_hosts 2") {
		t.Errorf("tracked hosts gauge missing, body=%q", body)
	}
	if !strings.Contains(body, "feedpoller_limiter_max_per_host 3") {
		t.Errorf("max per host gauge missing, body=%q", body)
	}
}
