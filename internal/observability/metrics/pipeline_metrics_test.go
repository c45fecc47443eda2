package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestIncDelistAttempt(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newPipelineMetrics(registry, Config{
		ServiceName: "crosslist",
		Environment: "test",
	})

	metrics.IncDelistAttempt("ebay", "success")
	metrics.IncDelistAttempt("ebay", "success")
	metrics.IncDelistAttempt("poshmark", "rate_limited")

	if got := testutil.ToFloat64(metrics.delistAttempts.WithLabelValues("ebay", "success")); got != 2 {
		t.Fatalf("expected 2 successful ebay attempts, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.delistAttempts.WithLabelValues("poshmark", "rate_limited")); got != 1 {
		t.Fatalf("expected 1 rate limited poshmark attempt, got %v", got)
	}
}

func TestAddPollListingsCheckedIgnoresNonPositive(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newPipelineMetrics(registry, Config{Environment: "test"})

	metrics.AddPollListingsChecked("mercari", 0)
	metrics.AddPollListingsChecked("mercari", -3)
	metrics.AddPollListingsChecked("mercari", 5)

	if got := testutil.ToFloat64(metrics.pollListings.WithLabelValues("mercari")); got != 5 {
		t.Fatalf("expected 5 listings checked, got %v", got)
	}
}

func TestNilPipelineMetricsAreSafe(t *testing.T) {
	var metrics *PipelineMetrics
	metrics.IncWebhookEvent("ebay", "accepted")
	metrics.IncJobFinished("completed")
	metrics.SetJobsStuck(3)
}
