package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "deadline_exceeded",
			err:  context.DeadlineExceeded,
			want: SchedulerJobReasonDeadlineExceeded,
		},
		{
			name: "canceled",
			err:  context.Canceled,
			want: SchedulerJobReasonCanceled,
		},
		{
			name: "database",
			err:  errors.New("sql: connection is already closed"),
			want: SchedulerJobReasonDatabase,
		},
		{
			name: "unknown",
			err:  errors.New("boom"),
			want: SchedulerJobReasonUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySchedulerJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestIncJobError(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSchedulerMetrics(registry, Config{
		ServiceName: "crosslist",
		Environment: "test",
	})

	metrics.IncJobError("poll_sales", context.DeadlineExceeded)

	got := testutil.ToFloat64(metrics.jobErrors.WithLabelValues("poll_sales", SchedulerJobReasonDeadlineExceeded))
	if got != 1 {
		t.Fatalf("expected 1 error, got %v", got)
	}
}

func TestObserveJobDuration(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSchedulerMetrics(registry, Config{Environment: "test"})

	metrics.ObserveJobDuration("process_pending_jobs", 2*time.Second)

	count := testutil.CollectAndCount(metrics.jobDuration)
	if count != 1 {
		t.Fatalf("expected 1 histogram series, got %d", count)
	}
}
