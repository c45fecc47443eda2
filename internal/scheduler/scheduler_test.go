package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/crosslist/internal/clock"
	delistingdomain "github.com/smallbiznis/crosslist/internal/delisting/domain"
	marketplacedomain "github.com/smallbiznis/crosslist/internal/marketplace/domain"
	"github.com/smallbiznis/crosslist/internal/poller"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type stubPoller struct {
	calls   int
	results map[marketplacedomain.Type]*poller.MarketplaceResult
}

func (s *stubPoller) PollAllMarketplaces(context.Context) map[marketplacedomain.Type]*poller.MarketplaceResult {
	s.calls++
	return s.results
}

type stubRetry struct {
	retryCalls   int
	processCalls int
	surfaceCalls int
	lastMaxJobs  int
	surfaceCount int
	surfaceErr   error
	blockProcess bool
}

func (s *stubRetry) RetryFailedDelistings(_ context.Context, maxJobs int) *delistingdomain.RetryResult {
	s.retryCalls++
	s.lastMaxJobs = maxJobs
	return &delistingdomain.RetryResult{}
}

func (s *stubRetry) ProcessPendingJobs(ctx context.Context) *delistingdomain.ProcessResult {
	s.processCalls++
	if s.blockProcess {
		<-ctx.Done()
	}
	return &delistingdomain.ProcessResult{}
}

func (s *stubRetry) SurfaceStuckJobs(context.Context, time.Duration) (int, error) {
	s.surfaceCalls++
	return s.surfaceCount, s.surfaceErr
}

func newTestScheduler(t *testing.T, cfg Config, sp *stubPoller, sr *stubRetry) *Scheduler {
	t.Helper()
	sched, err := New(Params{
		Cfg:    cfg,
		Log:    zap.NewNop(),
		Clock:  clock.NewFakeClock(time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)),
		Poller: sp,
		Retry:  sr,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return sched
}

func TestNewValidatesDependencies(t *testing.T) {
	_, err := New(Params{
		Cfg:   DefaultConfig(),
		Log:   zap.NewNop(),
		Clock: clock.NewFakeClock(time.Now()),
		Retry: &stubRetry{},
	})
	assert.Error(t, err)

	_, err = New(Params{
		Cfg:    DefaultConfig(),
		Log:    zap.NewNop(),
		Clock:  clock.NewFakeClock(time.Now()),
		Poller: &stubPoller{},
	})
	assert.Error(t, err)
}

func TestRunOnceRunsAllJobs(t *testing.T) {
	sp := &stubPoller{results: map[marketplacedomain.Type]*poller.MarketplaceResult{
		marketplacedomain.TypeMercari: {Marketplace: marketplacedomain.TypeMercari, UsersPolled: 2, SalesDetected: 1},
	}}
	sr := &stubRetry{}
	sched := newTestScheduler(t, DefaultConfig(), sp, sr)

	assert.NoError(t, sched.RunOnce(context.Background()))
	assert.Equal(t, 1, sp.calls)
	assert.Equal(t, 1, sr.processCalls)
	assert.Equal(t, 1, sr.retryCalls)
	assert.Equal(t, 1, sr.surfaceCalls)
	assert.Equal(t, DefaultConfig().RetryBatchSize, sr.lastMaxJobs)
}

func TestRunOnceHonorsEnabledJobs(t *testing.T) {
	sp := &stubPoller{}
	sr := &stubRetry{}
	cfg := DefaultConfig()
	cfg.EnabledJobs = []string{JobRetryFailed}
	sched := newTestScheduler(t, cfg, sp, sr)

	assert.NoError(t, sched.RunOnce(context.Background()))
	assert.Equal(t, 0, sp.calls)
	assert.Equal(t, 0, sr.processCalls)
	assert.Equal(t, 1, sr.retryCalls)
	assert.Equal(t, 0, sr.surfaceCalls)
}

func TestRunOnceJoinsJobErrors(t *testing.T) {
	boom := errors.New("boom")
	sp := &stubPoller{}
	sr := &stubRetry{surfaceErr: boom}
	sched := newTestScheduler(t, DefaultConfig(), sp, sr)

	err := sched.RunOnce(context.Background())
	assert.ErrorIs(t, err, boom)

	// The failing job does not stop the others.
	assert.Equal(t, 1, sp.calls)
	assert.Equal(t, 1, sr.retryCalls)
}

func TestRunJobTreatsDeadlineAsSoftTimeout(t *testing.T) {
	sp := &stubPoller{}
	sr := &stubRetry{blockProcess: true}
	cfg := DefaultConfig()
	cfg.JobTimeout = 20 * time.Millisecond
	sched := newTestScheduler(t, cfg, sp, sr)

	assert.NoError(t, sched.RunOnce(context.Background()))
	assert.Equal(t, 1, sr.processCalls)
}

func TestIsJobEnabled(t *testing.T) {
	sched := newTestScheduler(t, DefaultConfig(), &stubPoller{}, &stubRetry{})
	assert.True(t, sched.isJobEnabled(JobPollSales))

	cfg := DefaultConfig()
	cfg.EnabledJobs = []string{JobPollSales, JobRecoverySweep}
	sched = newTestScheduler(t, cfg, &stubPoller{}, &stubRetry{})
	assert.True(t, sched.isJobEnabled(JobPollSales))
	assert.True(t, sched.isJobEnabled(JobRecoverySweep))
	assert.False(t, sched.isJobEnabled(JobRetryFailed))
}
