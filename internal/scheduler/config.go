package scheduler

import (
	"time"

	appconfig "github.com/smallbiznis/crosslist/internal/config"
)

// Config controls scheduler intervals, batch sizes and job filtering.
type Config struct {
	RunInterval       time.Duration
	EnabledJobs       []string
	RetryBatchSize    int
	RecoveryThreshold time.Duration
	PollTimeout       time.Duration
	JobTimeout        time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval:       time.Minute,
		RetryBatchSize:    50,
		RecoveryThreshold: 15 * time.Minute,
		PollTimeout:       5 * time.Minute,
		JobTimeout:        2 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.RetryBatchSize <= 0 {
		c.RetryBatchSize = defaults.RetryBatchSize
	}
	if c.RecoveryThreshold <= 0 {
		c.RecoveryThreshold = defaults.RecoveryThreshold
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = defaults.PollTimeout
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}

// ProvideConfig maps the application configuration onto scheduler settings.
func ProvideConfig(cfg appconfig.Config) Config {
	return Config{
		RunInterval: cfg.SchedulerRunInterval,
		EnabledJobs: cfg.SchedulerEnabledJobs,
	}.withDefaults()
}
