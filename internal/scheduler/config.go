package scheduler

import "time"

// Config tunes the background loop. Zero values fall back to defaults so the
// scheduler can be constructed without explicit configuration.
type Config struct {
	// RunInterval is how often the loop wakes up and evaluates its jobs.
	RunInterval time.Duration

	// JobTimeout bounds a single job execution.
	JobTimeout time.Duration

	// RecoveryThreshold is how long a RUNNING invoice run may go without
	// finishing before it is released as failed.
	RecoveryThreshold time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval:       time.Minute,
		JobTimeout:        10 * time.Minute,
		RecoveryThreshold: 2 * time.Hour,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.RecoveryThreshold <= 0 {
		c.RecoveryThreshold = defaults.RecoveryThreshold
	}
	return c
}
