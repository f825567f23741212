package scheduler

import (
	"time"

	"github.com/smallbiznis/hourbill/internal/config"
)

// Config controls the run loop. A zero RunInterval after provisioning disables it.
type Config struct {
	RunInterval time.Duration
	JobTimeout  time.Duration
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval: time.Hour,
		JobTimeout:  30 * time.Second,
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
	return c
}

// ProvideConfig reads the sweep interval from the billing config. Negative values
// turn the background loop off.
func ProvideConfig(cfg config.Config) Config {
	out := DefaultConfig()
	switch seconds := cfg.Billing.SweepIntervalSeconds; {
	case seconds < 0:
		out.RunInterval = 0
	case seconds > 0:
		out.RunInterval = time.Duration(seconds) * time.Second
	}
	return out
}
