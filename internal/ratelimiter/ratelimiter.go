package ratelimiter

import "time"

type Limiter interface {
	Allow(key string) (bool, time.Duration)
}

type Config struct {
	RequestsPerTimeFrame int
	TimeFrame            time.Duration
	Enabled              bool
}

// New returns a fixed window limiter for cfg, or a limiter that allows
// everything when the limiter is disabled.
func New(cfg Config) Limiter {
	if !cfg.Enabled || cfg.RequestsPerTimeFrame <= 0 || cfg.TimeFrame <= 0 {
		return Unlimited{}
	}
	return NewFixedWindowLimiter(cfg.RequestsPerTimeFrame, cfg.TimeFrame)
}

type Unlimited struct{}

func (Unlimited) Allow(string) (bool, time.Duration) { return true, 0 }
