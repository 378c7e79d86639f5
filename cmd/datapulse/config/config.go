package config

import (
	"datapulse/pkg/engine"
	"datapulse/pkg/gateway"
	"datapulse/pkg/metric"
)

type Config struct {
	Engine  *engine.Manager
	Gateway *gateway.Manager
	Metrics *metric.Metrics

	closers []func()
}

// AddCloser registers fn to run on Close, in reverse order of registration.
func (c *Config) AddCloser(fn func()) {
	c.closers = append(c.closers, fn)
}

func (c *Config) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
