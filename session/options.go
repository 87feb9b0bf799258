package session

import (
	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/clock"
)

// StoreOption is a functional option for configuring a session store.
type StoreOption func(*storeConfig)

// storeConfig holds configuration for session stores.
type storeConfig struct {
	shards   int
	clock    clock.Clock
	defaults Defaults
}

// WithShards sets the number of independently locked shards.
func WithShards(n int) StoreOption {
	return func(c *storeConfig) {
		c.shards = n
	}
}

// WithClock sets the time source used to stamp activity.
func WithClock(clk clock.Clock) StoreOption {
	return func(c *storeConfig) {
		c.clock = clk
	}
}

// WithDefaults sets how newly created sessions are initialised.
func WithDefaults(d Defaults) StoreOption {
	return func(c *storeConfig) {
		c.defaults = d
	}
}
