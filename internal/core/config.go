package core

import "time"

// Config carries the engine's clinical policy knobs. Zero values fall back
// to the defaults below, so callers only set what they need to change.
type Config struct {
	// ShelfLife derives an expiry date when registration supplies none.
	// The 42-day default matches standard red-cell storage policy and is
	// deliberately explicit rather than buried in allocation code.
	ShelfLife time.Duration

	// HoldTimeout bounds how long an idle reservation may sit before the
	// sweeper releases it back to circulation.
	HoldTimeout time.Duration

	// LowStockThreshold is the available-unit count per blood type below
	// which the engine publishes a low_stock event.
	LowStockThreshold int

	// ExpiryWarnWindow is how far ahead the sweeper looks when counting
	// soon-to-expire units.
	ExpiryWarnWindow time.Duration

	// SweepInterval paces the background sweeper loop.
	SweepInterval time.Duration
}

const (
	defaultShelfLife        = 42 * 24 * time.Hour
	defaultHoldTimeout      = 4 * time.Hour
	defaultLowStock         = 5
	defaultExpiryWarnWindow = 7 * 24 * time.Hour
	defaultSweepInterval    = time.Minute
)

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		ShelfLife:         defaultShelfLife,
		HoldTimeout:       defaultHoldTimeout,
		LowStockThreshold: defaultLowStock,
		ExpiryWarnWindow:  defaultExpiryWarnWindow,
		SweepInterval:     defaultSweepInterval,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ShelfLife <= 0 {
		c.ShelfLife = d.ShelfLife
	}
	if c.HoldTimeout <= 0 {
		c.HoldTimeout = d.HoldTimeout
	}
	if c.LowStockThreshold <= 0 {
		c.LowStockThreshold = d.LowStockThreshold
	}
	if c.ExpiryWarnWindow <= 0 {
		c.ExpiryWarnWindow = d.ExpiryWarnWindow
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	return c
}
