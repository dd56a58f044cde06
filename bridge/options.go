package bridge

import (
	"time"

	"github.com/google/uuid"
)

// Option configures a Bridge.
type Option func(*config)

type config struct {
	timeout  time.Duration
	helpFlag string
	idFunc   func() string
}

func defaultConfig() config {
	return config{
		helpFlag: "-h",
		idFunc:   uuid.NewString,
	}
}

// WithTimeout bounds each invocation. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithHelpFlag sets the single argument used by InvokeHelp.
func WithHelpFlag(flag string) Option {
	return func(c *config) {
		c.helpFlag = flag
	}
}

// WithIDFunc sets the generator for request IDs that have none.
func WithIDFunc(fn func() string) Option {
	return func(c *config) {
		if fn != nil {
			c.idFunc = fn
		}
	}
}
