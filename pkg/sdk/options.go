package sdk

import "time"

// Client defaults.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultMaxAttempts  = 3
	DefaultInitialDelay = 500 * time.Millisecond
)

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds each tool call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRetry sets how often a call is attempted when the transport fails and
// the delay before the first retry. Delays grow exponentially.
func WithRetry(maxAttempts int, initialDelay time.Duration) Option {
	return func(c *Client) {
		if maxAttempts < 1 {
			maxAttempts = 1
		}
		c.retryCfg.MaxAttempts = maxAttempts
		c.retryCfg.InitialDelay = initialDelay
	}
}
