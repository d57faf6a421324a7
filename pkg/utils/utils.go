// Package utils provides small generic helpers shared across the
// search and live-loop drivers.
package utils

import (
	"fmt"
	"time"
)

// RetryConfig contains retry configuration.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig returns default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// Retry retries fn with exponential backoff up to config.MaxAttempts
// times, returning the last error wrapped with the attempt count.
func Retry[T any](config RetryConfig, fn func() (T, error)) (T, error) {
	var result T
	var err error
	delay := config.InitialDelay

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		result, err = fn()
		if err == nil {
			return result, nil
		}

		if attempt == config.MaxAttempts {
			break
		}

		time.Sleep(delay)
		delay = time.Duration(float64(delay) * config.Multiplier)
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	return result, fmt.Errorf("after %d attempts: %w", config.MaxAttempts, err)
}
