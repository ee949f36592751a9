package retry

import (
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// NewBreaker builds a circuit breaker for one collaborator. Five consecutive
// failures trip it open; after a minute a single probe is let through.
func NewBreaker[T any](name string) *gobreaker.CircuitBreaker[T] {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    2 * time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			zap.S().Named("breaker").Warnf("%s: %s -> %s", name, from, to)
		},
	}

	return gobreaker.NewCircuitBreaker[T](settings)
}
