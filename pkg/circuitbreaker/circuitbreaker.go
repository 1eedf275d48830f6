package circuitbreaker

import (
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

var (
	// MaxNumOfFailingRequests ...
	MaxNumOfFailingRequests = 10
	// FailingRatio ...
	FailingRatio = 0.6
	// OpenTimeout is the time the breaker stays open before letting a trial
	// request through.
	OpenTimeout = 30 * time.Second
)

// NewCircuitBreaker is a factory function returning a *gobreaker.CircuitBreaker
// that opens once the number of requests in the current window exceeds
// MaxNumOfFailingRequests and the failing ratio has met FailingRatio.
// State changes are logged with the given name.
func NewCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return ShouldTrip(counts)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			switch {
			case to == gobreaker.StateOpen:
				log.Warnf("%s: circuit breaker opened, requests are blocked", name)
			case from == gobreaker.StateOpen && to == gobreaker.StateHalfOpen:
				log.Infof("%s: circuit breaker half-open, probing", name)
			case from == gobreaker.StateHalfOpen && to == gobreaker.StateClosed:
				log.Infof("%s: circuit breaker closed", name)
			}
		},
	})
}

// ShouldTrip returns whether the given counts should open the breaker.
func ShouldTrip(counts gobreaker.Counts) bool {
	if counts.Requests == 0 {
		return false
	}
	ratio := float64(counts.TotalFailures) / float64(counts.Requests)
	return int(counts.Requests) > MaxNumOfFailingRequests && ratio >= FailingRatio
}
