// Package upstream holds the HTTP clients for the three source
// platforms and the fear/greed index poller. Each client wraps resty
// with a circuit breaker; a tripped breaker fails the cycle fast and
// the scheduler's next tick is the retry.
package upstream

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// FetchTimeout is the per-call deadline for upstream requests.
const FetchTimeout = 30 * time.Second

// newClient builds a resty client with the shared transport defaults.
// proxyURL may be empty.
func newClient(baseURL, proxyURL string) *resty.Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(FetchTimeout).
		SetRetryCount(0). // the scheduler retries, not the transport
		SetHeader("Accept", "application/json")
	if proxyURL != "" {
		client.SetProxy(proxyURL)
	}
	return client
}

// newBreaker builds a circuit breaker for one upstream. It opens after
// five consecutive failures and probes again after 30 seconds.
func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("upstream", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("upstream breaker state change")
		},
	})
}

// checkStatus converts an HTTP error status into a Go error so the
// breaker counts it.
func checkStatus(resp *resty.Response, what string) error {
	if resp.IsError() {
		return fmt.Errorf("%s: status %d: %s", what, resp.StatusCode(), resp.String())
	}
	return nil
}
