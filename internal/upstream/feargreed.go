package upstream

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/coinpulse/pulsefeed/internal/clock"
)

// The index is published daily; a value older than this is treated as
// unknown rather than served stale.
const fearGreedStaleAfter = 2 * time.Hour

// DefaultFearGreedInterval is how often the poller refreshes.
const DefaultFearGreedInterval = 30 * time.Minute

// DefaultFearGreedURL is the alternative.me crypto index endpoint.
const DefaultFearGreedURL = "https://api.alternative.me"

type fearGreedResponse struct {
	Data []struct {
		Value string `json:"value"`
	} `json:"data"`
}

// FearGreedPoller refreshes the market fear/greed index in the
// background and serves the last good value. It satisfies
// enrich.FearGreedProvider; Current returns nil while the value is
// missing or stale, which downstream treats as zone unknown.
type FearGreedPoller struct {
	http     *resty.Client
	breaker  *gobreaker.CircuitBreaker
	clk      clock.Clock
	interval time.Duration

	mu        sync.RWMutex
	value     *int
	fetchedAt time.Time
}

// NewFearGreedPoller builds a poller against baseURL.
func NewFearGreedPoller(baseURL, proxyURL string, clk clock.Clock) *FearGreedPoller {
	return &FearGreedPoller{
		http:     newClient(baseURL, proxyURL),
		breaker:  newBreaker("feargreed"),
		clk:      clk,
		interval: DefaultFearGreedInterval,
	}
}

// Current returns the last fetched index, or nil when none is fresh.
func (p *FearGreedPoller) Current() *int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.value == nil || p.clk.Now().Sub(p.fetchedAt) > fearGreedStaleAfter {
		return nil
	}
	v := *p.value
	return &v
}

// Run polls until ctx is cancelled. The first fetch happens
// immediately so enrichment has an index from the start.
func (p *FearGreedPoller) Run(ctx context.Context) {
	p.refresh(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refresh(ctx)
		}
	}
}

func (p *FearGreedPoller) refresh(ctx context.Context) {
	value, err := p.fetch(ctx)
	if err != nil {
		// Keep the previous value; Current goes nil on its own once
		// the staleness bound passes.
		log.Warn().Err(err).Msg("fear/greed refresh failed")
		return
	}

	p.mu.Lock()
	p.value = &value
	p.fetchedAt = p.clk.Now()
	p.mu.Unlock()
	log.Debug().Int("index", value).Msg("fear/greed index refreshed")
}

func (p *FearGreedPoller) fetch(ctx context.Context) (int, error) {
	out, err := p.breaker.Execute(func() (interface{}, error) {
		resp, err := p.http.R().
			SetContext(ctx).
			SetQueryParam("limit", "1").
			SetResult(&fearGreedResponse{}).
			Get("/fng/")
		if err != nil {
			return nil, fmt.Errorf("fear/greed fetch: %w", err)
		}
		if err := checkStatus(resp, "fear/greed fetch"); err != nil {
			return nil, err
		}
		return resp.Result().(*fearGreedResponse), nil
	})
	if err != nil {
		return 0, err
	}

	payload := out.(*fearGreedResponse)
	if len(payload.Data) == 0 {
		return 0, fmt.Errorf("fear/greed fetch: empty payload")
	}
	value, err := strconv.Atoi(payload.Data[0].Value)
	if err != nil {
		return 0, fmt.Errorf("fear/greed fetch: bad value %q", payload.Data[0].Value)
	}
	if value < 0 || value > 100 {
		return 0, fmt.Errorf("fear/greed fetch: value %d out of range", value)
	}
	return value, nil
}
