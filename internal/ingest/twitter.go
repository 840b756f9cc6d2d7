package ingest

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/coinpulse/pulsefeed/internal/clock"
	"github.com/coinpulse/pulsefeed/internal/domain"
	"github.com/coinpulse/pulsefeed/internal/ratelimit"
	"github.com/coinpulse/pulsefeed/internal/registry"
)

// Tweet is the upstream shape handed over by the Twitter client.
type Tweet struct {
	ID              string
	AuthorHandle    string
	Text            string
	Timestamp       string // upstream created_at, RFC 3339
	Likes           int
	Retweets        int
	Replies         int
	AuthorFollowers int
	IsRetweet       bool
	QuotedText      string
	IsReply         bool
	AuthorProtected bool
	Promoted        bool
}

// TwitterFetcher pulls a bounded batch of recent tweets for one
// whitelisted entry.
type TwitterFetcher interface {
	FetchTweets(ctx context.Context, entry domain.SourceEntry, cursor domain.Cursor, limit int) ([]Tweet, error)
}

// TwitterCaps are the default rolling-window caps.
var TwitterCaps = ratelimit.Caps{PerEntry: 30, Global: 500, Window: time.Minute}

// TwitterWorker ingests from whitelisted accounts, lists and queries.
type TwitterWorker struct {
	fetcher  TwitterFetcher
	sources  *registry.SourceRegistry
	assets   *registry.AssetRegistry
	limiter  *ratelimit.SourceLimiter
	velocity *VelocityTracker
	sink     Sink
	clk      clock.Clock
	batchCap int
}

// NewTwitterWorker wires a worker with its exclusively owned state.
func NewTwitterWorker(fetcher TwitterFetcher, sources *registry.SourceRegistry, assets *registry.AssetRegistry, sink Sink, clk clock.Clock) *TwitterWorker {
	return &TwitterWorker{
		fetcher:  fetcher,
		sources:  sources,
		assets:   assets,
		limiter:  ratelimit.NewSourceLimiter(TwitterCaps, clk),
		velocity: NewVelocityTracker(time.Minute, time.Hour, 60),
		sink:     sink,
		clk:      clk,
		batchCap: 100,
	}
}

func (w *TwitterWorker) Source() domain.Source { return domain.SourceTwitter }

// RunCycle fetches one bounded batch per enabled entry, filters it and
// releases survivors in ascending event-time order.
func (w *TwitterWorker) RunCycle(ctx context.Context, now time.Time, cursor domain.Cursor) (CycleMetrics, error) {
	m := newCycleMetrics(domain.SourceTwitter)
	var batch []domain.InboundEvent
	seen := make(map[string]struct{})

	for _, entry := range w.sources.EnabledSources() {
		tweets, err := w.fetcher.FetchTweets(ctx, entry, cursor, w.batchCap)
		if err != nil {
			return m, err
		}
		m.Fetched += len(tweets)
		for _, tw := range tweets {
			if ev, ok := w.filter(tw, entry, seen, &m); ok {
				batch = append(batch, ev)
				m.accept(tw.ID, ev.Event.EventTime)
			}
		}
	}

	if err := release(ctx, w.sink, batch); err != nil {
		return m, err
	}
	log.Debug().Int("fetched", m.Fetched).Int("accepted", m.Accepted).Msg("twitter cycle complete")
	return m, nil
}

// filter applies the Twitter drop chain in its fixed evaluation order.
func (w *TwitterWorker) filter(tw Tweet, fetchEntry domain.SourceEntry, seen map[string]struct{}, m *CycleMetrics) (domain.InboundEvent, bool) {
	// List and query entries can surface authors outside the
	// whitelist; the whitelist is closed regardless of how the tweet
	// arrived.
	entry := fetchEntry
	if fetchEntry.Kind != domain.EntryAccount {
		looked, exists := w.sources.Lookup(tw.AuthorHandle)
		if !exists {
			m.drop(DropNotWhitelisted)
			return domain.InboundEvent{}, false
		}
		entry = looked
	}
	if !entry.Enabled {
		m.drop(DropSourceDisabled)
		return domain.InboundEvent{}, false
	}
	if !w.limiter.AllowGlobal() {
		m.drop(DropGlobalRate)
		return domain.InboundEvent{}, false
	}
	if !w.limiter.AllowEntryCapped(entry.Handle, entry.PerRunCap) {
		m.drop(DropSourceRate)
		return domain.InboundEvent{}, false
	}
	if strings.TrimSpace(tw.Text) == "" {
		m.drop(DropEmptyText)
		return domain.InboundEvent{}, false
	}
	asset := w.assets.DetectAsset(tw.Text)
	if asset == "" {
		m.drop(DropNoAssetMatch)
		return domain.InboundEvent{}, false
	}
	eventTime, err := parseEventTime(tw.Timestamp)
	if err != nil {
		m.drop(DropBadTimestamp)
		return domain.InboundEvent{}, false
	}
	if tw.IsRetweet && strings.TrimSpace(tw.QuotedText) == "" {
		m.drop(DropRetweetNoQuote)
		return domain.InboundEvent{}, false
	}
	if tw.AuthorProtected {
		m.drop(DropProtectedAccount)
		return domain.InboundEvent{}, false
	}
	if tw.Promoted {
		m.drop(DropPromoted)
		return domain.InboundEvent{}, false
	}
	engagement := tw.Likes + tw.Retweets + tw.Replies
	if engagement == 0 {
		m.drop(DropZeroEngagement)
		return domain.InboundEvent{}, false
	}

	// Overlapping list and query fetches can yield the same tweet
	// twice within one cycle. Cross-cycle duplicates are the guard's
	// responsibility, not the worker's.
	if _, dup := seen[tw.ID]; dup {
		m.drop(DropBatchDuplicate)
		return domain.InboundEvent{}, false
	}
	seen[tw.ID] = struct{}{}

	raw := domain.RawEvent{
		ID:                uuid.New(),
		Source:            domain.SourceTwitter,
		SourceReliability: domain.SourceTwitter.Reliability(),
		Asset:             asset,
		EventTime:         eventTime,
		IngestTime:        w.clk.Now(),
		Text:              tw.Text,
		EngagementWeight:  ptr(math.Log(1 + float64(tw.Likes) + 2*float64(tw.Retweets) + float64(tw.Replies))),
		AuthorWeight:      ptr(math.Log(1 + float64(tw.AuthorFollowers))),
		Velocity:          w.velocity.Observe(entry.Handle, asset, eventTime),
		Fingerprint:       domain.FingerprintEvent(domain.SourceTwitter, tw.Text, eventTime),
	}
	return domain.InboundEvent{Event: raw, RawTimestamp: tw.Timestamp}, true
}
