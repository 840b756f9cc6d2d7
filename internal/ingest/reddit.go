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

// RedditPost is the upstream shape handed over by the Reddit client.
// Score and NumComments are pointers so a missing field is
// distinguishable from zero.
type RedditPost struct {
	ID          string
	Subreddit   string
	Title       string
	Body        string
	Author      string
	Score       *int
	NumComments *int
	AuthorKarma int64
	Timestamp   string
}

// RedditFetcher pulls a bounded batch of recent posts for one
// whitelisted subreddit.
type RedditFetcher interface {
	FetchPosts(ctx context.Context, entry domain.SourceEntry, cursor domain.Cursor, limit int) ([]RedditPost, error)
}

// RedditCaps are the default rolling-window caps. The Reddit loop runs
// every 5 minutes, so the window matches the cadence; the per-run cap
// on each entry applies on top, smaller winning.
var RedditCaps = ratelimit.Caps{PerEntry: 100, Global: 500, Window: 5 * time.Minute}

// DefaultRedditPerRun bounds a subreddit's haul within one cycle when
// the whitelist entry carries no cap of its own.
const DefaultRedditPerRun = 25

// RedditWorker ingests from whitelisted subreddits.
type RedditWorker struct {
	fetcher  RedditFetcher
	sources  *registry.SourceRegistry
	assets   *registry.AssetRegistry
	limiter  *ratelimit.SourceLimiter
	velocity *VelocityTracker
	sink     Sink
	clk      clock.Clock
	batchCap int
}

// NewRedditWorker wires a worker with its exclusively owned state.
func NewRedditWorker(fetcher RedditFetcher, sources *registry.SourceRegistry, assets *registry.AssetRegistry, sink Sink, clk clock.Clock) *RedditWorker {
	return &RedditWorker{
		fetcher:  fetcher,
		sources:  sources,
		assets:   assets,
		limiter:  ratelimit.NewSourceLimiter(RedditCaps, clk),
		velocity: NewVelocityTracker(6*time.Hour, 48*time.Hour, 8),
		sink:     sink,
		clk:      clk,
		batchCap: 100,
	}
}

func (w *RedditWorker) Source() domain.Source { return domain.SourceReddit }

// RunCycle fetches one bounded batch per enabled subreddit, filters it
// and releases survivors in ascending event-time order.
func (w *RedditWorker) RunCycle(ctx context.Context, now time.Time, cursor domain.Cursor) (CycleMetrics, error) {
	m := newCycleMetrics(domain.SourceReddit)
	var batch []domain.InboundEvent
	seen := make(map[string]struct{})

	for _, entry := range w.sources.EnabledSources() {
		perRun := entry.PerRunCap
		if perRun <= 0 {
			perRun = DefaultRedditPerRun
		}
		posts, err := w.fetcher.FetchPosts(ctx, entry, cursor, w.batchCap)
		if err != nil {
			return m, err
		}
		m.Fetched += len(posts)
		taken := 0
		for _, p := range posts {
			if taken >= perRun {
				m.drop(DropSourceRate)
				continue
			}
			if ev, ok := w.filter(p, entry, seen, &m); ok {
				batch = append(batch, ev)
				m.accept(p.ID, ev.Event.EventTime)
				taken++
			}
		}
	}

	if err := release(ctx, w.sink, batch); err != nil {
		return m, err
	}
	log.Debug().Int("fetched", m.Fetched).Int("accepted", m.Accepted).Msg("reddit cycle complete")
	return m, nil
}

func deletedMarker(s string) bool {
	return s == "[deleted]" || s == "[removed]"
}

// filter applies the Reddit drop chain in its fixed evaluation order.
func (w *RedditWorker) filter(p RedditPost, entry domain.SourceEntry, seen map[string]struct{}, m *CycleMetrics) (domain.InboundEvent, bool) {
	if looked, exists := w.sources.Lookup(p.Subreddit); !exists {
		m.drop(DropNotWhitelisted)
		return domain.InboundEvent{}, false
	} else if !looked.Enabled {
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
	if p.ID == "" || p.Score == nil || p.NumComments == nil {
		m.drop(DropMissingFields)
		return domain.InboundEvent{}, false
	}
	if deletedMarker(p.Author) {
		m.drop(DropDeletedAuthor)
		return domain.InboundEvent{}, false
	}
	if *p.Score <= 0 {
		m.drop(DropNonPositiveScore)
		return domain.InboundEvent{}, false
	}
	text := strings.TrimSpace(p.Title + " " + p.Body)
	if text == "" {
		m.drop(DropEmptyText)
		return domain.InboundEvent{}, false
	}
	asset := w.assets.DetectAsset(text)
	if asset == "" {
		m.drop(DropNoAssetMatch)
		return domain.InboundEvent{}, false
	}
	if deletedMarker(strings.TrimSpace(p.Body)) {
		m.drop(DropDeletedBody)
		return domain.InboundEvent{}, false
	}
	eventTime, err := parseEventTime(p.Timestamp)
	if err != nil {
		m.drop(DropBadTimestamp)
		return domain.InboundEvent{}, false
	}
	if _, dup := seen[p.ID]; dup {
		m.drop(DropBatchDuplicate)
		return domain.InboundEvent{}, false
	}
	seen[p.ID] = struct{}{}

	raw := domain.RawEvent{
		ID:                uuid.New(),
		Source:            domain.SourceReddit,
		SourceReliability: domain.SourceReddit.Reliability(),
		Asset:             asset,
		EventTime:         eventTime,
		IngestTime:        w.clk.Now(),
		Text:              text,
		EngagementWeight:  ptr(math.Log(1 + float64(*p.Score) + float64(*p.NumComments))),
		AuthorWeight:      ptr(math.Log(1 + float64(p.AuthorKarma))),
		Velocity:          w.velocity.Observe(entry.Handle, asset, eventTime),
		Fingerprint:       domain.FingerprintEvent(domain.SourceReddit, text, eventTime),
	}
	return domain.InboundEvent{Event: raw, RawTimestamp: p.Timestamp}, true
}
