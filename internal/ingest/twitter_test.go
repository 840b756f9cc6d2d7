package ingest

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinpulse/pulsefeed/internal/clock"
	"github.com/coinpulse/pulsefeed/internal/domain"
	"github.com/coinpulse/pulsefeed/internal/registry"
)

type recordingSink struct {
	events []domain.InboundEvent
}

func (s *recordingSink) Process(ctx context.Context, ev domain.InboundEvent) error {
	s.events = append(s.events, ev)
	return nil
}

type staticTwitterFetcher struct {
	tweets map[string][]Tweet // keyed by entry handle
}

func (f *staticTwitterFetcher) FetchTweets(ctx context.Context, entry domain.SourceEntry, cursor domain.Cursor, limit int) ([]Tweet, error) {
	return f.tweets[entry.Handle], nil
}

func btcAssets(t *testing.T, clk clock.Clock) *registry.AssetRegistry {
	t.Helper()
	loader := func(ctx context.Context) ([]domain.Asset, error) {
		return []domain.Asset{
			{Symbol: "BTC", Keywords: []string{"btc", "bitcoin", "moon"}, Active: true, Priority: 10},
			{Symbol: "ETH", Keywords: []string{"eth", "ethereum"}, Active: true, Priority: 5},
		}, nil
	}
	r, err := registry.NewAssetRegistry(context.Background(), loader, clk, time.Minute)
	require.NoError(t, err)
	return r
}

func twitterSources(t *testing.T, entries []domain.SourceEntry) *registry.SourceRegistry {
	t.Helper()
	loader := func(ctx context.Context) ([]domain.SourceEntry, error) { return entries, nil }
	r, err := registry.NewSourceRegistry(context.Background(), domain.SourceTwitter, loader)
	require.NoError(t, err)
	return r
}

func goodTweet(clk clock.Clock) Tweet {
	return Tweet{
		ID:              "1001",
		AuthorHandle:    "whale",
		Text:            "$BTC moon breakout!",
		Timestamp:       clk.Now().Add(-5 * time.Second).Format(time.RFC3339),
		Likes:           100,
		Retweets:        50,
		Replies:         25,
		AuthorFollowers: 5000,
	}
}

func TestTwitterWorker_AcceptsAndWeighsBullishTweet(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC))
	entries := []domain.SourceEntry{{ID: "e1", Kind: domain.EntryAccount, Handle: "whale", Enabled: true, Priority: 1}}
	sink := &recordingSink{}
	fetcher := &staticTwitterFetcher{tweets: map[string][]Tweet{"whale": {goodTweet(clk)}}}

	w := NewTwitterWorker(fetcher, twitterSources(t, entries), btcAssets(t, clk), sink, clk)
	m, err := w.RunCycle(context.Background(), clk.Now(), domain.Cursor{})
	require.NoError(t, err)

	assert.Equal(t, 1, m.Accepted)
	require.Len(t, sink.events, 1)
	ev := sink.events[0].Event

	assert.Equal(t, domain.SourceTwitter, ev.Source)
	assert.Equal(t, 0.5, ev.SourceReliability)
	assert.Equal(t, "BTC", ev.Asset)
	require.NotNil(t, ev.EngagementWeight)
	assert.InDelta(t, math.Log(1+100+2*50+25), *ev.EngagementWeight, 1e-9)
	require.NotNil(t, ev.AuthorWeight)
	assert.InDelta(t, math.Log(1+5000), *ev.AuthorWeight, 1e-9)
	assert.Equal(t, 1.0, ev.Velocity)
	assert.False(t, ev.ManipulationFlag)
	assert.NotEmpty(t, ev.Fingerprint)
}

func TestTwitterWorker_DropReasons(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC))
	ts := clk.Now().Add(-5 * time.Second).Format(time.RFC3339)

	cases := []struct {
		name   string
		mutate func(*Tweet)
		reason string
	}{
		{"empty text", func(tw *Tweet) { tw.Text = "   " }, DropEmptyText},
		{"no asset keyword", func(tw *Tweet) { tw.Text = "nice weather today" }, DropNoAssetMatch},
		{"missing timestamp", func(tw *Tweet) { tw.Timestamp = "" }, DropBadTimestamp},
		{"coarse timestamp", func(tw *Tweet) { tw.Timestamp = "2026-08-24T12:00" }, DropBadTimestamp},
		{"retweet without quote", func(tw *Tweet) { tw.IsRetweet = true; tw.QuotedText = "" }, DropRetweetNoQuote},
		{"protected author", func(tw *Tweet) { tw.AuthorProtected = true }, DropProtectedAccount},
		{"promoted", func(tw *Tweet) { tw.Promoted = true }, DropPromoted},
		{"zero engagement", func(tw *Tweet) { tw.Likes, tw.Retweets, tw.Replies = 0, 0, 0 }, DropZeroEngagement},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tw := Tweet{ID: "1", AuthorHandle: "whale", Text: "$BTC pump", Timestamp: ts, Likes: 1}
			tc.mutate(&tw)

			entries := []domain.SourceEntry{{ID: "e1", Kind: domain.EntryAccount, Handle: "whale", Enabled: true}}
			sink := &recordingSink{}
			fetcher := &staticTwitterFetcher{tweets: map[string][]Tweet{"whale": {tw}}}
			w := NewTwitterWorker(fetcher, twitterSources(t, entries), btcAssets(t, clk), sink, clk)

			m, err := w.RunCycle(context.Background(), clk.Now(), domain.Cursor{})
			require.NoError(t, err)
			assert.Zero(t, m.Accepted)
			assert.Equal(t, 1, m.Drops[tc.reason])
			assert.Empty(t, sink.events)
		})
	}
}

func TestTwitterWorker_ListAuthorsMustBeWhitelisted(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC))
	tw := goodTweet(clk)
	tw.AuthorHandle = "stranger"

	entries := []domain.SourceEntry{{ID: "l1", Kind: domain.EntryList, Handle: "crypto-list", Enabled: true}}
	sink := &recordingSink{}
	fetcher := &staticTwitterFetcher{tweets: map[string][]Tweet{"crypto-list": {tw}}}
	w := NewTwitterWorker(fetcher, twitterSources(t, entries), btcAssets(t, clk), sink, clk)

	m, err := w.RunCycle(context.Background(), clk.Now(), domain.Cursor{})
	require.NoError(t, err)
	assert.Equal(t, 1, m.Drops[DropNotWhitelisted])
	assert.Empty(t, sink.events, "a non-whitelisted author contributes zero rows, ever")
}

func TestTwitterWorker_PerEntryRateCap(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC))
	tweets := make([]Tweet, 0, 35)
	for i := 0; i < 35; i++ {
		tw := goodTweet(clk)
		tw.ID = string(rune('a' + i))
		tweets = append(tweets, tw)
	}

	entries := []domain.SourceEntry{{ID: "e1", Kind: domain.EntryAccount, Handle: "whale", Enabled: true}}
	sink := &recordingSink{}
	fetcher := &staticTwitterFetcher{tweets: map[string][]Tweet{"whale": tweets}}
	w := NewTwitterWorker(fetcher, twitterSources(t, entries), btcAssets(t, clk), sink, clk)

	m, err := w.RunCycle(context.Background(), clk.Now(), domain.Cursor{})
	require.NoError(t, err)
	assert.Equal(t, 30, m.Accepted, "per-entry cap is 30 per minute")
	assert.Equal(t, 5, m.Drops[DropSourceRate])
}

func TestTwitterWorker_ReleasesInAscendingEventTime(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC))
	older := goodTweet(clk)
	older.ID = "old"
	older.Timestamp = clk.Now().Add(-10 * time.Second).Format(time.RFC3339)
	newer := goodTweet(clk)
	newer.ID = "new"
	newer.Timestamp = clk.Now().Add(-2 * time.Second).Format(time.RFC3339)

	entries := []domain.SourceEntry{{ID: "e1", Kind: domain.EntryAccount, Handle: "whale", Enabled: true}}
	sink := &recordingSink{}
	// Delivered newest first; the release boundary must reorder.
	fetcher := &staticTwitterFetcher{tweets: map[string][]Tweet{"whale": {newer, older}}}
	w := NewTwitterWorker(fetcher, twitterSources(t, entries), btcAssets(t, clk), sink, clk)

	_, err := w.RunCycle(context.Background(), clk.Now(), domain.Cursor{})
	require.NoError(t, err)
	require.Len(t, sink.events, 2)
	assert.True(t, sink.events[0].Event.EventTime.Before(sink.events[1].Event.EventTime))
}
