package enrich

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinpulse/pulsefeed/internal/domain"
	"github.com/coinpulse/pulsefeed/internal/store"
)

type staticClassifier struct {
	result *Classification
	calls  int
}

func (c *staticClassifier) Classify(ctx context.Context, text string) (*Classification, error) {
	c.calls++
	return c.result, nil
}

type staticIndex struct{ value *int }

func (s staticIndex) Current() *int { return s.value }

func rawEvent(text string) domain.InboundEvent {
	at := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	return domain.InboundEvent{
		Event: domain.RawEvent{
			ID:          uuid.New(),
			Source:      domain.SourceTwitter,
			Asset:       "BTC",
			EventTime:   at,
			IngestTime:  at,
			Text:        text,
			Velocity:    1.0,
			Fingerprint: domain.FingerprintEvent(domain.SourceTwitter, text, at),
		},
		RawTimestamp: at.Format(time.RFC3339),
	}
}

func TestPipeline_WritesAllThreeRows(t *testing.T) {
	st := store.NewMemoryStore()
	p := NewPipeline(st, nil, nil)

	ev := rawEvent("$BTC moon breakout!")
	require.NoError(t, p.Process(context.Background(), ev))

	recs, err := st.QueryEnriched(context.Background(), store.QueryFilter{Asset: "BTC"})
	require.NoError(t, err)
	require.Len(t, recs, 1)

	rec := recs[0]
	assert.Equal(t, ev.Event.ID, rec.Sentiment.RawEventID)
	assert.Equal(t, ev.Event.ID, rec.Risk.RawEventID)
	assert.Equal(t, ev.Event.EventTime, rec.Sentiment.EventTime)
	assert.Equal(t, 2, rec.Sentiment.Counts.Bullish)
	assert.Equal(t, 1, rec.Sentiment.FinalLabel)
	assert.InDelta(t, 1.0, rec.Sentiment.FinalConfidence, 1e-9)
	assert.False(t, rec.Risk.SocialOverheat)
	assert.False(t, rec.Risk.FOMORisk, "no fear/greed index configured")
	assert.Equal(t, domain.ZoneUnknown, rec.Risk.FearGreedZone)
}

func TestPipeline_DuplicateFingerprintIsSilent(t *testing.T) {
	st := store.NewMemoryStore()
	p := NewPipeline(st, nil, nil)
	ctx := context.Background()

	ev := rawEvent("btc mooning")
	require.NoError(t, p.Process(ctx, ev))

	// Same content resubmitted: same fingerprint, new UUID.
	dup := ev
	dup.Event.ID = uuid.New()
	require.NoError(t, p.Process(ctx, dup))

	recs, err := st.QueryEnriched(ctx, store.QueryFilter{Asset: "BTC"})
	require.NoError(t, err)
	assert.Len(t, recs, 1, "re-ingest must produce no new rows")
}

func TestPipeline_LLMFallbackOnlyOnZeroMatches(t *testing.T) {
	st := store.NewMemoryStore()
	cls := &staticClassifier{result: &Classification{Label: -1, Confidence: 0.7}}
	p := NewPipeline(st, cls, nil)
	ctx := context.Background()

	// Lexicon hit: the classifier must not even be consulted.
	require.NoError(t, p.Process(ctx, rawEvent("btc rally")))
	assert.Zero(t, cls.calls)

	// Zero matches: fallback supplies the label.
	require.NoError(t, p.Process(ctx, rawEvent("quiet morning")))
	assert.Equal(t, 1, cls.calls)

	recs, err := st.QueryEnriched(ctx, store.QueryFilter{Asset: "BTC"})
	require.NoError(t, err)
	require.Len(t, recs, 2)

	ruled := recs[0].Sentiment
	assert.False(t, ruled.LLMUsed)
	assert.Equal(t, 1, ruled.FinalLabel)

	fallback := recs[1].Sentiment
	assert.True(t, fallback.LLMUsed)
	assert.Equal(t, -1, fallback.FinalLabel)
	assert.Equal(t, 0.7, fallback.FinalConfidence)
	require.NotNil(t, fallback.LLMLabel)
	assert.Equal(t, -1, *fallback.LLMLabel)
}

func TestPipeline_NoClassifierLeavesNeutral(t *testing.T) {
	st := store.NewMemoryStore()
	p := NewPipeline(st, nil, nil)
	ctx := context.Background()

	require.NoError(t, p.Process(ctx, rawEvent("quiet morning")))

	recs, err := st.QueryEnriched(ctx, store.QueryFilter{Asset: "BTC"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 0, recs[0].Sentiment.FinalLabel)
	assert.Zero(t, recs[0].Sentiment.FinalConfidence)
	assert.False(t, recs[0].Sentiment.LLMUsed)
}

func TestPipeline_FearGreedIndexFeedsRisk(t *testing.T) {
	st := store.NewMemoryStore()
	index := 85
	p := NewPipeline(st, nil, staticIndex{value: &index})
	ctx := context.Background()

	require.NoError(t, p.Process(ctx, rawEvent("$BTC moon breakout!")))

	recs, err := st.QueryEnriched(ctx, store.QueryFilter{Asset: "BTC"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Risk.FOMORisk, "bullish label with index 85")
	assert.Equal(t, domain.ZoneExtremeGreed, recs[0].Risk.FearGreedZone)
}

type observerSpy struct {
	seen []domain.RiskEvent
}

func (o *observerSpy) Observe(raw domain.RawEvent, risk domain.RiskEvent) {
	o.seen = append(o.seen, risk)
}

func TestPipeline_ObserversSeeOnlyWrittenEvents(t *testing.T) {
	st := store.NewMemoryStore()
	spy := &observerSpy{}
	p := NewPipeline(st, nil, nil, spy)
	ctx := context.Background()

	ev := rawEvent("btc surge")
	require.NoError(t, p.Process(ctx, ev))
	require.NoError(t, p.Process(ctx, ev), "duplicate write")

	assert.Len(t, spy.seen, 1, "a silently aborted duplicate is never observed")
}
