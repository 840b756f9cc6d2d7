package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coinpulse/pulsefeed/internal/domain"
)

func idx(n int) *int { return &n }

func TestFearGreedZone_Boundaries(t *testing.T) {
	assert.Equal(t, domain.ZoneUnknown, FearGreedZone(nil))
	assert.Equal(t, domain.ZoneExtremeFear, FearGreedZone(idx(20)))
	assert.Equal(t, domain.ZoneNormal, FearGreedZone(idx(21)))
	assert.Equal(t, domain.ZoneNormal, FearGreedZone(idx(79)))
	assert.Equal(t, domain.ZoneExtremeGreed, FearGreedZone(idx(80)))
}

func TestDeriveRisk_SocialOverheat(t *testing.T) {
	raw := domain.RawEvent{Velocity: 3.0, ManipulationFlag: true}
	sent := domain.SentimentEvent{FinalLabel: 0, FinalConfidence: 0.8}

	risk := DeriveRisk(raw, sent, nil)
	assert.True(t, risk.SocialOverheat)

	raw.ManipulationFlag = false
	assert.False(t, DeriveRisk(raw, sent, nil).SocialOverheat, "velocity alone is not overheat")

	raw.ManipulationFlag = true
	raw.Velocity = 2.9
	assert.False(t, DeriveRisk(raw, sent, nil).SocialOverheat)
}

func TestDeriveRisk_PanicRisk(t *testing.T) {
	raw := domain.RawEvent{Velocity: 2.0}
	sent := domain.SentimentEvent{FinalLabel: -1, FinalConfidence: 0.9}

	assert.True(t, DeriveRisk(raw, sent, nil).PanicRisk)

	sent.FinalLabel = 0
	assert.False(t, DeriveRisk(raw, sent, nil).PanicRisk)

	sent.FinalLabel = -1
	raw.Velocity = 1.9
	assert.False(t, DeriveRisk(raw, sent, nil).PanicRisk)
}

func TestDeriveRisk_FOMONeedsIndex(t *testing.T) {
	raw := domain.RawEvent{Velocity: 1.0}
	sent := domain.SentimentEvent{FinalLabel: 1, FinalConfidence: 1.0}

	assert.False(t, DeriveRisk(raw, sent, nil).FOMORisk, "no index, flag stays false")
	assert.False(t, DeriveRisk(raw, sent, idx(69)).FOMORisk)
	assert.True(t, DeriveRisk(raw, sent, idx(70)).FOMORisk)

	sent.FinalLabel = 0
	assert.False(t, DeriveRisk(raw, sent, idx(90)).FOMORisk)
}

func TestDeriveRisk_Reliability(t *testing.T) {
	raw := domain.RawEvent{}

	low := DeriveRisk(raw, domain.SentimentEvent{FinalConfidence: 0.59}, nil)
	assert.Equal(t, domain.ReliabilityLow, low.SentimentReliability)

	normal := DeriveRisk(raw, domain.SentimentEvent{FinalConfidence: 0.6}, nil)
	assert.Equal(t, domain.ReliabilityNormal, normal.SentimentReliability)
}

func TestDeriveRisk_CopiesEventIdentity(t *testing.T) {
	raw := domain.RawEvent{Velocity: 1.0}
	sent := domain.SentimentEvent{FinalLabel: 1, FinalConfidence: 0.7}

	risk := DeriveRisk(raw, sent, idx(50))
	assert.Equal(t, raw.ID, risk.RawEventID)
	assert.Equal(t, raw.EventTime, risk.EventTime)
	assert.Equal(t, 1, risk.SentimentLabel)
	assert.Equal(t, 0.7, risk.SentimentConfidence)
	assert.Equal(t, 50, *risk.FearGreedIndex)
	assert.Equal(t, domain.ZoneNormal, risk.FearGreedZone)
}
