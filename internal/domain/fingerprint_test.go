package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintEvent_StableAcrossSubsecond(t *testing.T) {
	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	a := FingerprintEvent(SourceTwitter, "$BTC moon", base)
	b := FingerprintEvent(SourceTwitter, "$BTC moon", base.Add(500*time.Millisecond))
	assert.Equal(t, a, b, "sub-second jitter must not change the fingerprint")

	c := FingerprintEvent(SourceTwitter, "$BTC moon", base.Add(time.Second))
	assert.NotEqual(t, a, c)
}

func TestFingerprintEvent_SourceSeparation(t *testing.T) {
	ts := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	assert.NotEqual(t,
		FingerprintEvent(SourceTwitter, "bitcoin", ts),
		FingerprintEvent(SourceReddit, "bitcoin", ts))
}

func TestNormalizedFingerprint_CollapsesVariants(t *testing.T) {
	a := NormalizedFingerprint("BUY bitcoin NOW!!! 100x gains")
	b := NormalizedFingerprint("buy   bitcoin now 999x gains...")
	assert.Equal(t, a, b, "digits, punctuation and case must not distinguish messages")

	c := NormalizedFingerprint("sell bitcoin now")
	assert.NotEqual(t, a, c)
}

func TestSourceReliability(t *testing.T) {
	assert.Equal(t, 0.5, SourceTwitter.Reliability())
	assert.Equal(t, 0.7, SourceReddit.Reliability())
	assert.Equal(t, 0.3, SourceTelegram.Reliability())
	assert.False(t, Source("discord").Valid())
}
