package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreText_BullishTweet(t *testing.T) {
	counts, raw, normalized, label := ScoreText("$BTC moon breakout!")

	assert.Equal(t, 2, counts.Bullish)
	assert.Equal(t, 0, counts.Bearish+counts.Fear+counts.Greed)
	assert.InDelta(t, 2.0, raw, 1e-9)
	assert.InDelta(t, 1.0, normalized, 1e-9)
	assert.Equal(t, 1, label)
}

func TestScoreText_ZeroMatches(t *testing.T) {
	counts, raw, normalized, label := ScoreText("just had lunch")

	assert.Equal(t, 0, counts.Total())
	assert.Zero(t, raw)
	assert.Zero(t, normalized)
	assert.Equal(t, 0, label)
}

func TestScoreText_Patterns(t *testing.T) {
	cases := []struct {
		name    string
		text    string
		bearish int
		greed   int
	}{
		{"dump prefix", "they will dump it", 1, 0},
		{"dumping", "whales dumping hard", 1, 0},
		{"rug", "total rug on holders", 1, 0},
		{"rugpull", "classic rugpull", 1, 0},
		{"multiplier", "easy 100x from here", 0, 2}, // "easy" plus the pattern
		{"five digit multiplier ignored", "a 10000x claim", 0, 0},
		{"bangs carry no category", "wow!! big news!!", 0, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			counts, _, _, _ := ScoreText(tc.text)
			assert.Equal(t, tc.bearish, counts.Bearish, "bearish")
			assert.Equal(t, tc.greed, counts.Greed, "greed")
		})
	}
}

func TestScoreText_FearOutweighsBullish(t *testing.T) {
	// 1.0 - 1.5 = -0.5 over 2 matches = -0.25.
	_, raw, normalized, label := ScoreText("rally into liquidation")
	assert.InDelta(t, -0.5, raw, 1e-9)
	assert.InDelta(t, -0.25, normalized, 1e-9)
	assert.Equal(t, -1, label)
}

func TestScoreText_ClampsToUnitRange(t *testing.T) {
	// Fear weight 1.5 per match would push past -1 without the clamp.
	_, _, normalized, _ := ScoreText("panic panic panic")
	assert.Equal(t, -1.0, normalized)
}

func TestRuleLabel_InclusiveThresholds(t *testing.T) {
	assert.Equal(t, 1, ruleLabel(0.2))
	assert.Equal(t, -1, ruleLabel(-0.2))
	assert.Equal(t, 0, ruleLabel(0.199))
	assert.Equal(t, 0, ruleLabel(-0.199))
	assert.Equal(t, 0, ruleLabel(0))
}

func TestPreprocess_StripsURLsAndEmoji(t *testing.T) {
	got := Preprocess("BTC mooning \U0001F680 see https://example.com/chart NOW")
	assert.Equal(t, "btc mooning see now", got)
}

func TestScoreText_WholeWordOnly(t *testing.T) {
	// "moonbeam" must not count as "moon".
	counts, _, _, _ := ScoreText("moonbeam network update")
	assert.Equal(t, 0, counts.Bullish)
}
