// Package enrich runs the fixed-order enrichment stages for every
// event that clears the time-sync guard: raw insert, rule-based
// sentiment, derived risk indicators. All three writes happen in one
// transaction so readers never see a partial event.
package enrich

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/coinpulse/pulsefeed/internal/domain"
)

// Closed lexicons. Words are matched whole after preprocessing; a word
// appears in exactly one category.
var (
	bullishWords = wordSet(
		"moon", "mooning", "breakout", "bullish", "bull", "rally",
		"surge", "surging", "pumping", "ath", "accumulation", "undervalued",
		"recovery", "rebound", "golden",
	)
	bearishWords = wordSet(
		"bearish", "bear", "crash", "crashing", "correction", "selloff",
		"capitulation", "rekt", "plunge", "tank", "tanking", "overvalued",
		"bubble", "dead",
	)
	fearWords = wordSet(
		"fear", "panic", "scared", "scam", "fraud", "hack", "hacked",
		"liquidation", "liquidated", "worried", "collapse", "bankrupt",
		"insolvent",
	)
	greedWords = wordSet(
		"greed", "fomo", "lambo", "moonshot", "millionaire", "rich",
		"easy", "guaranteed", "jackpot",
	)
)

// Fixed regex patterns applied after the lexicons. The exclamation run
// is recognized but carries no category, so it never moves the score.
var (
	dumpPattern = regexp.MustCompile(`\bdump\w*`)
	rugPattern  = regexp.MustCompile(`\brug(?:pull)?\b`)
	multPattern = regexp.MustCompile(`\b\d{2,4}x\b`)

	urlPattern  = regexp.MustCompile(`https?://\S+`)
	wordPattern = regexp.MustCompile(`[a-z']+`)
)

func wordSet(words ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(words))
	for _, w := range words {
		s[w] = struct{}{}
	}
	return s
}

// Preprocess lowercases and strips URLs and emoji. The original text
// is kept on the raw event for audit; only scoring sees this form.
func Preprocess(text string) string {
	t := strings.ToLower(text)
	t = urlPattern.ReplaceAllString(t, " ")
	t = strings.Map(func(r rune) rune {
		if unicode.Is(unicode.So, r) || unicode.Is(unicode.Sk, r) {
			return -1
		}
		return r
	}, t)
	return strings.Join(strings.Fields(t), " ")
}

// ScoreText applies the lexicons and patterns and returns the counts
// with the derived scores. Deterministic for a given input.
func ScoreText(text string) (domain.SentimentCounts, float64, float64, int) {
	t := Preprocess(text)

	var c domain.SentimentCounts
	for _, w := range wordPattern.FindAllString(t, -1) {
		switch {
		case contains(bullishWords, w):
			c.Bullish++
		case contains(bearishWords, w):
			c.Bearish++
		case contains(fearWords, w):
			c.Fear++
		case contains(greedWords, w):
			c.Greed++
		}
	}
	c.Bearish += len(dumpPattern.FindAllString(t, -1))
	c.Bearish += len(rugPattern.FindAllString(t, -1))
	c.Greed += len(multPattern.FindAllString(t, -1))

	raw := 1.0*float64(c.Bullish) + 0.5*float64(c.Greed) - 1.2*float64(c.Bearish) - 1.5*float64(c.Fear)

	total := c.Total()
	normalized := 0.0
	if total > 0 {
		normalized = clamp(raw/float64(total), -1, 1)
	}
	return c, raw, normalized, ruleLabel(normalized)
}

// ruleLabel buckets a normalized score; both thresholds are inclusive.
func ruleLabel(normalized float64) int {
	switch {
	case normalized >= 0.2:
		return 1
	case normalized <= -0.2:
		return -1
	default:
		return 0
	}
}

func contains(set map[string]struct{}, w string) bool {
	_, ok := set[w]
	return ok
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
