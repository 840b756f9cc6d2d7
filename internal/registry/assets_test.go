package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinpulse/pulsefeed/internal/clock"
	"github.com/coinpulse/pulsefeed/internal/domain"
)

func staticAssets(assets []domain.Asset) AssetLoader {
	return func(ctx context.Context) ([]domain.Asset, error) { return assets, nil }
}

func testAssets() []domain.Asset {
	return []domain.Asset{
		{Symbol: "BTC", DisplayName: "Bitcoin", Keywords: []string{"btc", "bitcoin"}, Active: true, Priority: 10},
		{Symbol: "ETH", DisplayName: "Ethereum", Keywords: []string{"eth", "ethereum"}, Active: true, Priority: 5},
		{Symbol: "OLD", DisplayName: "Retired", Keywords: []string{"oldcoin"}, Active: false, Priority: 100},
	}
}

func newTestRegistry(t *testing.T, assets []domain.Asset) *AssetRegistry {
	t.Helper()
	clk := clock.NewFixed(time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC))
	r, err := NewAssetRegistry(context.Background(), staticAssets(assets), clk, time.Minute)
	require.NoError(t, err)
	return r
}

func TestDetectAsset_WordBoundaries(t *testing.T) {
	r := newTestRegistry(t, testAssets())

	cases := []struct {
		text string
		want string
	}{
		{"$BTC moon breakout!", "BTC"},
		{"bitcoin discussion thread", "BTC"},
		{"#bitcoin pumping", "BTC"},
		{"BITCOIN", "BTC"},
		{"look at ethereum today", "ETH"},
		{"bitcoincash fork drama", ""}, // substring, not a word match
		{"wen oldcoin", ""},            // inactive asset
		{"nothing relevant here", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, r.DetectAsset(tc.text), "text=%q", tc.text)
	}
}

func TestDetectAsset_PriorityWinsOnConflict(t *testing.T) {
	r := newTestRegistry(t, []domain.Asset{
		{Symbol: "LOW", Keywords: []string{"pulse"}, Active: true, Priority: 1},
		{Symbol: "HIGH", Keywords: []string{"pulse"}, Active: true, Priority: 9},
	})
	assert.Equal(t, "HIGH", r.DetectAsset("pulse check"))
}

func TestDetectAsset_TieBreaksFirstSeen(t *testing.T) {
	r := newTestRegistry(t, []domain.Asset{
		{Symbol: "FIRST", Keywords: []string{"shared"}, Active: true, Priority: 3},
		{Symbol: "SECOND", Keywords: []string{"shared"}, Active: true, Priority: 3},
	})
	assert.Equal(t, "FIRST", r.DetectAsset("shared keyword"))
}

func TestReload_FailurePreservesPrevious(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC))
	fail := false
	loader := func(ctx context.Context) ([]domain.Asset, error) {
		if fail {
			return nil, errors.New("upstream unavailable")
		}
		return testAssets(), nil
	}
	r, err := NewAssetRegistry(context.Background(), loader, clk, time.Minute)
	require.NoError(t, err)

	fail = true
	err = r.Reload(context.Background())
	assert.Error(t, err)
	assert.Equal(t, "BTC", r.DetectAsset("bitcoin"), "previous snapshot must survive a failed reload")
}

func TestNewAssetRegistry_RejectsDuplicateSymbols(t *testing.T) {
	clk := clock.NewFixed(time.Now())
	_, err := NewAssetRegistry(context.Background(), staticAssets([]domain.Asset{
		{Symbol: "BTC", Keywords: []string{"btc"}, Active: true},
		{Symbol: "BTC", Keywords: []string{"bitcoin"}, Active: true},
	}), clk, time.Minute)
	assert.Error(t, err)
}

func TestContainsAny(t *testing.T) {
	r := newTestRegistry(t, testAssets())
	assert.True(t, r.ContainsAny("eth is mooning"))
	assert.False(t, r.ContainsAny("no keywords at all"))
}
