package refdata

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickernet-ai/tickernet/pkg/protocol"
)

type fakeProvider struct {
	companies []Company
	err       error
	calls     int
}

func (f *fakeProvider) ListCompanies(ctx context.Context) ([]Company, error) {
	f.calls++
	return f.companies, f.err
}

func (f *fakeProvider) Score(ctx context.Context, ticker string, category protocol.Category, payload map[string]any) (*ScoreReport, error) {
	return nil, errors.New("not implemented")
}

func newTestDirectory(provider Provider) *Directory {
	return NewDirectory(provider, time.Hour, testLogger(), rand.New(rand.NewSource(42)))
}

func TestDirectoryStartsWithFallback(t *testing.T) {
	dir := newTestDirectory(&fakeProvider{})

	assert.Greater(t, dir.Len(), 0)
	assert.True(t, dir.Contains("AAPL"))
	assert.Contains(t, dir.Sectors(), "Technology")
	assert.True(t, dir.Stats().FromFallback)

	co, ok := dir.Lookup("JPM")
	require.True(t, ok)
	assert.Equal(t, "Financial", co.Sector)
}

func TestDirectoryRefreshReplacesUniverse(t *testing.T) {
	provider := &fakeProvider{companies: []Company{
		{Ticker: "BIG", Name: "Big Corp", Sector: "Technology", MarketCap: 5e12, Source: "api"},
		{Ticker: "MID", Name: "Mid Corp", Sector: "Energy", MarketCap: 8e9, Source: "api"},
		{Ticker: "TINY", Name: "Tiny Corp", Sector: "Energy", MarketCap: 2e9, Source: "api"},
	}}
	dir := newTestDirectory(provider)

	require.NoError(t, dir.Refresh(context.Background(), true))

	assert.Equal(t, 3, dir.Len())
	assert.False(t, dir.Contains("AAPL"), "fallback data replaced by API universe")
	assert.False(t, dir.Stats().FromFallback)
	assert.ElementsMatch(t, []string{"MID", "TINY"}, dir.TickersBySector("Energy"))
}

func TestDirectoryRefreshFailureKeepsData(t *testing.T) {
	provider := &fakeProvider{err: errors.New("api down")}
	dir := newTestDirectory(provider)

	err := dir.Refresh(context.Background(), true)
	require.Error(t, err)
	assert.True(t, dir.Contains("AAPL"), "failed refresh keeps existing universe")
}

func TestDirectoryRefreshSkippedWhileFresh(t *testing.T) {
	provider := &fakeProvider{companies: []Company{{Ticker: "BIG", Sector: "Technology", MarketCap: 1e12}}}
	dir := newTestDirectory(provider)

	require.NoError(t, dir.Refresh(context.Background(), true))
	require.NoError(t, dir.Refresh(context.Background(), false))
	assert.Equal(t, 1, provider.calls, "fresh directory must not re-fetch")
}

func TestPopularRankedByMarketCap(t *testing.T) {
	provider := &fakeProvider{companies: []Company{
		{Ticker: "BIG", Sector: "Technology", MarketCap: 5e12},
		{Ticker: "MID", Sector: "Energy", MarketCap: 8e9},
		{Ticker: "TINY", Sector: "Energy", MarketCap: 2e9},
	}}
	dir := newTestDirectory(provider)
	require.NoError(t, dir.Refresh(context.Background(), true))

	assert.Equal(t, []string{"BIG", "MID"}, dir.Popular(2))
}

func TestPopularFallsBackToTechnology(t *testing.T) {
	dir := newTestDirectory(&fakeProvider{})

	popular := dir.Popular(3)
	require.Len(t, popular, 3)
	for _, ticker := range popular {
		co, ok := dir.Lookup(ticker)
		require.True(t, ok)
		assert.Equal(t, "Technology", co.Sector)
	}
}

func TestEmergingSmallestFirstUnderCeiling(t *testing.T) {
	provider := &fakeProvider{companies: []Company{
		{Ticker: "BIG", Sector: "Technology", MarketCap: 5e12},
		{Ticker: "MID", Sector: "Energy", MarketCap: 8e9},
		{Ticker: "TINY", Sector: "Energy", MarketCap: 2e9},
	}}
	dir := newTestDirectory(provider)
	require.NoError(t, dir.Refresh(context.Background(), true))

	assert.Equal(t, []string{"TINY", "MID"}, dir.Emerging(5), "mega caps are never emerging")
}

func TestEmergingWithoutCapsReturnsSample(t *testing.T) {
	dir := newTestDirectory(&fakeProvider{})

	sample := dir.Emerging(4)
	assert.Len(t, sample, 4)
	for _, ticker := range sample {
		assert.True(t, dir.Contains(ticker))
	}
}

func TestRandomTickerIsKnown(t *testing.T) {
	dir := newTestDirectory(&fakeProvider{})
	for i := 0; i < 20; i++ {
		assert.True(t, dir.Contains(dir.RandomTicker()))
	}
}
