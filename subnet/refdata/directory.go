package refdata

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// emergingCapCeiling is the market-cap ceiling (USD) below which a company
// counts as emerging.
const emergingCapCeiling = 10_000_000_000

// fallbackUniverse keeps query generation alive when the reference API is
// unreachable.
var fallbackUniverse = map[string][]string{
	"Technology": {"AAPL", "MSFT", "GOOGL", "META", "NVDA", "TSLA", "NFLX", "AMZN"},
	"Healthcare": {"JNJ", "PFE", "UNH", "ABBV", "TMO", "DHR", "CVS", "MRK"},
	"Financial":  {"JPM", "BAC", "WFC", "GS", "MS", "C", "COF", "AXP"},
	"Energy":     {"XOM", "CVX", "COP", "EOG", "PXD", "SLB", "MRO", "VLO"},
	"Consumer":   {"PG", "KO", "PEP", "WMT", "HD", "MCD", "NKE", "SBUX"},
	"Industrial": {"BA", "CAT", "GE", "HON", "UPS", "LMT", "MMM", "FDX"},
	"Materials":  {"LIN", "APD", "SHW", "ECL", "FCX", "NEM", "DOW", "DD"},
	"Utilities":  {"NEE", "SO", "DUK", "AEP", "EXC", "XEL", "PEG", "SRE"},
}

// Directory is the in-memory company universe used by the query generator.
// It refreshes from the Provider on a wall-clock TTL and serves lookups,
// sector indexes and ranked pools without further network calls.
type Directory struct {
	provider     Provider
	refreshEvery time.Duration
	log          *logrus.Entry

	mu          sync.RWMutex
	companies   map[string]Company
	sectors     map[string][]string
	lastRefresh time.Time
	rng         *rand.Rand
}

// DirectoryStats summarises directory state for snapshots and /stats.
type DirectoryStats struct {
	TotalCompanies  int            `json:"total_companies"`
	Sectors         int            `json:"sectors"`
	SectorBreakdown map[string]int `json:"sector_breakdown"`
	LastRefresh     time.Time      `json:"last_refresh"`
	FromFallback    bool           `json:"from_fallback"`
}

// NewDirectory creates a directory pre-loaded with the fallback universe so
// ticker selection works before the first successful refresh. Pass a nil rng
// for time-seeded randomness.
func NewDirectory(provider Provider, refreshEvery time.Duration, log *logrus.Entry, rng *rand.Rand) *Directory {
	if refreshEvery <= 0 {
		refreshEvery = time.Hour
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	d := &Directory{
		provider:     provider,
		refreshEvery: refreshEvery,
		log:          log,
		rng:          rng,
	}
	d.loadFallback()
	return d
}

func (d *Directory) loadFallback() {
	companies := make(map[string]Company)
	sectors := make(map[string][]string)
	now := time.Now().UTC()

	for sector, tickers := range fallbackUniverse {
		sectors[sector] = append([]string(nil), tickers...)
		for _, ticker := range tickers {
			companies[ticker] = Company{
				Ticker:      ticker,
				Name:        ticker + " Corporation",
				Sector:      sector,
				Exchange:    "NASDAQ",
				Country:     "USA",
				CountryCode: "US",
				LastUpdated: now,
				Source:      "fallback",
			}
		}
	}

	d.mu.Lock()
	d.companies = companies
	d.sectors = sectors
	d.mu.Unlock()

	d.log.WithField("companies", len(companies)).Info("loaded fallback company universe")
}

// NeedsRefresh reports whether the directory content is older than the TTL.
func (d *Directory) NeedsRefresh() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastRefresh.IsZero() || time.Since(d.lastRefresh) > d.refreshEvery
}

// Refresh replaces the universe with fresh API data. A failed refresh keeps
// the current content (fallback or stale API data) in place.
func (d *Directory) Refresh(ctx context.Context, force bool) error {
	if !force && !d.NeedsRefresh() {
		return nil
	}

	list, err := d.provider.ListCompanies(ctx)
	if err != nil {
		d.log.WithError(err).Warn("company universe refresh failed, keeping current data")
		return err
	}
	if len(list) == 0 {
		d.log.Warn("reference API returned empty company universe, keeping current data")
		return nil
	}

	companies := make(map[string]Company, len(list))
	sectors := make(map[string][]string)
	for _, co := range list {
		companies[co.Ticker] = co
		sectors[co.Sector] = append(sectors[co.Sector], co.Ticker)
	}

	d.mu.Lock()
	d.companies = companies
	d.sectors = sectors
	d.lastRefresh = time.Now()
	d.mu.Unlock()

	d.log.WithFields(logrus.Fields{"companies": len(companies), "sectors": len(sectors)}).
		Info("company universe refreshed")
	return nil
}

// Lookup returns the profile for a ticker.
func (d *Directory) Lookup(ticker string) (Company, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	co, ok := d.companies[ticker]
	return co, ok
}

// Contains reports whether a ticker is part of the known universe.
func (d *Directory) Contains(ticker string) bool {
	_, ok := d.Lookup(ticker)
	return ok
}

// Len returns the number of known companies.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.companies)
}

// Sectors returns all sector names.
func (d *Directory) Sectors() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.sectors))
	for sector := range d.sectors {
		out = append(out, sector)
	}
	sort.Strings(out)
	return out
}

// TickersBySector returns the tickers of one sector.
func (d *Directory) TickersBySector(sector string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.sectors[sector]...)
}

// Popular returns up to limit tickers ranked by market cap, largest first.
// When no company carries a market cap (fallback data), it falls back to the
// Technology sector.
func (d *Directory) Popular(limit int) []string {
	d.mu.RLock()
	ranked := make([]Company, 0, len(d.companies))
	for _, co := range d.companies {
		if co.MarketCap > 0 {
			ranked = append(ranked, co)
		}
	}
	d.mu.RUnlock()

	if len(ranked) == 0 {
		tech := d.TickersBySector("Technology")
		if len(tech) > limit {
			tech = tech[:limit]
		}
		return tech
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].MarketCap != ranked[j].MarketCap {
			return ranked[i].MarketCap > ranked[j].MarketCap
		}
		return ranked[i].Ticker < ranked[j].Ticker
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]string, len(ranked))
	for i, co := range ranked {
		out[i] = co.Ticker
	}
	return out
}

// Emerging returns up to limit tickers with the smallest positive market caps
// under the emerging ceiling, smallest first. Without market-cap data it
// returns a random sample instead.
func (d *Directory) Emerging(limit int) []string {
	d.mu.RLock()
	ranked := make([]Company, 0, len(d.companies))
	for _, co := range d.companies {
		if co.MarketCap > 0 && co.MarketCap < emergingCapCeiling {
			ranked = append(ranked, co)
		}
	}
	d.mu.RUnlock()

	if len(ranked) == 0 {
		return d.randomSample(limit)
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].MarketCap != ranked[j].MarketCap {
			return ranked[i].MarketCap < ranked[j].MarketCap
		}
		return ranked[i].Ticker < ranked[j].Ticker
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]string, len(ranked))
	for i, co := range ranked {
		out[i] = co.Ticker
	}
	return out
}

// RandomTicker draws one ticker uniformly from the universe.
func (d *Directory) RandomTicker() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.companies) == 0 {
		return "AAPL"
	}
	tickers := make([]string, 0, len(d.companies))
	for ticker := range d.companies {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)
	return tickers[d.rng.Intn(len(tickers))]
}

func (d *Directory) randomSample(limit int) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	tickers := make([]string, 0, len(d.companies))
	for ticker := range d.companies {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)
	d.rng.Shuffle(len(tickers), func(i, j int) {
		tickers[i], tickers[j] = tickers[j], tickers[i]
	})
	if len(tickers) > limit {
		tickers = tickers[:limit]
	}
	return tickers
}

// Stats summarises the directory for diagnostics.
func (d *Directory) Stats() DirectoryStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	breakdown := make(map[string]int, len(d.sectors))
	fromFallback := false
	for sector, tickers := range d.sectors {
		breakdown[sector] = len(tickers)
	}
	for _, co := range d.companies {
		if co.Source == "fallback" {
			fromFallback = true
			break
		}
	}

	return DirectoryStats{
		TotalCompanies:  len(d.companies),
		Sectors:         len(d.sectors),
		SectorBreakdown: breakdown,
		LastRefresh:     d.lastRefresh,
		FromFallback:    fromFallback,
	}
}
