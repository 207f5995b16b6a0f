// Package querygen decides what the validator asks miners each round. It
// combines weighted category selection, five ticker-selection strategies and
// anti-repetition bookkeeping so miners cannot profit from memorising a
// narrow query stream.
package querygen

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tickernet-ai/tickernet/pkg/protocol"
	"github.com/tickernet-ai/tickernet/subnet/refdata"
)

// Strategy names a ticker-selection approach.
type Strategy string

const (
	StrategyPopular       Strategy = "popular"        // top market caps
	StrategyEmerging      Strategy = "emerging"       // small caps above the floor
	StrategySectorFocused Strategy = "sector_focused" // rotated sector pools
	StrategyDomainFocused Strategy = "domain_focused" // crypto-exposed allow list
	StrategyRandom        Strategy = "random"         // uniform over the universe
)

const (
	maxHistory       = 5000
	recentTickerCap  = 20
	recentCategories = 10
	sectorStreakCap  = 3

	// repeatedCategoryFactor down-weights categories seen among the last
	// ten queries; repeatedStrategyFactor halves the previous strategy.
	repeatedCategoryFactor = 0.8
	repeatedStrategyFactor = 0.5
)

// DefaultStrategyWeights is the synthetic-round strategy distribution.
func DefaultStrategyWeights() map[Strategy]float64 {
	return map[Strategy]float64{
		StrategyPopular:       0.4,
		StrategyEmerging:      0.2,
		StrategySectorFocused: 0.15,
		StrategyDomainFocused: 0.15,
		StrategyRandom:        0.1,
	}
}

// DefaultCategoryWeights is the analysis-category distribution.
func DefaultCategoryWeights() map[protocol.Category]float64 {
	return map[protocol.Category]float64{
		protocol.CategoryCrypto:    0.35,
		protocol.CategoryFinancial: 0.35,
		protocol.CategorySentiment: 0.15,
		protocol.CategoryNews:      0.15,
	}
}

// organicStrategyWeights restricts organic rounds to high-value pools.
func organicStrategyWeights() map[Strategy]float64 {
	return map[Strategy]float64{
		StrategyPopular:       0.6,
		StrategyDomainFocused: 0.3,
		StrategySectorFocused: 0.1,
	}
}

// domainTickers are companies with known crypto exposure.
var domainTickers = []string{
	"MSTR", "TSLA", "COIN", "RIOT", "MARA", "CLSK",
	"HUT", "BITF", "SQ", "PYPL", "NVDA", "AMD",
}

// fallbackTickers backs the last-resort query when generation fails.
var fallbackTickers = []string{"AAPL", "MSFT", "GOOGL", "AMZN", "TSLA"}

type record struct {
	Ticker   string
	Sector   string
	Category protocol.Category
	Strategy Strategy
	Organic  bool
	At       time.Time
}

// Generator produces one query per call. All state is owned by the generator
// instance and guarded by a mutex; nothing is process-global.
type Generator struct {
	dir *refdata.Directory
	log *logrus.Entry

	mu              sync.Mutex
	rng             *rand.Rand
	strategyWeights map[Strategy]float64
	categoryWeights map[protocol.Category]float64
	history         []record
	recentTickers   map[string]struct{}
	sectorRotation  map[string]int
	lastStrategy    Strategy
}

// New creates a generator with default weights. Pass a nil rng for
// time-seeded randomness.
func New(dir *refdata.Directory, log *logrus.Entry, rng *rand.Rand) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Generator{
		dir:             dir,
		log:             log,
		rng:             rng,
		strategyWeights: DefaultStrategyWeights(),
		categoryWeights: DefaultCategoryWeights(),
		recentTickers:   make(map[string]struct{}),
		sectorRotation:  make(map[string]int),
	}
}

// Generate produces the next query. It never fails: any internal problem
// degrades to a fixed fallback query instead of surfacing to the round loop.
// preferredCategory and preferredSector may be empty.
func (g *Generator) Generate(organic bool, preferredCategory protocol.Category, preferredSector string) *protocol.Query {
	g.mu.Lock()
	defer g.mu.Unlock()

	category := preferredCategory
	if !category.Valid() {
		category = g.chooseCategory()
	}
	strategy := g.chooseStrategy(organic)

	ticker, sector := g.tickerForStrategy(strategy, preferredSector)
	if !protocol.IsValidTicker(ticker) {
		g.log.WithField("ticker", ticker).Warn("strategy produced invalid ticker, using fallback query")
		return g.fallbackQuery()
	}

	query := &protocol.Query{
		ID:        uuid.New().String(),
		Ticker:    ticker,
		Category:  category,
		Params:    g.paramsFor(category),
		Organic:   organic,
		CreatedAt: time.Now().UTC(),
	}
	g.record(query, strategy, sector)

	g.log.WithFields(logrus.Fields{
		"ticker":   ticker,
		"category": category,
		"strategy": strategy,
		"organic":  organic,
	}).Info("generated query")

	return query
}

// ForTicker builds an organic query for a caller-chosen ticker. The ticker
// must match the symbol pattern but does not have to be in the known
// universe; consumers may ask about companies the directory has not seen.
func (g *Generator) ForTicker(ticker string, category protocol.Category) (*protocol.Query, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if !protocol.IsValidTicker(ticker) {
		return nil, fmt.Errorf("invalid ticker %q", ticker)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if !category.Valid() {
		category = g.chooseCategory()
	}
	query := &protocol.Query{
		ID:        uuid.New().String(),
		Ticker:    ticker,
		Category:  category,
		Params:    g.paramsFor(category),
		Organic:   true,
		CreatedAt: time.Now().UTC(),
	}
	g.record(query, StrategyRandom, "")
	return query, nil
}

func (g *Generator) chooseCategory() protocol.Category {
	recent := make([]protocol.Category, 0, recentCategories)
	start := len(g.history) - recentCategories
	if start < 0 {
		start = 0
	}
	for _, rec := range g.history[start:] {
		recent = append(recent, rec.Category)
	}

	adjusted := adjustedCategoryWeights(g.categoryWeights, recent)
	return weightedPickCategory(g.rng, adjusted)
}

func (g *Generator) chooseStrategy(organic bool) Strategy {
	var weights map[Strategy]float64
	if organic {
		weights = organicStrategyWeights()
	} else {
		weights = adjustedStrategyWeights(g.strategyWeights, g.lastStrategy)
	}

	strategy := weightedPickStrategy(g.rng, weights)
	g.lastStrategy = strategy
	return strategy
}

// adjustedCategoryWeights down-weights every category occurrence among the
// recent window, then renormalizes.
func adjustedCategoryWeights(weights map[protocol.Category]float64, recent []protocol.Category) map[protocol.Category]float64 {
	adjusted := make(map[protocol.Category]float64, len(weights))
	for cat, w := range weights {
		adjusted[cat] = w
	}
	for _, cat := range recent {
		if _, ok := adjusted[cat]; ok {
			adjusted[cat] *= repeatedCategoryFactor
		}
	}
	normalizeCategoryWeights(adjusted)
	return adjusted
}

// adjustedStrategyWeights halves the weight of the strategy used by the
// immediately preceding call, then renormalizes.
func adjustedStrategyWeights(weights map[Strategy]float64, last Strategy) map[Strategy]float64 {
	adjusted := make(map[Strategy]float64, len(weights))
	for s, w := range weights {
		adjusted[s] = w
	}
	if _, ok := adjusted[last]; ok {
		adjusted[last] *= repeatedStrategyFactor
		normalizeStrategyWeights(adjusted)
	}
	return adjusted
}

func normalizeCategoryWeights(weights map[protocol.Category]float64) {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return
	}
	for cat := range weights {
		weights[cat] /= total
	}
}

func normalizeStrategyWeights(weights map[Strategy]float64) {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return
	}
	for s := range weights {
		weights[s] /= total
	}
}

// weightedPickStrategy draws a strategy proportionally to its weight.
// Iteration order is fixed so draws are reproducible under a seeded rng.
func weightedPickStrategy(rng *rand.Rand, weights map[Strategy]float64) Strategy {
	keys := make([]Strategy, 0, len(weights))
	for s := range weights {
		keys = append(keys, s)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	total := 0.0
	for _, s := range keys {
		total += weights[s]
	}
	target := rng.Float64() * total
	for _, s := range keys {
		target -= weights[s]
		if target <= 0 {
			return s
		}
	}
	return keys[len(keys)-1]
}

func weightedPickCategory(rng *rand.Rand, weights map[protocol.Category]float64) protocol.Category {
	keys := make([]protocol.Category, 0, len(weights))
	for cat := range weights {
		keys = append(keys, cat)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	total := 0.0
	for _, cat := range keys {
		total += weights[cat]
	}
	target := rng.Float64() * total
	for _, cat := range keys {
		target -= weights[cat]
		if target <= 0 {
			return cat
		}
	}
	return keys[len(keys)-1]
}

// tickerForStrategy draws a ticker from the strategy's candidate pool,
// preferring tickers outside the recent-ticker set. Returns the ticker and
// the sector it was drawn from (empty unless sector-focused).
func (g *Generator) tickerForStrategy(strategy Strategy, preferredSector string) (string, string) {
	switch strategy {
	case StrategyPopular:
		return g.pickAvoidingRecent(g.dir.Popular(50)), ""
	case StrategyEmerging:
		return g.pickAvoidingRecent(g.dir.Emerging(30)), ""
	case StrategySectorFocused:
		return g.sectorTicker(preferredSector)
	case StrategyDomainFocused:
		return g.domainTicker(), ""
	default:
		return g.dir.RandomTicker(), ""
	}
}

func (g *Generator) sectorTicker(preferredSector string) (string, string) {
	sectors := g.dir.Sectors()
	if len(sectors) == 0 {
		return g.dir.RandomTicker(), ""
	}

	var chosen string
	switch {
	case preferredSector != "" && contains(sectors, preferredSector):
		chosen = preferredSector
	default:
		underused := make([]string, 0, len(sectors))
		for _, sector := range sectors {
			if g.sectorRotation[sector] < sectorStreakCap {
				underused = append(underused, sector)
			}
		}
		if len(underused) > 0 {
			chosen = underused[g.rng.Intn(len(underused))]
		} else {
			// Every sector hit its streak cap; restart the rotation.
			chosen = sectors[g.rng.Intn(len(sectors))]
			g.sectorRotation = make(map[string]int)
		}
	}
	g.sectorRotation[chosen]++

	pool := g.dir.TickersBySector(chosen)
	if len(pool) == 0 {
		return g.dir.RandomTicker(), ""
	}
	return g.pickAvoidingRecent(pool), chosen
}

func (g *Generator) domainTicker() string {
	available := make([]string, 0, len(domainTickers))
	for _, ticker := range domainTickers {
		if g.dir.Contains(ticker) {
			available = append(available, ticker)
		}
	}
	if len(available) > 0 {
		return g.pickAvoidingRecent(available)
	}

	if tech := g.dir.TickersBySector("Technology"); len(tech) > 0 {
		return tech[g.rng.Intn(len(tech))]
	}
	return g.dir.RandomTicker()
}

func (g *Generator) pickAvoidingRecent(pool []string) string {
	if len(pool) == 0 {
		return g.dir.RandomTicker()
	}
	fresh := make([]string, 0, len(pool))
	for _, ticker := range pool {
		if _, seen := g.recentTickers[ticker]; !seen {
			fresh = append(fresh, ticker)
		}
	}
	if len(fresh) > 0 {
		return fresh[g.rng.Intn(len(fresh))]
	}
	return pool[g.rng.Intn(len(pool))]
}

// paramsFor synthesizes the category-specific request parameters.
func (g *Generator) paramsFor(category protocol.Category) map[string]any {
	switch category {
	case protocol.CategoryCrypto:
		return map[string]any{
			"currentHoldings":    true,
			"historicalHoldings": g.rng.Intn(2) == 0,
		}
	case protocol.CategoryFinancial:
		fields := []string{
			"address", "country", "countryCode", "currency", "description", "exchange",
			"industry", "marketCap", "companyName", "website", "sector", "symbol",
			"sharesFloat", "sharesOutstanding",
		}
		g.rng.Shuffle(len(fields), func(i, j int) { fields[i], fields[j] = fields[j], fields[i] })
		count := 3 + g.rng.Intn(3)
		return map[string]any{"fields": fields[:count]}
	case protocol.CategorySentiment:
		timeframes := []string{"1D", "7D", "30D"}
		sourceSets := [][]string{
			{"social", "news"},
			{"news", "analyst"},
			{"social", "news", "analyst"},
		}
		return map[string]any{
			"timeframe": timeframes[g.rng.Intn(len(timeframes))],
			"sources":   sourceSets[g.rng.Intn(len(sourceSets))],
		}
	case protocol.CategoryNews:
		timeframes := []string{"1D", "3D", "7D", "14D"}
		return map[string]any{
			"max_articles":      5 + g.rng.Intn(16),
			"timeframe":         timeframes[g.rng.Intn(len(timeframes))],
			"include_sentiment": true,
		}
	}
	return map[string]any{}
}

func (g *Generator) record(query *protocol.Query, strategy Strategy, sector string) {
	if sector == "" {
		if co, ok := g.dir.Lookup(query.Ticker); ok {
			sector = co.Sector
		}
	}
	g.history = append(g.history, record{
		Ticker:   query.Ticker,
		Sector:   sector,
		Category: query.Category,
		Strategy: strategy,
		Organic:  query.Organic,
		At:       query.CreatedAt,
	})
	if len(g.history) > maxHistory {
		g.history = g.history[len(g.history)-maxHistory:]
	}

	g.recentTickers[query.Ticker] = struct{}{}
	if len(g.recentTickers) > recentTickerCap {
		// Evict the tickers of queries that have aged past the last 20,
		// looking back at most 50 entries.
		start := len(g.history) - 50
		if start < 0 {
			start = 0
		}
		end := len(g.history) - recentTickerCap
		if end < start {
			end = start
		}
		for _, rec := range g.history[start:end] {
			delete(g.recentTickers, rec.Ticker)
		}
	}
}

func (g *Generator) fallbackQuery() *protocol.Query {
	ticker := fallbackTickers[g.rng.Intn(len(fallbackTickers))]
	query := &protocol.Query{
		ID:        uuid.New().String(),
		Ticker:    ticker,
		Category:  protocol.CategoryFinancial,
		Params:    map[string]any{"fallback": true},
		CreatedAt: time.Now().UTC(),
	}
	g.record(query, StrategyRandom, "")
	return query
}

// Stats summarises recent generation activity for diagnostics endpoints.
type Stats struct {
	TotalQueries  int                       `json:"total_queries"`
	OrganicShare  float64                   `json:"organic_share"`
	ByCategory    map[protocol.Category]int `json:"by_category"`
	ByStrategy    map[Strategy]int          `json:"by_strategy"`
	BySector      map[string]int            `json:"by_sector"`
	RecentTickers []string                  `json:"recent_tickers"`
}

// Stats reports distribution counters over the retained history.
func (g *Generator) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()

	stats := Stats{
		TotalQueries: len(g.history),
		ByCategory:   make(map[protocol.Category]int),
		ByStrategy:   make(map[Strategy]int),
		BySector:     make(map[string]int),
	}
	organic := 0
	for _, rec := range g.history {
		stats.ByCategory[rec.Category]++
		stats.ByStrategy[rec.Strategy]++
		if rec.Sector != "" {
			stats.BySector[rec.Sector]++
		}
		if rec.Organic {
			organic++
		}
	}
	if len(g.history) > 0 {
		stats.OrganicShare = float64(organic) / float64(len(g.history))
	}

	stats.RecentTickers = make([]string, 0, len(g.recentTickers))
	for ticker := range g.recentTickers {
		stats.RecentTickers = append(stats.RecentTickers, ticker)
	}
	sort.Strings(stats.RecentTickers)
	return stats
}

// SetStrategyWeights replaces the synthetic strategy distribution. The new
// weights must cover every strategy and sum to 1.0 within a small tolerance.
func (g *Generator) SetStrategyWeights(weights map[Strategy]float64) error {
	if err := validateWeightSum(sumStrategyWeights(weights)); err != nil {
		return err
	}
	for s := range DefaultStrategyWeights() {
		if _, ok := weights[s]; !ok {
			return fmt.Errorf("missing weight for strategy %q", s)
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.strategyWeights = make(map[Strategy]float64, len(weights))
	for s, w := range weights {
		g.strategyWeights[s] = w
	}
	return nil
}

// SetCategoryWeights replaces the category distribution under the same rules.
func (g *Generator) SetCategoryWeights(weights map[protocol.Category]float64) error {
	if err := validateWeightSum(sumCategoryWeights(weights)); err != nil {
		return err
	}
	for cat := range DefaultCategoryWeights() {
		if _, ok := weights[cat]; !ok {
			return fmt.Errorf("missing weight for category %q", cat)
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.categoryWeights = make(map[protocol.Category]float64, len(weights))
	for cat, w := range weights {
		g.categoryWeights[cat] = w
	}
	return nil
}

func sumStrategyWeights(weights map[Strategy]float64) float64 {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	return total
}

func sumCategoryWeights(weights map[protocol.Category]float64) float64 {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	return total
}

func validateWeightSum(total float64) error {
	if math.Abs(total-1.0) > 0.01 {
		return fmt.Errorf("weights must sum to 1.0, got %.4f", total)
	}
	return nil
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
