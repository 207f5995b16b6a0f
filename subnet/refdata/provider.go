// Package refdata implements the trusted reference data boundary: the HTTP
// client for the external intelligence API and the in-memory company
// directory layered on top of it. The rest of the subnet only sees the
// Provider interface and the Directory, never raw HTTP.
package refdata

import (
	"context"
	"time"

	"github.com/tickernet-ai/tickernet/pkg/protocol"
)

// Company is one entry of the known-company universe used to pick query
// tickers and to answer profile lookups.
type Company struct {
	Ticker      string    `json:"ticker"`
	Name        string    `json:"companyName"`
	Sector      string    `json:"sector"`
	Exchange    string    `json:"exchange"`
	Country     string    `json:"country"`
	CountryCode string    `json:"countryCode"`
	MarketCap   float64   `json:"marketCap"`
	Website     string    `json:"website"`
	LastUpdated time.Time `json:"last_updated"`
	Source      string    `json:"data_source"` // "api" or "fallback"
}

// ScoreReport is the reference API's verdict on a miner payload. Optional
// summary signals default to the neutral 0.5 when the API omits them.
type ScoreReport struct {
	Valid                bool
	FieldScores          map[string]float64
	FreshnessScore       float64
	CompletenessScore    float64
	ValidationConfidence float64
}

// NeutralSignal is substituted for any missing optional quality signal.
const NeutralSignal = 0.5

// Provider is the boundary to the trusted reference data service.
type Provider interface {
	// ListCompanies fetches the known-company universe.
	ListCompanies(ctx context.Context) ([]Company, error)

	// Score asks the reference service to grade a miner payload field by
	// field for the given ticker and category.
	Score(ctx context.Context, ticker string, category protocol.Category, payload map[string]any) (*ScoreReport, error)
}
