// Package protocol defines the message types exchanged between the validator
// and miners in the ticker intelligence subnet. Every query, miner response
// and per-round validation result flows through these types, so they are kept
// free of business logic beyond basic shape validation.
package protocol

import (
	"regexp"
	"time"
)

// Category identifies the analysis domain a query asks about.
type Category string

const (
	CategoryCrypto    Category = "crypto"    // corporate crypto holdings
	CategoryFinancial Category = "financial" // core financial metrics
	CategorySentiment Category = "sentiment" // market sentiment
	CategoryNews      Category = "news"      // news coverage
)

// Categories returns every valid analysis category in a stable order.
func Categories() []Category {
	return []Category{CategoryCrypto, CategoryFinancial, CategorySentiment, CategoryNews}
}

// Valid reports whether c is one of the fixed analysis categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryCrypto, CategoryFinancial, CategorySentiment, CategoryNews:
		return true
	}
	return false
}

// ComplexityWeight returns the relative effort a category demands from a
// miner. Crypto holdings require the deepest digging, plain financials the
// least.
func (c Category) ComplexityWeight() float64 {
	switch c {
	case CategoryCrypto:
		return 2.0
	case CategoryNews:
		return 1.6
	case CategorySentiment:
		return 1.2
	default:
		return 1.0
	}
}

var tickerPattern = regexp.MustCompile(`^[A-Za-z0-9.-]{1,8}$`)

// IsValidTicker reports whether t is an acceptable ticker symbol: 1-8
// alphanumeric characters, with '.' and '-' allowed only in the interior and
// never doubled. Queries with invalid tickers are never dispatched.
func IsValidTicker(t string) bool {
	if t == "" || !tickerPattern.MatchString(t) {
		return false
	}
	switch t[0] {
	case '.', '-':
		return false
	}
	switch t[len(t)-1] {
	case '.', '-':
		return false
	}
	for i := 0; i+1 < len(t); i++ {
		if (t[i] == '.' || t[i] == '-') && (t[i+1] == '.' || t[i+1] == '-') {
			return false
		}
	}
	return true
}

// Query is a single intelligence request sent to miners. It is created by the
// query generator and treated as read-only afterwards.
type Query struct {
	ID        string         `json:"id"`
	Ticker    string         `json:"ticker"`
	Category  Category       `json:"category"`
	Params    map[string]any `json:"params,omitempty"`
	Organic   bool           `json:"organic"`
	CreatedAt time.Time      `json:"created_at"`
}

// Response is a miner's answer to a query. The payload shape is untrusted:
// graders must tolerate any nesting, missing blocks and wrong types. A nil or
// absent Data block is graded as a failed response.
type Response struct {
	Success      bool           `json:"success"`
	Data         map[string]any `json:"data"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
}

// Company returns the company profile block of the payload, or nil.
func (r *Response) Company() map[string]any {
	if r == nil || r.Data == nil {
		return nil
	}
	m, _ := r.Data["company"].(map[string]any)
	return m
}

// CategoryData returns the category-specific data block of the payload, or nil.
func (r *Response) CategoryData() map[string]any {
	if r == nil || r.Data == nil {
		return nil
	}
	m, _ := r.Data["data"].(map[string]any)
	return m
}

// Confidence returns the miner's declared confidence and whether the payload
// carried a numeric value at all. Range is not checked here; graders penalise
// out-of-range declarations instead of rejecting them.
func (r *Response) Confidence() (float64, bool) {
	if r == nil || r.Data == nil {
		return 0, false
	}
	return AsFloat(r.Data["confidenceScore"])
}

// AsFloat coerces a decoded JSON value to float64. Booleans and strings do
// not coerce; they count as non-numeric.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// FailedResponse builds the placeholder graded in place of a missing or
// undecodable miner reply.
func FailedResponse(ticker, errMsg string) *Response {
	return &Response{
		Success:      false,
		Data:         map[string]any{"company": map[string]any{"ticker": ticker}},
		ErrorMessage: errMsg,
	}
}

// ValidationResult is the per-miner outcome of one scoring round.
type ValidationResult struct {
	MinerID      string  `json:"miner_id"`
	Score        float64 `json:"score"`
	Latency      float64 `json:"latency"` // seconds
	Success      bool    `json:"success"`
	Confidence   float64 `json:"confidence"`
	ErrorMessage string  `json:"error_message,omitempty"`
}

// MinerWeight pairs a miner with its normalized stake weight.
type MinerWeight struct {
	MinerID string  `json:"miner_id"`
	Weight  float64 `json:"weight"`
}
