// Package grading implements the two-tier response grader: a structural tier
// that checks schema conformance and completeness of a miner payload, and an
// accuracy tier that weighs the payload against reference data. The composite
// validator blends both tiers with latency and confidence signals.
package grading

import (
	"regexp"

	"github.com/tickernet-ai/tickernet/pkg/protocol"
)

// Structural point budget. Envelope presence earns 40, the six company
// profile fields earn 60, a range-valid confidence earns 20.
const (
	pointsSuccessFlag     = 10.0
	pointsDataBlock       = 20.0
	pointsConfidenceSet   = 10.0
	pointsPerProfileField = 10.0
	pointsConfidenceValid = 20.0
	structureBudget       = 120.0
)

// profileFields are the company sub-fields that count toward completeness.
var profileFields = []string{
	"companyName", "website", "exchange", "sector", "marketCap", "sharePrice",
}

var currencyPattern = regexp.MustCompile(`^[A-Z]{3,10}$`)

// GradeStructure scores how well a payload conforms to the expected response
// shape, independent of factual correctness. An absent or empty data block is
// an envelope failure and scores 0. Schema-valid category data averages the
// envelope score with a per-category completeness score; schema violations
// cut the envelope score by 20% instead.
func GradeStructure(resp *protocol.Response, category protocol.Category) float64 {
	if resp == nil || len(resp.Data) == 0 {
		return 0
	}

	score := pointsSuccessFlag + pointsDataBlock
	raw, confidencePresent := resp.Data["confidenceScore"]
	if confidencePresent {
		score += pointsConfidenceSet
	}

	company := resp.Company()
	for _, field := range profileFields {
		if hasValue(company, field) {
			score += pointsPerProfileField
		}
	}

	if conf, ok := protocol.AsFloat(raw); confidencePresent && ok && conf >= 0 && conf <= 1 {
		score += pointsConfidenceValid
	}

	base := score / structureBudget

	if data := resp.CategoryData(); resp.Success && len(data) > 0 {
		completeness := categoryCompleteness(data, category)
		if categorySchemaValid(data, category) {
			base = (base + completeness) / 2
		} else {
			base *= 0.8
		}
	}

	if resp.Success && base > 0.8 {
		base += 0.1
	}
	return clamp01(base)
}

// hasValue reports whether a field exists with a non-empty, non-null value.
func hasValue(m map[string]any, key string) bool {
	v, ok := m[key]
	if !ok || v == nil {
		return false
	}
	if s, isStr := v.(string); isStr {
		return s != ""
	}
	if f, isNum := protocol.AsFloat(v); isNum {
		return f != 0
	}
	return true
}

// categoryCompleteness measures how much of the category-specific payload a
// miner filled in. Each category has its own fixed field-share formula.
func categoryCompleteness(data map[string]any, category protocol.Category) float64 {
	switch category {
	case protocol.CategoryCrypto:
		return cryptoCompleteness(data)
	case protocol.CategoryFinancial:
		return financialCompleteness(data)
	case protocol.CategorySentiment:
		return sentimentCompleteness(data)
	case protocol.CategoryNews:
		return newsCompleteness(data)
	}
	return 0.5
}

func cryptoCompleteness(data map[string]any) float64 {
	score := 0.0
	if raw, ok := data["currentHoldings"]; ok {
		score += 0.4
		if holdings, isList := raw.([]any); isList && len(holdings) > 0 {
			score += 0.2
			for _, h := range holdings {
				entry, isMap := h.(map[string]any)
				if !isMap {
					continue
				}
				if _, c := entry["currency"]; !c {
					continue
				}
				if _, a := entry["amount"]; !a {
					continue
				}
				if _, u := entry["usdValue"]; u {
					score += 0.1
					break
				}
			}
		}
	}
	if _, ok := data["currentTotalUsd"]; ok {
		score += 0.2
	}
	if _, ok := data["historicalHoldings"]; ok {
		score += 0.1
	}
	return clamp01(score)
}

func financialCompleteness(data map[string]any) float64 {
	important := []string{"marketCap", "sharePrice", "volume", "eps", "sector"}
	present := 0
	for _, field := range important {
		if _, ok := data[field]; ok {
			present++
		}
	}
	return float64(present) / float64(len(important))
}

func sentimentCompleteness(data map[string]any) float64 {
	score := 0.0
	if _, ok := data["overallSentiment"]; ok {
		score += 0.3
	}
	if _, ok := data["sentimentScore"]; ok {
		score += 0.3
	}
	if _, ok := data["confidence"]; ok {
		score += 0.2
	}
	if sources, ok := data["sources"].([]any); ok && sources != nil {
		score += 0.2
	}
	return clamp01(score)
}

func newsCompleteness(data map[string]any) float64 {
	score := 0.0
	if articles, ok := data["articles"].([]any); ok {
		score += 0.5
		if len(articles) > 0 {
			score += 0.2
			if first, isMap := articles[0].(map[string]any); isMap {
				if _, t := first["title"]; t {
					if _, s := first["source"]; s {
						if _, d := first["published_date"]; d {
							score += 0.2
						}
					}
				}
			}
		}
	}
	if _, ok := data["summary"]; ok {
		score += 0.1
	}
	return clamp01(score)
}

// categorySchemaValid applies the per-category shape rules. Optional fields
// may be absent, but a present field with the wrong type or an out-of-range
// value is a violation.
func categorySchemaValid(data map[string]any, category protocol.Category) bool {
	switch category {
	case protocol.CategoryCrypto:
		return cryptoSchemaValid(data)
	case protocol.CategoryFinancial:
		return financialSchemaValid(data)
	case protocol.CategorySentiment:
		return sentimentSchemaValid(data)
	case protocol.CategoryNews:
		return newsSchemaValid(data)
	}
	return true
}

func cryptoSchemaValid(data map[string]any) bool {
	if raw, ok := data["currentHoldings"]; ok {
		holdings, isList := raw.([]any)
		if !isList {
			return false
		}
		for _, h := range holdings {
			entry, isMap := h.(map[string]any)
			if !isMap {
				return false
			}
			currency, isStr := entry["currency"].(string)
			if !isStr || !currencyPattern.MatchString(currency) {
				return false
			}
			if !nonNegativeNumber(entry["amount"]) || !nonNegativeNumber(entry["usdValue"]) {
				return false
			}
		}
	}
	if raw, ok := data["currentTotalUsd"]; ok && !nonNegativeNumber(raw) {
		return false
	}
	if raw, ok := data["historicalHoldings"]; ok {
		records, isList := raw.([]any)
		if !isList {
			return false
		}
		for _, r := range records {
			entry, isMap := r.(map[string]any)
			if !isMap {
				return false
			}
			if _, isStr := entry["recordedAt"].(string); !isStr {
				return false
			}
			if !nonNegativeNumber(entry["totalUsdValue"]) {
				return false
			}
		}
	}
	return true
}

func financialSchemaValid(data map[string]any) bool {
	for _, field := range []string{"volume", "eps", "bookValue"} {
		if raw, ok := data[field]; ok && raw != nil {
			if _, isNum := protocol.AsFloat(raw); !isNum {
				return false
			}
		}
	}
	if raw, ok := data["industry"]; ok && raw != nil {
		if _, isStr := raw.(string); !isStr {
			return false
		}
	}
	return true
}

func sentimentSchemaValid(data map[string]any) bool {
	label, isStr := data["overallSentiment"].(string)
	if !isStr {
		return false
	}
	switch label {
	case "positive", "negative", "neutral":
	default:
		return false
	}

	score, isNum := protocol.AsFloat(data["sentimentScore"])
	if !isNum || score < -1 || score > 1 {
		return false
	}

	if raw, ok := data["confidence"]; ok {
		conf, numeric := protocol.AsFloat(raw)
		if !numeric || conf < 0 || conf > 1 {
			return false
		}
	}
	return true
}

func newsSchemaValid(data map[string]any) bool {
	articles, isList := data["articles"].([]any)
	if !isList || len(articles) == 0 {
		return false
	}
	for _, a := range articles {
		entry, isMap := a.(map[string]any)
		if !isMap {
			return false
		}
		for _, field := range []string{"title", "source", "published_date"} {
			if s, isStr := entry[field].(string); !isStr || s == "" {
				return false
			}
		}
	}

	summary, isMap := data["summary"].(map[string]any)
	if !isMap {
		return false
	}
	total, isNum := protocol.AsFloat(summary["total_articles"])
	return isNum && total >= 0
}

func nonNegativeNumber(v any) bool {
	f, ok := protocol.AsFloat(v)
	return ok && f >= 0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
