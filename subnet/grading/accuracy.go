package grading

import (
	"github.com/tickernet-ai/tickernet/pkg/protocol"
	"github.com/tickernet-ai/tickernet/subnet/refdata"
)

// fieldWeights ranks reference-checked fields by how hard they are to fake.
// Unknown fields default to 1.0.
var fieldWeights = map[string]float64{
	"company.companyName": 1.5,
	"company.ticker":      1.0,
	"company.marketCap":   2.0,
	"company.sharePrice":  1.8,
	"company.sector":      1.2,
	"company.industry":    1.0,
	"company.website":     0.8,
	"company.exchange":    1.0,
	"company.volume":      1.5,
	"company.eps":         1.3,
	"company.bookValue":   1.0,
	"cryptoHoldings":      1.8,
	"totalCryptoValue":    1.8,
	"sentiment":           1.0,
	"sentimentScore":      1.0,
	"newsArticles":        0.8,
	"totalArticles":       0.8,
}

const defaultFieldWeight = 1.0

// categoryAdjuster reshapes the weighted-average accuracy score using the
// fields that matter most to one analysis category.
type categoryAdjuster interface {
	adjust(base float64, fields map[string]float64) float64
}

var categoryAdjusters = map[protocol.Category]categoryAdjuster{
	protocol.CategoryCrypto:    cryptoAdjuster{},
	protocol.CategoryFinancial: financialAdjuster{},
	protocol.CategorySentiment: sentimentAdjuster{},
	protocol.CategoryNews:      newsAdjuster{},
}

// GradeAccuracy turns a reference score report into an accuracy grade. An
// invalid report or one without field scores grades 0.
func GradeAccuracy(report *refdata.ScoreReport, category protocol.Category) float64 {
	if report == nil || !report.Valid || len(report.FieldScores) == 0 {
		return 0
	}

	base := weightedFieldAverage(report.FieldScores)
	if adjuster, ok := categoryAdjusters[category]; ok {
		base = adjuster.adjust(base, report.FieldScores)
	}
	base = applyQualityAdjustments(base, report)
	return clamp01(base)
}

// weightedFieldAverage averages per-field scores under the field weight
// table. Individual field scores are clamped to [0,1] before weighting so a
// misbehaving provider cannot push the average out of range.
func weightedFieldAverage(fields map[string]float64) float64 {
	totalWeight := 0.0
	weightedSum := 0.0
	for field, score := range fields {
		weight, ok := fieldWeights[field]
		if !ok {
			weight = defaultFieldWeight
		}
		weightedSum += clamp01(score) * weight
		totalWeight += weight
	}
	if totalWeight == 0 {
		return 0
	}
	return weightedSum / totalWeight
}

type cryptoAdjuster struct{}

func (cryptoAdjuster) adjust(base float64, fields map[string]float64) float64 {
	adjusted := base

	keyFields := []string{"cryptoHoldings", "totalCryptoValue", "company.marketCap"}
	if avg, ok := averageOfPresent(fields, keyFields); ok {
		adjusted = base*0.6 + avg*0.4
	}
	if fields["cryptoHoldings"] >= 0.9 {
		adjusted += 0.1
	}
	if fields["totalCryptoValue"] >= 0.9 {
		adjusted += 0.1
	}
	return adjusted
}

type financialAdjuster struct{}

func (financialAdjuster) adjust(base float64, fields map[string]float64) float64 {
	adjusted := base

	keyFields := []string{"company.marketCap", "company.sharePrice"}
	if avg, ok := averageOfPresent(fields, keyFields); ok {
		adjusted = base*0.5 + avg*0.5
	}

	accurate := 0
	for _, field := range keyFields {
		if fields[field] >= 0.8 {
			accurate++
		}
	}
	if accurate >= len(keyFields) {
		adjusted += 0.05 * float64(accurate)
	}
	return adjusted
}

type sentimentAdjuster struct{}

func (sentimentAdjuster) adjust(base float64, fields map[string]float64) float64 {
	adjusted := base

	keyFields := []string{"sentiment", "sentimentScore"}
	present := false
	if avg, ok := averageOfPresent(fields, keyFields); ok {
		adjusted = base*0.3 + avg*0.7
		present = true
	}
	if present {
		adjusted += 0.1
	}
	return adjusted
}

type newsAdjuster struct{}

func (newsAdjuster) adjust(base float64, fields map[string]float64) float64 {
	adjusted := base

	keyFields := []string{"newsArticles", "totalArticles"}
	if avg, ok := averageOfPresent(fields, keyFields); ok {
		adjusted = base*0.7 + avg*0.3
		adjusted += 0.05
	}
	return adjusted
}

func averageOfPresent(fields map[string]float64, keys []string) (float64, bool) {
	sum := 0.0
	count := 0
	for _, key := range keys {
		if score, ok := fields[key]; ok {
			sum += score
			count++
		}
	}
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}

// applyQualityAdjustments layers freshness, completeness, coverage and
// provider-confidence nudges on top of the category-adjusted score.
func applyQualityAdjustments(base float64, report *refdata.ScoreReport) float64 {
	adjusted := base

	switch {
	case report.FreshnessScore >= 0.9:
		adjusted += 0.05
	case report.FreshnessScore <= 0.3:
		adjusted -= 0.05
	}

	switch {
	case report.CompletenessScore >= 0.9:
		adjusted += 0.05
	case report.CompletenessScore <= 0.3:
		adjusted -= 0.05
	}

	fieldCount := len(report.FieldScores)
	switch {
	case fieldCount >= 8:
		adjusted += 0.1
	case fieldCount >= 5:
		adjusted += 0.05
	case fieldCount < 3:
		adjusted -= 0.1
	}

	high := 0
	low := 0
	for _, score := range report.FieldScores {
		if score >= 0.8 {
			high++
		}
		if score < 0.3 {
			low++
		}
	}
	if float64(high) >= float64(fieldCount)*0.8 {
		adjusted += 0.1
	}
	if float64(low) >= float64(fieldCount)*0.5 {
		adjusted -= 0.1
	}

	adjusted += (report.ValidationConfidence - 0.5) * 0.1
	return adjusted
}
