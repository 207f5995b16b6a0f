package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tickernet-ai/tickernet/pkg/protocol"
	"github.com/tickernet-ai/tickernet/subnet/refdata"
)

func neutralReport(fields map[string]float64) *refdata.ScoreReport {
	return &refdata.ScoreReport{
		Valid:                true,
		FieldScores:          fields,
		FreshnessScore:       refdata.NeutralSignal,
		CompletenessScore:    refdata.NeutralSignal,
		ValidationConfidence: refdata.NeutralSignal,
	}
}

func TestGradeAccuracyInvalidReport(t *testing.T) {
	assert.Zero(t, GradeAccuracy(nil, protocol.CategoryFinancial))
	assert.Zero(t, GradeAccuracy(&refdata.ScoreReport{Valid: false}, protocol.CategoryFinancial))
	assert.Zero(t, GradeAccuracy(neutralReport(nil), protocol.CategoryFinancial))
}

func TestWeightedFieldAverage(t *testing.T) {
	// marketCap carries weight 2.0, website 0.8.
	avg := weightedFieldAverage(map[string]float64{
		"company.marketCap": 1.0,
		"company.website":   0.0,
	})
	assert.InDelta(t, 2.0/2.8, avg, 1e-9)

	assert.InDelta(t, 0.5, weightedFieldAverage(map[string]float64{"unknownField": 0.5}), 1e-9,
		"unknown fields use the default weight")
}

func TestWeightedFieldAverageClampsOutliers(t *testing.T) {
	avg := weightedFieldAverage(map[string]float64{
		"company.marketCap": 5.0,
		"company.website":   -2.0,
	})
	assert.LessOrEqual(t, avg, 1.0)
	assert.GreaterOrEqual(t, avg, 0.0)
}

func TestCryptoAdjusterBlendsAndBonuses(t *testing.T) {
	fields := map[string]float64{
		"cryptoHoldings":    0.95,
		"totalCryptoValue":  0.92,
		"company.marketCap": 0.9,
	}
	base := 0.5
	adjusted := cryptoAdjuster{}.adjust(base, fields)

	keyAvg := (0.95 + 0.92 + 0.9) / 3
	expected := base*0.6 + keyAvg*0.4 + 0.1 + 0.1
	assert.InDelta(t, expected, adjusted, 1e-9)
}

func TestCryptoAdjusterWithoutKeyFields(t *testing.T) {
	adjusted := cryptoAdjuster{}.adjust(0.5, map[string]float64{"company.website": 0.9})
	assert.InDelta(t, 0.5, adjusted, 1e-9)
}

func TestFinancialAdjusterHighAccuracyBonus(t *testing.T) {
	fields := map[string]float64{
		"company.marketCap":  0.9,
		"company.sharePrice": 0.85,
	}
	adjusted := financialAdjuster{}.adjust(0.6, fields)

	keyAvg := (0.9 + 0.85) / 2
	expected := 0.6*0.5 + keyAvg*0.5 + 0.05*2
	assert.InDelta(t, expected, adjusted, 1e-9)
}

func TestSentimentAdjusterFlatBonus(t *testing.T) {
	adjusted := sentimentAdjuster{}.adjust(0.6, map[string]float64{"sentiment": 0.8})
	assert.InDelta(t, 0.6*0.3+0.8*0.7+0.1, adjusted, 1e-9)
}

func TestNewsAdjuster(t *testing.T) {
	adjusted := newsAdjuster{}.adjust(0.6, map[string]float64{
		"newsArticles":  0.7,
		"totalArticles": 0.9,
	})
	assert.InDelta(t, 0.6*0.7+0.8*0.3+0.05, adjusted, 1e-9)
}

func TestQualityAdjustmentsFieldCountTiers(t *testing.T) {
	base := 0.5

	few := neutralReport(map[string]float64{"a": 0.5, "b": 0.5})
	assert.InDelta(t, base-0.1, applyQualityAdjustments(base, few), 1e-9)

	mid := neutralReport(map[string]float64{
		"a": 0.5, "b": 0.5, "c": 0.5, "d": 0.5, "e": 0.5,
	})
	assert.InDelta(t, base+0.05, applyQualityAdjustments(base, mid), 1e-9)
}

func TestQualityAdjustmentsFreshnessAndConfidence(t *testing.T) {
	report := neutralReport(map[string]float64{"a": 0.5, "b": 0.5, "c": 0.5, "d": 0.5})
	report.FreshnessScore = 0.95
	report.CompletenessScore = 0.1
	report.ValidationConfidence = 1.0

	// +0.05 fresh, -0.05 stale completeness, +0.05 confidence.
	assert.InDelta(t, 0.5+0.05-0.05+0.05, applyQualityAdjustments(0.5, report), 1e-9)
}

func TestQualityAdjustmentsAccuracyDistribution(t *testing.T) {
	strong := neutralReport(map[string]float64{
		"a": 0.9, "b": 0.95, "c": 0.85, "d": 0.9,
	})
	assert.InDelta(t, 0.5+0.1, applyQualityAdjustments(0.5, strong), 1e-9)

	weak := neutralReport(map[string]float64{
		"a": 0.1, "b": 0.2, "c": 0.9, "d": 0.9,
	})
	assert.InDelta(t, 0.5-0.1, applyQualityAdjustments(0.5, weak), 1e-9)
}

func TestGradeAccuracyClampedToUnitRange(t *testing.T) {
	fields := map[string]float64{
		"cryptoHoldings": 1.0, "totalCryptoValue": 1.0, "company.marketCap": 1.0,
		"a": 1.0, "b": 1.0, "c": 1.0, "d": 1.0, "e": 1.0,
	}
	report := neutralReport(fields)
	report.FreshnessScore = 1.0
	report.CompletenessScore = 1.0
	report.ValidationConfidence = 1.0

	assert.InDelta(t, 1.0, GradeAccuracy(report, protocol.CategoryCrypto), 1e-9)
}
