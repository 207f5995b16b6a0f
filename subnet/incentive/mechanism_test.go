package incentive

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickernet-ai/tickernet/pkg/protocol"
)

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(logger)
}

func result(minerID string, score float64) protocol.ValidationResult {
	return protocol.ValidationResult{MinerID: minerID, Score: score, Success: score > 0}
}

func TestUpdateScoresEMA(t *testing.T) {
	m := New(0.1, 2.0, testLogger())

	m.UpdateScores([]protocol.ValidationResult{result("m1", 1.0)})
	assert.InDelta(t, 0.1, m.Reputation("m1"), 1e-9)

	m.UpdateScores([]protocol.ValidationResult{result("m1", 1.0)})
	assert.InDelta(t, 0.19, m.Reputation("m1"), 1e-9)
}

func TestReputationConvergesMonotonically(t *testing.T) {
	m := New(0.1, 2.0, testLogger())

	prev := 0.0
	for i := 0; i < 100; i++ {
		m.UpdateScores([]protocol.ValidationResult{result("m1", 0.9)})
		rep := m.Reputation("m1")
		assert.Greater(t, rep, prev)
		assert.Less(t, rep, 0.9)
		prev = rep
	}
	assert.Greater(t, prev, 0.85, "reputation approaches the steady score")
}

func TestCalculateWeightsEmpty(t *testing.T) {
	m := New(0.1, 2.0, testLogger())
	assert.Empty(t, m.CalculateWeights(nil))
}

func TestCalculateWeightsUniformWithoutReputation(t *testing.T) {
	m := New(0.1, 2.0, testLogger())

	weights := m.CalculateWeights([]string{"m1", "m2", "m3", "m4"})
	require.Len(t, weights, 4)

	sum := 0.0
	for _, w := range weights {
		assert.InDelta(t, 0.25, w.Weight, 1e-9)
		sum += w.Weight
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}

func TestCalculateWeightsSoftmaxFavorsReputation(t *testing.T) {
	m := New(0.1, 2.0, testLogger())
	for i := 0; i < 50; i++ {
		m.UpdateScores([]protocol.ValidationResult{
			result("strong", 0.95),
			result("weak", 0.2),
		})
	}

	weights := m.CalculateWeights([]string{"strong", "weak", "unknown"})
	require.Len(t, weights, 3)

	byID := make(map[string]float64, 3)
	sum := 0.0
	for _, w := range weights {
		byID[w.MinerID] = w.Weight
		sum += w.Weight
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
	assert.Greater(t, byID["strong"], byID["weak"])
	assert.Greater(t, byID["weak"], 0.0, "softmax never zeroes a miner outright")
	assert.Greater(t, byID["weak"], byID["unknown"]-1e-9)
}

func TestScoreHistoryCapped(t *testing.T) {
	m := New(0.1, 2.0, testLogger())

	batch := make([]protocol.ValidationResult, 0, 10)
	for i := 0; i < 10; i++ {
		batch = append(batch, result("m1", 0.5))
	}
	for i := 0; i < scoreHistoryCap/10+5; i++ {
		m.UpdateScores(batch)
	}

	assert.Len(t, m.ScoreHistory("m1"), scoreHistoryCap)
}

func TestCurrentWeightsLeavesHistoryUntouched(t *testing.T) {
	m := New(0.1, 2.0, testLogger())
	m.UpdateScores([]protocol.ValidationResult{result("m1", 0.8)})

	emitted := m.CalculateWeights([]string{"m1", "m2"})
	require.Len(t, m.WeightsHistory(), 1)

	peeked := m.CurrentWeights([]string{"m1", "m2"})
	assert.Equal(t, emitted, peeked)
	assert.Len(t, m.WeightsHistory(), 1, "diagnostic reads are not audit events")
}

func TestWeightsHistoryCapped(t *testing.T) {
	m := New(0.1, 2.0, testLogger())

	for i := 0; i < weightsHistoryCap+20; i++ {
		m.CalculateWeights([]string{"m1", "m2"})
	}
	assert.Len(t, m.WeightsHistory(), weightsHistoryCap)
}

func TestRestoreReplacesReputations(t *testing.T) {
	m := New(0.1, 2.0, testLogger())
	m.UpdateScores([]protocol.ValidationResult{result("old", 1.0)})

	m.Restore(map[string]float64{"m1": 0.7})

	assert.Zero(t, m.Reputation("old"))
	assert.InDelta(t, 0.7, m.Reputation("m1"), 1e-9)

	reps := m.Reputations()
	assert.Len(t, reps, 1)
}

func TestNewFallsBackToDefaults(t *testing.T) {
	m := New(-1, 0, testLogger())
	assert.InDelta(t, DefaultAlpha, m.alpha, 1e-9)
	assert.InDelta(t, DefaultTemperature, m.temperature, 1e-9)
}
