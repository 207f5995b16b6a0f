// Package incentive turns per-round trust scores into a long-run reputation
// per miner and converts reputations into the normalized weight vector that
// is submitted on chain.
package incentive

import (
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tickernet-ai/tickernet/pkg/protocol"
)

const (
	// DefaultAlpha is the EMA smoothing factor. Small values make
	// reputation slow to earn and slow to lose.
	DefaultAlpha = 0.1
	// DefaultTemperature softens the reputation softmax. Higher values
	// spread weight more evenly across miners.
	DefaultTemperature = 2.0

	scoreHistoryCap   = 1000
	weightsHistoryCap = 100
)

// ScoreSample is one retained validation outcome for a miner.
type ScoreSample struct {
	Score      float64   `json:"score"`
	Timestamp  time.Time `json:"timestamp"`
	Latency    float64   `json:"latency"`
	Success    bool      `json:"success"`
	Confidence float64   `json:"confidence"`
}

// WeightsSnapshot is an audit record of one emitted weight vector.
type WeightsSnapshot struct {
	Timestamp time.Time              `json:"timestamp"`
	Weights   []protocol.MinerWeight `json:"weights"`
}

// Mechanism maintains EMA reputations and derives stake weights from them.
// All methods are safe for concurrent use.
type Mechanism struct {
	log *logrus.Entry

	mu             sync.Mutex
	alpha          float64
	temperature    float64
	reputations    map[string]float64
	scoreHistory   map[string][]ScoreSample
	weightsHistory []WeightsSnapshot
}

// New creates a mechanism. Non-positive alpha or temperature fall back to the
// defaults.
func New(alpha, temperature float64, log *logrus.Entry) *Mechanism {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	if temperature <= 0 {
		temperature = DefaultTemperature
	}
	return &Mechanism{
		log:          log,
		alpha:        alpha,
		temperature:  temperature,
		reputations:  make(map[string]float64),
		scoreHistory: make(map[string][]ScoreSample),
	}
}

// UpdateScores folds a round of validation results into the per-miner
// reputations. Unknown miners start from reputation 0.
func (m *Mechanism) UpdateScores(results []protocol.ValidationResult) {
	now := time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, result := range results {
		current := m.reputations[result.MinerID]
		m.reputations[result.MinerID] = (1-m.alpha)*current + m.alpha*result.Score

		samples := append(m.scoreHistory[result.MinerID], ScoreSample{
			Score:      result.Score,
			Timestamp:  now,
			Latency:    result.Latency,
			Success:    result.Success,
			Confidence: result.Confidence,
		})
		if len(samples) > scoreHistoryCap {
			samples = samples[len(samples)-scoreHistoryCap:]
		}
		m.scoreHistory[result.MinerID] = samples
	}
}

// CalculateWeights converts reputations for the given miners into a
// normalized weight vector, ordered like the input, and records it in the
// audit history. When every reputation is zero the weights are uniform; an
// empty miner list yields an empty vector.
func (m *Mechanism) CalculateWeights(minerIDs []string) []protocol.MinerWeight {
	if len(minerIDs) == 0 {
		return []protocol.MinerWeight{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	weights := m.weightsFor(minerIDs)

	snapshot := WeightsSnapshot{
		Timestamp: time.Now().UTC(),
		Weights:   append([]protocol.MinerWeight(nil), weights...),
	}
	m.weightsHistory = append(m.weightsHistory, snapshot)
	if len(m.weightsHistory) > weightsHistoryCap {
		m.weightsHistory = m.weightsHistory[len(m.weightsHistory)-weightsHistoryCap:]
	}

	m.log.WithField("miners", len(minerIDs)).Debug("calculated weight vector")
	return weights
}

// CurrentWeights computes the same vector without touching the audit
// history. The history only tracks vectors that were actually emitted, so
// diagnostic reads go through here.
func (m *Mechanism) CurrentWeights(minerIDs []string) []protocol.MinerWeight {
	if len(minerIDs) == 0 {
		return []protocol.MinerWeight{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.weightsFor(minerIDs)
}

// weightsFor computes the softmax weight vector. The caller holds the lock.
func (m *Mechanism) weightsFor(minerIDs []string) []protocol.MinerWeight {
	reps := make([]float64, len(minerIDs))
	maxRep := 0.0
	for i, id := range minerIDs {
		reps[i] = m.reputations[id]
		if reps[i] > maxRep {
			maxRep = reps[i]
		}
	}

	weights := make([]protocol.MinerWeight, len(minerIDs))
	if maxRep > 0 {
		sum := 0.0
		exps := make([]float64, len(reps))
		for i, rep := range reps {
			exps[i] = math.Exp(rep / m.temperature)
			sum += exps[i]
		}
		for i, id := range minerIDs {
			weights[i] = protocol.MinerWeight{MinerID: id, Weight: exps[i] / sum}
		}
	} else {
		uniform := 1.0 / float64(len(minerIDs))
		for i, id := range minerIDs {
			weights[i] = protocol.MinerWeight{MinerID: id, Weight: uniform}
		}
	}

	return weights
}

// Reputation returns a miner's current EMA reputation.
func (m *Mechanism) Reputation(minerID string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reputations[minerID]
}

// Reputations returns a copy of all known reputations.
func (m *Mechanism) Reputations() map[string]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]float64, len(m.reputations))
	for id, rep := range m.reputations {
		out[id] = rep
	}
	return out
}

// ScoreHistory returns a copy of the retained samples for a miner.
func (m *Mechanism) ScoreHistory(minerID string) []ScoreSample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ScoreSample(nil), m.scoreHistory[minerID]...)
}

// WeightsHistory returns a copy of the audit trail of emitted vectors.
func (m *Mechanism) WeightsHistory() []WeightsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]WeightsSnapshot(nil), m.weightsHistory...)
}

// Restore replaces the reputation table, used when reloading saved state.
func (m *Mechanism) Restore(reputations map[string]float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reputations = make(map[string]float64, len(reputations))
	for id, rep := range reputations {
		m.reputations[id] = rep
	}
}
