package grading

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/tickernet-ai/tickernet/pkg/protocol"
	"github.com/tickernet-ai/tickernet/subnet/refdata"
)

const (
	// structureShortCircuit disqualifies a response on structure alone.
	structureShortCircuit = 0.3
	// accuracyGate caps the score at min(structure, accuracy) below it.
	accuracyGate = 0.5

	historyPerTicker = 50
	historyMaxAge    = 7 * 24 * time.Hour
	batchConcurrency = 15
)

// Weights blends the four sub-scores into the final trust score. Structure
// and accuracy must sum to 1.0; latency and confidence are layered on top, so
// the four weights deliberately sum to more than 1.0 and the blended result
// is clamped to [0,1].
type Weights struct {
	Structure  float64
	Accuracy   float64
	Latency    float64
	Confidence float64
}

// DefaultWeights returns the standard blend.
func DefaultWeights() Weights {
	return Weights{Structure: 0.3, Accuracy: 0.7, Latency: 0.15, Confidence: 0.15}
}

// HistoryEntry records one graded response for consistency tracking.
type HistoryEntry struct {
	Timestamp       time.Time         `json:"timestamp"`
	Category        protocol.Category `json:"category"`
	StructureScore  float64           `json:"structure_score"`
	AccuracyScore   float64           `json:"accuracy_score"`
	LatencyScore    float64           `json:"latency_score"`
	ConfidenceScore float64           `json:"confidence_score"`
	FinalScore      float64           `json:"final_score"`
	Latency         float64           `json:"latency"`
}

// ValidatorStats counts grading outcomes.
type ValidatorStats struct {
	TotalValidations  int     `json:"total_validations"`
	StructureFailures int     `json:"structure_failures"`
	AccuracyFailures  int     `json:"accuracy_failures"`
	AvgGradingSeconds float64 `json:"avg_grading_seconds"`
}

// Validator grades miner responses. Structural grading is pure computation;
// only the accuracy tier reaches out to the reference provider.
type Validator struct {
	provider refdata.Provider
	log      *logrus.Entry

	mu      sync.Mutex
	weights Weights
	history map[string][]HistoryEntry
	stats   ValidatorStats
}

// NewValidator creates a validator with the default weight blend.
func NewValidator(provider refdata.Provider, log *logrus.Entry) *Validator {
	return &Validator{
		provider: provider,
		log:      log,
		weights:  DefaultWeights(),
		history:  make(map[string][]HistoryEntry),
	}
}

// Validate grades one response and returns a trust score in [0,1]. Latency is
// the observed response time in seconds. Failed responses score 0 outright.
// Grading never returns an error: reference failures grade the accuracy tier
// as 0 and the structural tier still counts.
func (v *Validator) Validate(ctx context.Context, query *protocol.Query, resp *protocol.Response, latency float64) float64 {
	started := time.Now()
	v.mu.Lock()
	v.stats.TotalValidations++
	weights := v.weights
	v.mu.Unlock()

	// A miner that did not answer earns nothing. The failed-dispatch
	// placeholder still carries a ticker echo, so without this the
	// structural tier would hand non-responders a free partial score.
	if resp == nil || !resp.Success {
		v.log.WithField("ticker", query.Ticker).Debug("failed response scored 0")
		return 0
	}

	structure := GradeStructure(resp, query.Category)
	if structure < structureShortCircuit {
		v.mu.Lock()
		v.stats.StructureFailures++
		v.mu.Unlock()
		v.log.WithFields(logrus.Fields{
			"ticker":    query.Ticker,
			"structure": structure,
		}).Debug("structural short circuit")
		return structure
	}

	accuracy := v.gradeAccuracy(ctx, query, resp)
	if accuracy < accuracyGate {
		return math.Min(structure, accuracy)
	}

	latencyScore := scoreLatency(latency)
	confidenceScore := scoreConfidenceAlignment(resp)

	final := clamp01(structure*weights.Structure +
		accuracy*weights.Accuracy +
		latencyScore*weights.Latency +
		confidenceScore*weights.Confidence)

	v.recordHistory(query.Ticker, HistoryEntry{
		Timestamp:       started.UTC(),
		Category:        query.Category,
		StructureScore:  structure,
		AccuracyScore:   accuracy,
		LatencyScore:    latencyScore,
		ConfidenceScore: confidenceScore,
		FinalScore:      final,
		Latency:         latency,
	}, time.Since(started).Seconds())

	v.log.WithFields(logrus.Fields{
		"ticker":     query.Ticker,
		"structure":  structure,
		"accuracy":   accuracy,
		"latency":    latencyScore,
		"confidence": confidenceScore,
		"final":      final,
	}).Info("graded response")

	return final
}

// BatchItem pairs a query with the response to grade.
type BatchItem struct {
	Query    *protocol.Query
	Response *protocol.Response
	Latency  float64
}

// ValidateBatch grades many responses concurrently, preserving input order.
// A panicking or otherwise failing grade substitutes 0.0 for that slot.
func (v *Validator) ValidateBatch(ctx context.Context, items []BatchItem) []float64 {
	scores := make([]float64, len(items))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for i, item := range items {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					v.log.WithField("panic", fmt.Sprint(r)).Error("grading panicked, scoring 0")
					scores[i] = 0
				}
			}()
			scores[i] = v.Validate(ctx, item.Query, item.Response, item.Latency)
			return nil
		})
	}
	// Goroutines never return errors; panics are converted to 0.0 above.
	_ = g.Wait()

	return scores
}

func (v *Validator) gradeAccuracy(ctx context.Context, query *protocol.Query, resp *protocol.Response) float64 {
	if resp == nil || !resp.Success || len(resp.Data) == 0 {
		return 0
	}

	report, err := v.provider.Score(ctx, query.Ticker, query.Category, resp.Data)
	if err != nil {
		v.mu.Lock()
		v.stats.AccuracyFailures++
		v.mu.Unlock()
		v.log.WithError(err).WithField("ticker", query.Ticker).Warn("reference scoring failed")
		return 0
	}
	if report == nil || !report.Valid {
		v.mu.Lock()
		v.stats.AccuracyFailures++
		v.mu.Unlock()
		return 0
	}

	return GradeAccuracy(report, query.Category)
}

// scoreLatency maps response time in seconds onto [0,1] reward bands.
func scoreLatency(seconds float64) float64 {
	switch {
	case seconds <= 2:
		return 1.0
	case seconds <= 5:
		return 0.9 - (seconds-2)*0.1
	case seconds <= 10:
		return 0.6 - (seconds-5)*0.08
	case seconds <= 20:
		return 0.2 - (seconds-10)*0.02
	default:
		return 0.05
	}
}

// scoreConfidenceAlignment rewards declared confidence that agrees with the
// success flag. A missing declaration counts as confidence 0.
func scoreConfidenceAlignment(resp *protocol.Response) float64 {
	confidence := 0.0
	if resp != nil && resp.Data != nil {
		if raw, present := resp.Data["confidenceScore"]; present {
			f, numeric := protocol.AsFloat(raw)
			if !numeric {
				return 0.3
			}
			confidence = f
		}
	}
	if confidence < 0 || confidence > 1 {
		return 0.2
	}

	success := resp != nil && resp.Success
	switch {
	case success && confidence > 0.6:
		return 1.0
	case success && confidence > 0.4:
		return 0.8
	case !success && confidence < 0.4:
		return 0.9
	case !success && confidence < 0.6:
		return 0.7
	default:
		return 0.5
	}
}

func (v *Validator) recordHistory(ticker string, entry HistoryEntry, gradingSeconds float64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	entries := append(v.history[ticker], entry)
	if len(entries) > historyPerTicker {
		entries = entries[len(entries)-historyPerTicker:]
	}
	cutoff := time.Now().Add(-historyMaxAge)
	kept := entries[:0]
	for _, e := range entries {
		if e.Timestamp.After(cutoff) {
			kept = append(kept, e)
		}
	}
	v.history[ticker] = kept

	n := float64(v.stats.TotalValidations)
	v.stats.AvgGradingSeconds = (v.stats.AvgGradingSeconds*(n-1) + gradingSeconds) / n
}

// History returns a copy of the graded entries for a ticker.
func (v *Validator) History(ticker string) []HistoryEntry {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]HistoryEntry(nil), v.history[ticker]...)
}

// Stats returns a snapshot of grading counters.
func (v *Validator) Stats() ValidatorStats {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stats
}

// SetWeights replaces the structure/accuracy blend. The pair must sum to 1.0
// within a small tolerance; latency and confidence weights are unchanged.
func (v *Validator) SetWeights(structure, accuracy float64) error {
	if math.Abs(structure+accuracy-1.0) > 0.01 {
		return fmt.Errorf("structure and accuracy weights must sum to 1.0, got %.4f", structure+accuracy)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.weights.Structure = structure
	v.weights.Accuracy = accuracy
	return nil
}

// SetLayerWeights replaces the latency and confidence weights layered on top
// of the structure/accuracy blend.
func (v *Validator) SetLayerWeights(latency, confidence float64) error {
	if latency < 0 || confidence < 0 {
		return fmt.Errorf("layer weights must be non-negative, got %.4f and %.4f", latency, confidence)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.weights.Latency = latency
	v.weights.Confidence = confidence
	return nil
}
