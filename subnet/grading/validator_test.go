package grading

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickernet-ai/tickernet/pkg/protocol"
	"github.com/tickernet-ai/tickernet/subnet/refdata"
)

type fakeProvider struct {
	report *refdata.ScoreReport
	err    error
	calls  int
}

func (f *fakeProvider) ListCompanies(ctx context.Context) ([]refdata.Company, error) {
	return nil, nil
}

func (f *fakeProvider) Score(ctx context.Context, ticker string, category protocol.Category, payload map[string]any) (*refdata.ScoreReport, error) {
	f.calls++
	return f.report, f.err
}

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(logger)
}

func testQuery(category protocol.Category) *protocol.Query {
	return &protocol.Query{ID: "q-1", Ticker: "AAPL", Category: category}
}

func goodResponse() *protocol.Response {
	return &protocol.Response{
		Success: true,
		Data: map[string]any{
			"company":         fullCompany(),
			"confidenceScore": 0.9,
		},
	}
}

func strongReport() *refdata.ScoreReport {
	return neutralReport(map[string]float64{
		"company.marketCap":  0.95,
		"company.sharePrice": 0.9,
		"company.sector":     0.9,
		"company.volume":     0.85,
		"company.eps":        0.9,
	})
}

func TestValidateStructuralShortCircuit(t *testing.T) {
	provider := &fakeProvider{}
	v := NewValidator(provider, testLogger())

	score := v.Validate(context.Background(), testQuery(protocol.CategoryFinancial),
		&protocol.Response{Success: true}, 1.0)

	assert.Zero(t, score)
	assert.Zero(t, provider.calls, "disqualifying structure must not reach the provider")
	assert.Equal(t, 1, v.Stats().StructureFailures)
}

func TestValidateAccuracyGate(t *testing.T) {
	provider := &fakeProvider{err: errors.New("provider down")}
	v := NewValidator(provider, testLogger())

	score := v.Validate(context.Background(), testQuery(protocol.CategoryFinancial), goodResponse(), 1.0)

	assert.Zero(t, score, "failed reference lookup gates the score to min(structure, 0)")
	assert.Equal(t, 1, v.Stats().AccuracyFailures)
}

func TestValidateFailedResponseSkipsProvider(t *testing.T) {
	provider := &fakeProvider{report: strongReport()}
	v := NewValidator(provider, testLogger())

	resp := protocol.FailedResponse("AAPL", "timeout")
	score := v.Validate(context.Background(), testQuery(protocol.CategoryFinancial), resp, 1.0)

	assert.Zero(t, provider.calls, "unsuccessful responses are never sent for reference scoring")
	assert.Zero(t, score)
}

func TestValidateTimedOutMinerScoresZero(t *testing.T) {
	provider := &fakeProvider{report: strongReport()}
	v := NewValidator(provider, testLogger())

	// The placeholder echoes the ticker, which must not translate into
	// structural credit for a miner that never answered.
	resp := protocol.FailedResponse("AAPL", "request failed: context deadline exceeded")
	score := v.Validate(context.Background(), testQuery(protocol.CategoryCrypto), resp, 15.0)

	assert.Equal(t, 0.0, score)
	assert.Zero(t, provider.calls)
}

func TestValidateFullPath(t *testing.T) {
	provider := &fakeProvider{report: strongReport()}
	v := NewValidator(provider, testLogger())

	score := v.Validate(context.Background(), testQuery(protocol.CategoryFinancial), goodResponse(), 1.5)

	assert.Greater(t, score, 0.5)
	assert.LessOrEqual(t, score, 1.0)
	assert.Equal(t, 1, provider.calls)

	history := v.History("AAPL")
	require.Len(t, history, 1)
	assert.InDelta(t, score, history[0].FinalScore, 1e-9)
	assert.InDelta(t, 1.0, history[0].LatencyScore, 1e-9)
}

func TestValidateHistoryCapped(t *testing.T) {
	provider := &fakeProvider{report: strongReport()}
	v := NewValidator(provider, testLogger())

	for i := 0; i < historyPerTicker+10; i++ {
		v.Validate(context.Background(), testQuery(protocol.CategoryFinancial), goodResponse(), 1.0)
	}
	assert.Len(t, v.History("AAPL"), historyPerTicker)
}

func TestValidateBatchPreservesOrder(t *testing.T) {
	provider := &fakeProvider{report: strongReport()}
	v := NewValidator(provider, testLogger())

	items := []BatchItem{
		{Query: testQuery(protocol.CategoryFinancial), Response: goodResponse(), Latency: 1.0},
		{Query: testQuery(protocol.CategoryFinancial), Response: &protocol.Response{Success: true}, Latency: 1.0},
		{Query: testQuery(protocol.CategoryFinancial), Response: goodResponse(), Latency: 1.0},
	}

	scores := v.ValidateBatch(context.Background(), items)
	require.Len(t, scores, 3)
	assert.Greater(t, scores[0], 0.5)
	assert.Zero(t, scores[1], "empty payload grades 0 in its own slot")
	assert.InDelta(t, scores[0], scores[2], 1e-9)
}

func TestScoreLatencyBands(t *testing.T) {
	assert.InDelta(t, 1.0, scoreLatency(1.0), 1e-9)
	assert.InDelta(t, 1.0, scoreLatency(2.0), 1e-9)
	assert.InDelta(t, 0.8, scoreLatency(3.0), 1e-9)
	assert.InDelta(t, 0.44, scoreLatency(7.0), 1e-9)
	assert.InDelta(t, 0.1, scoreLatency(15.0), 1e-9)
	assert.InDelta(t, 0.05, scoreLatency(30.0), 1e-9)
}

func TestScoreConfidenceAlignment(t *testing.T) {
	mk := func(success bool, conf any) *protocol.Response {
		data := map[string]any{"company": map[string]any{}}
		if conf != nil {
			data["confidenceScore"] = conf
		}
		return &protocol.Response{Success: success, Data: data}
	}

	assert.InDelta(t, 1.0, scoreConfidenceAlignment(mk(true, 0.9)), 1e-9)
	assert.InDelta(t, 0.8, scoreConfidenceAlignment(mk(true, 0.5)), 1e-9)
	assert.InDelta(t, 0.9, scoreConfidenceAlignment(mk(false, 0.1)), 1e-9)
	assert.InDelta(t, 0.7, scoreConfidenceAlignment(mk(false, 0.5)), 1e-9)
	assert.InDelta(t, 0.5, scoreConfidenceAlignment(mk(true, 0.2)), 1e-9)
	assert.InDelta(t, 0.2, scoreConfidenceAlignment(mk(true, 1.5)), 1e-9)
	assert.InDelta(t, 0.3, scoreConfidenceAlignment(mk(true, "high")), 1e-9)
	assert.InDelta(t, 0.9, scoreConfidenceAlignment(mk(false, nil)), 1e-9,
		"a missing declaration counts as confidence 0")
}

func TestSetWeightsValidation(t *testing.T) {
	v := NewValidator(&fakeProvider{}, testLogger())

	require.Error(t, v.SetWeights(0.5, 0.6))
	require.NoError(t, v.SetWeights(0.4, 0.6))

	v.mu.Lock()
	defer v.mu.Unlock()
	assert.InDelta(t, 0.4, v.weights.Structure, 1e-9)
	assert.InDelta(t, 0.15, v.weights.Latency, 1e-9, "latency weight untouched")
}

func TestSetLayerWeightsValidation(t *testing.T) {
	v := NewValidator(&fakeProvider{}, testLogger())

	require.Error(t, v.SetLayerWeights(-0.1, 0.15))
	require.NoError(t, v.SetLayerWeights(0.1, 0.2))

	v.mu.Lock()
	defer v.mu.Unlock()
	assert.InDelta(t, 0.1, v.weights.Latency, 1e-9)
	assert.InDelta(t, 0.2, v.weights.Confidence, 1e-9)
	assert.InDelta(t, 0.3, v.weights.Structure, 1e-9, "blend untouched")
}
