package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickernet-ai/tickernet/pkg/protocol"
)

func minerServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func testMiner(endpoint string) Miner {
	return Miner{ID: endpoint, Endpoint: endpoint}
}

func TestDispatchCollectsAnswers(t *testing.T) {
	good := minerServer(t, func(w http.ResponseWriter, r *http.Request) {
		var q protocol.Query
		require.NoError(t, json.NewDecoder(r.Body).Decode(&q))
		assert.Equal(t, "AAPL", q.Ticker)
		assert.NotEmpty(t, r.Header.Get("X-Query-ID"))

		json.NewEncoder(w).Encode(protocol.Response{
			Success: true,
			Data:    map[string]any{"company": map[string]any{"ticker": q.Ticker}},
		})
	})
	broken := minerServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	client := NewMinerClient(2*time.Second, testLogger())
	query := &protocol.Query{ID: "q1", Ticker: "AAPL", Category: protocol.CategoryFinancial}

	replies := client.Dispatch(context.Background(), query, []Miner{
		testMiner(good.URL), testMiner(broken.URL),
	})

	require.Len(t, replies, 2)
	assert.True(t, replies[0].Response.Success)
	assert.False(t, replies[1].Response.Success, "failed dispatch grades as failed response")
	assert.NotEmpty(t, replies[1].Response.ErrorMessage)
	assert.Equal(t, replies[0].Latency, replies[1].Latency,
		"non-responders carry the round's average latency")
}

func TestDispatchTimeoutBecomesFailedResponse(t *testing.T) {
	fast := minerServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(protocol.Response{Success: true})
	})
	slow := minerServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		json.NewEncoder(w).Encode(protocol.Response{Success: true})
	})

	client := NewMinerClient(50*time.Millisecond, testLogger())
	query := &protocol.Query{ID: "q1", Ticker: "AAPL", Category: protocol.CategoryFinancial}

	replies := client.Dispatch(context.Background(), query, []Miner{
		testMiner(fast.URL), testMiner(slow.URL),
	})
	require.Len(t, replies, 2)
	assert.False(t, replies[1].Response.Success)
	assert.Equal(t, replies[0].Latency, replies[1].Latency,
		"the timed-out miner is assigned the round's average latency")
	assert.Less(t, replies[1].Latency, 0.05,
		"the timeout's own elapsed time is discarded")
}

func TestDispatchUndecodableBody(t *testing.T) {
	garbage := minerServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})

	client := NewMinerClient(time.Second, testLogger())
	query := &protocol.Query{ID: "q1", Ticker: "AAPL", Category: protocol.CategoryFinancial}

	replies := client.Dispatch(context.Background(), query, []Miner{testMiner(garbage.URL)})
	require.Len(t, replies, 1)
	assert.False(t, replies[0].Response.Success)
}
