package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tickernet-ai/tickernet/pkg/protocol"
)

// MinerReply is one miner's answer with the observed latency. A transport or
// decode failure yields a failed placeholder response instead of an error, so
// failed miners are still graded (and penalised) like everyone else.
type MinerReply struct {
	Miner    Miner
	Response *protocol.Response
	Latency  float64
}

// MinerClient dispatches one query to many miners in parallel. Dispatch
// failures are not retried within a round; a miner that cannot answer in time
// simply counts as a failed response.
type MinerClient struct {
	httpClient *http.Client
	log        *logrus.Entry
}

// NewMinerClient creates a dispatch client with a shared per-request timeout.
func NewMinerClient(timeout time.Duration, log *logrus.Entry) *MinerClient {
	return &MinerClient{
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// Dispatch sends the query to every miner concurrently and returns one reply
// per miner, ordered like the input. Non-responders carry the round's average
// latency so a timeout is not also penalised on the latency band.
func (c *MinerClient) Dispatch(ctx context.Context, query *protocol.Query, miners []Miner) []MinerReply {
	replies := make([]MinerReply, len(miners))

	var wg sync.WaitGroup
	for i, miner := range miners {
		wg.Add(1)
		go func(i int, miner Miner) {
			defer wg.Done()
			replies[i] = c.queryMiner(ctx, query, miner)
		}(i, miner)
	}
	wg.Wait()

	answered, total := 0, 0.0
	for _, reply := range replies {
		if reply.Response.Success {
			answered++
			total += reply.Latency
		}
	}
	if answered > 0 {
		avg := total / float64(answered)
		for i := range replies {
			if !replies[i].Response.Success {
				replies[i].Latency = avg
			}
		}
	}

	return replies
}

func (c *MinerClient) queryMiner(ctx context.Context, query *protocol.Query, miner Miner) MinerReply {
	started := time.Now()

	resp, err := c.post(ctx, miner.Endpoint+"/query", query)
	latency := time.Since(started).Seconds()
	if err != nil {
		c.log.WithError(err).WithFields(logrus.Fields{
			"miner":  miner.ID,
			"ticker": query.Ticker,
		}).Warn("miner dispatch failed")
		return MinerReply{
			Miner:    miner,
			Response: protocol.FailedResponse(query.Ticker, err.Error()),
			Latency:  latency,
		}
	}

	return MinerReply{Miner: miner, Response: resp, Latency: latency}
}

func (c *MinerClient) post(ctx context.Context, url string, query *protocol.Query) (*protocol.Response, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Query-ID", query.ID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("miner returned status %d", resp.StatusCode)
	}

	var decoded protocol.Response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %v", err)
	}
	return &decoded, nil
}
