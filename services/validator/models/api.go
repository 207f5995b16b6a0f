// Package models defines the request and response shapes of the validator
// HTTP API.
package models

import (
	"github.com/tickernet-ai/tickernet/pkg/protocol"
)

// QueryRequest is an organic intelligence request from an API consumer.
// Ticker is optional; when absent the query generator picks one.
type QueryRequest struct {
	Ticker   string `json:"ticker,omitempty"`
	Category string `json:"category,omitempty"`
	Sector   string `json:"sector,omitempty"`
}

// MinerOutcome is the graded result of one miner for one query.
type MinerOutcome struct {
	MinerID      string  `json:"miner_id"`
	Score        float64 `json:"score"`
	Latency      float64 `json:"latency_seconds"`
	Success      bool    `json:"success"`
	ErrorMessage string  `json:"error_message,omitempty"`
}

// QueryResponse returns the best miner answer plus per-miner grading for one
// organic query.
type QueryResponse struct {
	QueryID   string             `json:"query_id"`
	Ticker    string             `json:"ticker"`
	Category  protocol.Category  `json:"category"`
	BestMiner string             `json:"best_miner,omitempty"`
	BestScore float64            `json:"best_score"`
	Data      *protocol.Response `json:"data,omitempty"`
	Outcomes  []MinerOutcome     `json:"outcomes"`
}

// MinerSummary describes one registered miner and its standing.
type MinerSummary struct {
	MinerID    string  `json:"miner_id"`
	Endpoint   string  `json:"endpoint"`
	Reputation float64 `json:"reputation"`
	Weight     float64 `json:"weight"`
}

// WeightsUpdateRequest adjusts the structure/accuracy grading blend at
// runtime.
type WeightsUpdateRequest struct {
	StructureWeight float64 `json:"structure_weight"`
	AccuracyWeight  float64 `json:"accuracy_weight"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
