package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tickernet-ai/tickernet/pkg/protocol"
	"github.com/tickernet-ai/tickernet/subnet/grading"
	"github.com/tickernet-ai/tickernet/subnet/incentive"
	"github.com/tickernet-ai/tickernet/subnet/querygen"
	"github.com/tickernet-ai/tickernet/subnet/refdata"
)

// ErrNoMiners is returned when a round or organic query has no registered
// miners to dispatch to.
var ErrNoMiners = errors.New("no miners registered")

// RoundConfig tunes the scoring loop.
type RoundConfig struct {
	Interval        time.Duration
	MaxMiners       int
	OrganicEveryNth int
}

// RoundService drives the scoring loop: generate a query, fan it out to
// miners, grade the answers, fold the scores into reputations and emit a
// fresh weight vector.
type RoundService struct {
	cfg       RoundConfig
	registry  *Registry
	client    *MinerClient
	generator *querygen.Generator
	validator *grading.Validator
	mechanism *incentive.Mechanism
	directory *refdata.Directory
	store     *StateStore
	submitter WeightSubmitter
	log       *logrus.Entry

	mu      sync.Mutex
	round   uint64
	lastRun time.Time
}

// NewRoundService wires the scoring loop together and restores persisted
// state.
func NewRoundService(
	cfg RoundConfig,
	registry *Registry,
	client *MinerClient,
	generator *querygen.Generator,
	validator *grading.Validator,
	mechanism *incentive.Mechanism,
	directory *refdata.Directory,
	store *StateStore,
	submitter WeightSubmitter,
	log *logrus.Entry,
) (*RoundService, error) {
	snap, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("restore state: %v", err)
	}
	mechanism.Restore(snap.Reputations)

	return &RoundService{
		cfg:       cfg,
		registry:  registry,
		client:    client,
		generator: generator,
		validator: validator,
		mechanism: mechanism,
		directory: directory,
		store:     store,
		submitter: submitter,
		log:       log,
		round:     snap.Round,
	}, nil
}

// Run executes rounds on the configured interval until the context is
// cancelled.
func (s *RoundService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.log.WithField("interval", s.cfg.Interval).Info("round loop started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info("round loop stopped")
			return
		case <-ticker.C:
			if err := s.RunRound(ctx); err != nil {
				s.log.WithError(err).Error("round failed")
			}
		}
	}
}

// RunRound executes one synthetic scoring round. Every OrganicEveryNth round
// draws from the organic strategy mix to keep miners honest on the queries
// real consumers favor.
func (s *RoundService) RunRound(ctx context.Context) error {
	s.mu.Lock()
	s.round++
	round := s.round
	s.lastRun = time.Now().UTC()
	s.mu.Unlock()

	if s.directory.NeedsRefresh() {
		// Stale directories are tolerated; generation falls back as needed.
		_ = s.directory.Refresh(ctx, false)
	}

	miners := s.registry.Sample(s.cfg.MaxMiners)
	if len(miners) == 0 {
		return ErrNoMiners
	}

	organicStyle := s.cfg.OrganicEveryNth > 0 && round%uint64(s.cfg.OrganicEveryNth) == 0
	query := s.generator.Generate(organicStyle, "", "")

	s.log.WithFields(logrus.Fields{
		"round":    round,
		"ticker":   query.Ticker,
		"category": query.Category,
		"miners":   len(miners),
	}).Info("running scoring round")

	results, _ := s.scoreMiners(ctx, query, miners)
	s.mechanism.UpdateScores(results)

	weights := s.mechanism.CalculateWeights(s.registry.MinerIDs())
	if err := s.submitter.Submit(ctx, round, weights); err != nil {
		s.log.WithError(err).Error("weight submission failed")
	}

	if err := s.persist(round); err != nil {
		s.log.WithError(err).Error("state save failed")
	}
	return nil
}

// OrganicQuery serves one consumer request: dispatch, grade, update
// reputations, and return the best answer. Organic traffic feeds the same
// incentive pipeline as synthetic rounds.
func (s *RoundService) OrganicQuery(ctx context.Context, ticker string, category protocol.Category, sector string) (*protocol.Query, []MinerReply, []protocol.ValidationResult, error) {
	miners := s.registry.Sample(s.cfg.MaxMiners)
	if len(miners) == 0 {
		return nil, nil, nil, ErrNoMiners
	}

	var query *protocol.Query
	if ticker != "" {
		var err error
		query, err = s.generator.ForTicker(ticker, category)
		if err != nil {
			return nil, nil, nil, err
		}
	} else {
		query = s.generator.Generate(true, category, sector)
	}

	results, replies := s.scoreMiners(ctx, query, miners)
	s.mechanism.UpdateScores(results)
	return query, replies, results, nil
}

func (s *RoundService) scoreMiners(ctx context.Context, query *protocol.Query, miners []Miner) ([]protocol.ValidationResult, []MinerReply) {
	replies := s.client.Dispatch(ctx, query, miners)

	items := make([]grading.BatchItem, len(replies))
	for i, reply := range replies {
		items[i] = grading.BatchItem{Query: query, Response: reply.Response, Latency: reply.Latency}
	}
	scores := s.validator.ValidateBatch(ctx, items)

	results := make([]protocol.ValidationResult, len(replies))
	for i, reply := range replies {
		confidence, _ := reply.Response.Confidence()
		results[i] = protocol.ValidationResult{
			MinerID:      reply.Miner.ID,
			Score:        scores[i],
			Latency:      reply.Latency,
			Success:      reply.Response.Success,
			Confidence:   confidence,
			ErrorMessage: reply.Response.ErrorMessage,
		}
	}
	return results, replies
}

func (s *RoundService) persist(round uint64) error {
	return s.store.Save(&Snapshot{
		Round:       round,
		Reputations: s.mechanism.Reputations(),
	})
}

// Round returns the current round counter.
func (s *RoundService) Round() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.round
}

// LastRun returns when the previous round started.
func (s *RoundService) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}
