// Package services wires the subnet scoring engine into the validator
// process: miner registry and dispatch, the round loop, state persistence and
// on-chain weight submission.
package services

import (
	"fmt"
	"math/rand"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Miner is one registered worker endpoint.
type Miner struct {
	ID       string `json:"id"`
	Endpoint string `json:"endpoint"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
}

// Registry holds the known miner set. Endpoints sharing a host are collapsed
// to the one with the lowest port so a single machine cannot multiply its
// reward weight by registering many listeners.
type Registry struct {
	log *logrus.Entry

	mu     sync.RWMutex
	rng    *rand.Rand
	miners []Miner
}

// NewRegistry parses and deduplicates the configured miner endpoints. A nil
// rng gets a time-seeded one.
func NewRegistry(endpoints []string, log *logrus.Entry, rng *rand.Rand) (*Registry, error) {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	byHost := make(map[string]Miner)
	for _, endpoint := range endpoints {
		miner, err := parseMinerEndpoint(endpoint)
		if err != nil {
			return nil, err
		}
		existing, seen := byHost[miner.Host]
		if !seen || miner.Port < existing.Port {
			byHost[miner.Host] = miner
		}
	}

	miners := make([]Miner, 0, len(byHost))
	for _, miner := range byHost {
		miners = append(miners, miner)
	}
	sort.Slice(miners, func(i, j int) bool { return miners[i].ID < miners[j].ID })

	if dropped := len(endpoints) - len(miners); dropped > 0 {
		log.WithField("dropped", dropped).Warn("collapsed duplicate miner hosts to lowest port")
	}

	return &Registry{log: log, rng: rng, miners: miners}, nil
}

func parseMinerEndpoint(endpoint string) (Miner, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return Miner{}, fmt.Errorf("invalid miner endpoint %q: %v", endpoint, err)
	}
	if u.Hostname() == "" {
		return Miner{}, fmt.Errorf("miner endpoint %q has no host", endpoint)
	}

	port := 80
	if u.Scheme == "https" {
		port = 443
	}
	if raw := u.Port(); raw != "" {
		port, err = strconv.Atoi(raw)
		if err != nil {
			return Miner{}, fmt.Errorf("miner endpoint %q has invalid port: %v", endpoint, err)
		}
	}

	return Miner{
		ID:       fmt.Sprintf("%s:%d", u.Hostname(), port),
		Endpoint: endpoint,
		Host:     u.Hostname(),
		Port:     port,
	}, nil
}

// Miners returns a copy of the registered miner set.
func (r *Registry) Miners() []Miner {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Miner(nil), r.miners...)
}

// MinerIDs returns the registered miner IDs in stable order.
func (r *Registry) MinerIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, len(r.miners))
	for i, m := range r.miners {
		ids[i] = m.ID
	}
	return ids
}

// Len returns the number of registered miners.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.miners)
}

// Sample returns a random subset of up to limit miners. The draw rotates
// across rounds so every registered miner sees queries and can build
// reputation.
func (r *Registry) Sample(limit int) []Miner {
	miners := r.Miners()
	if limit >= len(miners) {
		return miners
	}

	r.mu.Lock()
	idx := r.rng.Perm(len(miners))
	r.mu.Unlock()

	out := make([]Miner, limit)
	for i := range out {
		out[i] = miners[idx[i]]
	}
	return out
}
