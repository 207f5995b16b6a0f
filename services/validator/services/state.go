package services

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Snapshot is the persisted validator state: the round counter and the
// per-miner reputations needed to survive a restart without resetting every
// miner back to zero.
type Snapshot struct {
	Round       uint64             `json:"round"`
	Reputations map[string]float64 `json:"reputations"`
	SavedAt     time.Time          `json:"saved_at"`
}

// StateStore saves and restores snapshots as a flat JSON file. Writes go
// through a temp file and rename so a crash mid-write cannot corrupt the
// previous snapshot.
type StateStore struct {
	path string
	log  *logrus.Entry

	mu sync.Mutex
}

// NewStateStore creates a store at path.
func NewStateStore(path string, log *logrus.Entry) *StateStore {
	return &StateStore{path: path, log: log}
}

// Load reads the last snapshot. A missing file returns an empty snapshot and
// no error; a corrupt file is an error.
func (s *StateStore) Load() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &Snapshot{Reputations: map[string]float64{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %v", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode state file: %v", err)
	}
	if snap.Reputations == nil {
		snap.Reputations = map[string]float64{}
	}

	s.log.WithFields(logrus.Fields{"round": snap.Round, "miners": len(snap.Reputations)}).
		Info("restored validator state")
	return &snap, nil
}

// Save writes a snapshot atomically.
func (s *StateStore) Save(snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap.SavedAt = time.Now().UTC()
	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %v", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write state file: %v", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace state file: %v", err)
	}
	return nil
}
