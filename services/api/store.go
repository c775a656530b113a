package api

import (
	"sync"
	"time"

	"sp500-backtest/services/engine"
	"sp500-backtest/services/journal"
)

// DefaultStoreLimit is how many runs are kept before the oldest is evicted
const DefaultStoreLimit = 256

// Run is a stored backtest
type Run struct {
	ID        string
	Asset     string
	CreatedAt time.Time
	Result    *engine.Result
	Notices   []journal.Notice
}

// Store keeps recent runs in memory
type Store struct {
	mu    sync.RWMutex
	limit int
	runs  map[string]*Run
	order []string
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = DefaultStoreLimit
	}
	return &Store{limit: limit, runs: make(map[string]*Run)}
}

func (s *Store) Put(run *Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		s.order = append(s.order, run.ID)
	}
	s.runs[run.ID] = run
	for len(s.order) > s.limit {
		delete(s.runs, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *Store) Get(id string) (*Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	return run, ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}
