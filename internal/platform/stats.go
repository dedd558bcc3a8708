package platform

import (
	"sync"
	"time"
)

// AccountStats counts one account's remote traffic over a run.
type AccountStats struct {
	Requests     int64
	RateLimited  int64
	Retries      int64
	ThrottleWait time.Duration
}

// Stats accumulates per-account request counters. Each Client owns one;
// nothing here is process-global.
type Stats struct {
	mu       sync.Mutex
	accounts map[string]*AccountStats
}

func NewStats() *Stats {
	return &Stats{accounts: make(map[string]*AccountStats)}
}

func (s *Stats) recordRequest(account string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry(account).Requests++
}

func (s *Stats) recordRateLimited(account string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry(account).RateLimited++
}

func (s *Stats) recordRetry(account string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry(account).Retries++
}

func (s *Stats) recordThrottleWait(account string, wait time.Duration) {
	if wait <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry(account).ThrottleWait += wait
}

// entry returns the counters for account, creating them on first use.
// Callers hold s.mu.
func (s *Stats) entry(account string) *AccountStats {
	stats, ok := s.accounts[account]
	if !ok {
		stats = &AccountStats{}
		s.accounts[account] = stats
	}
	return stats
}

// Snapshot returns a copy of the counters keyed by account name.
func (s *Stats) Snapshot() map[string]AccountStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[string]AccountStats, len(s.accounts))
	for name, stats := range s.accounts {
		snapshot[name] = *stats
	}
	return snapshot
}
