package signal

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dkeye/Dial/internal/domain"
)

const pruneThreshold = 1024

// UpgradeRateLimiter is a sliding window of upgrade attempts per user.
type UpgradeRateLimiter struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	history  map[domain.UserID][]time.Time
	limit    int
	interval time.Duration
}

func NewUpgradeRateLimiter(clock clockwork.Clock, limit int, interval time.Duration) *UpgradeRateLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &UpgradeRateLimiter{
		clock:    clock,
		history:  make(map[domain.UserID][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

// Allow records an attempt for uid unless the window is already full.
// A non-positive limit disables limiting.
func (rl *UpgradeRateLimiter) Allow(uid domain.UserID) bool {
	if rl == nil || rl.limit <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	windowStart := now.Add(-rl.interval)
	if len(rl.history) > pruneThreshold {
		rl.prune(windowStart)
	}

	attempts := rl.history[uid]
	fresh := make([]time.Time, 0, len(attempts)+1)
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[uid] = fresh
		return false
	}

	rl.history[uid] = append(fresh, now)
	return true
}

// prune drops users with no attempt inside the window.
func (rl *UpgradeRateLimiter) prune(windowStart time.Time) {
	for uid, attempts := range rl.history {
		if len(attempts) == 0 || !attempts[len(attempts)-1].After(windowStart) {
			delete(rl.history, uid)
		}
	}
}
