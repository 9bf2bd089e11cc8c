package node

import (
	"time"

	"github.com/nbcluster/nbcluster/internal/logger"
)

// DefaultRefreshWakeup is how often the scheduler checks for names
// nearing TTL expiry.
const DefaultRefreshWakeup = 3 * time.Minute

// refreshScheduler wakes periodically and re-registers any local name
// whose expiry falls within the next wakeup window.
type refreshScheduler struct {
	node     *Node
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func newRefreshScheduler(n *Node, interval time.Duration) *refreshScheduler {
	if interval <= 0 {
		interval = DefaultRefreshWakeup
	}
	return &refreshScheduler{
		node:     n,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *refreshScheduler) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.tick(time.Now())
		}
	}
}

func (s *refreshScheduler) tick(now time.Time) {
	window := now.Add(s.interval)
	for _, n := range s.node.local.All() {
		if n.Expiry.IsZero() || n.Expiry.After(window) {
			continue
		}
		if err := s.node.refreshName(n); err != nil {
			logger.Warn("netbios refresh failed", "name", n.Name, "error", err)
		}
	}
}

func (s *refreshScheduler) Stop() {
	close(s.stop)
	<-s.done
}
