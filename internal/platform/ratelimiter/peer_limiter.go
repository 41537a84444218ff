package ratelimiter

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// PeerLimiter applies a token bucket per outbound peer and periodically
// evicts idle entries.
type PeerLimiter struct {
	limit   rate.Limit
	burst   int
	mu      sync.Mutex
	byPeer  map[string]*entry
	hits    uint64
	idleTTL time.Duration
	now     func() time.Time
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a per-peer limiter; returns nil if args are invalid, and a nil
// limiter never blocks.
func New(rps float64, burst int, idleTTL time.Duration) *PeerLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &PeerLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		byPeer:  make(map[string]*entry),
		idleTTL: idleTTL,
		now:     time.Now,
	}
}

// Wait blocks until one message to peer may be sent or ctx ends.
func (l *PeerLimiter) Wait(ctx context.Context, peer string) error {
	limiter := l.limiterFor(peer)
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

// allow reports whether a message to peer may be sent right now.
func (l *PeerLimiter) allow(peer string) bool {
	limiter := l.limiterFor(peer)
	if limiter == nil {
		return true
	}
	return limiter.AllowN(l.now(), 1)
}

func (l *PeerLimiter) limiterFor(peer string) *rate.Limiter {
	if l == nil {
		return nil
	}
	peer = strings.TrimSpace(peer)
	if peer == "" {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.byPeer[peer]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byPeer[peer] = e
	}
	e.lastSeen = now

	l.hits++
	if l.hits%512 == 0 {
		cutoff := now.Add(-l.idleTTL)
		for k, v := range l.byPeer {
			if v.lastSeen.Before(cutoff) {
				delete(l.byPeer, k)
			}
		}
	}
	return e.limiter
}

func (l *PeerLimiter) trackedPeers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byPeer)
}
