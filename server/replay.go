package server

import (
	"sync"
	"time"

	"github.com/bitfsorg/milestone-escrow/identity"
)

// replayKey identifies one accepted request. The digest alone is shared by
// different signers of the same operation, so the caller is part of the key.
type replayKey struct {
	caller identity.Address
	digest [32]byte
}

// replayGuard remembers accepted requests until their timestamp leaves the
// request window.
type replayGuard struct {
	mu    sync.Mutex
	seen  map[replayKey]time.Time // expiry
	limit time.Duration
}

func newReplayGuard(window time.Duration) *replayGuard {
	return &replayGuard{seen: make(map[replayKey]time.Time), limit: window}
}

// accept records the request and reports whether it was unseen.
func (g *replayGuard) accept(caller identity.Address, digest []byte, timestamp int64, now time.Time) bool {
	key := replayKey{caller: caller}
	copy(key.digest[:], digest)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.cleanupLocked(now)
	if _, ok := g.seen[key]; ok {
		return false
	}
	g.seen[key] = time.Unix(timestamp, 0).Add(g.limit)
	return true
}

func (g *replayGuard) cleanupLocked(now time.Time) {
	for k, expiry := range g.seen {
		if now.After(expiry) {
			delete(g.seen, k)
		}
	}
}

func (g *replayGuard) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}
