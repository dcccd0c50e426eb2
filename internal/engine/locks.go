package engine

import "sync"

// agentLocks serializes all mutating operations on a single agent: invest,
// withdraw, open, settle, burn, and resurrect are linearized per agent.
// Every mutation path acquires the agent's lock before its first read.
// Operations on different agents run fully in parallel.
type agentLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newAgentLocks() *agentLocks {
	return &agentLocks{locks: make(map[string]*sync.Mutex)}
}

// acquire locks the named agent and returns the unlock function.
func (l *agentLocks) acquire(agentID string) func() {
	l.mu.Lock()
	m, ok := l.locks[agentID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[agentID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
