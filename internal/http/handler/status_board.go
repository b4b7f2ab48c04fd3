package handler

import (
	"sync"

	"github.com/your-org/tick-session-engine/internal/market"
)

// StatusBoard is the concurrency-safe snapshot the status endpoints
// read. The runner goroutine owns the session and publishes copies
// here; handler goroutines never touch live run state.
type StatusBoard struct {
	mu      sync.RWMutex
	status  string
	account market.AccountSnapshot
}

// NewStatusBoard creates a board in the given initial state.
func NewStatusBoard(status string) *StatusBoard {
	return &StatusBoard{status: status}
}

// SetStatus publishes the run lifecycle state.
func (b *StatusBoard) SetStatus(status string) {
	b.mu.Lock()
	b.status = status
	b.mu.Unlock()
}

// SetAccount publishes an account snapshot.
func (b *StatusBoard) SetAccount(a market.AccountSnapshot) {
	b.mu.Lock()
	b.account = a
	b.mu.Unlock()
}

// Status implements StatusSource.
func (b *StatusBoard) Status() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// Account implements StatusSource.
func (b *StatusBoard) Account() market.AccountSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.account
}
