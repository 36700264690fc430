package relay

import (
	"crypto/subtle"
	"sync"
	"time"

	"github.com/GriffinCanCode/VibeCoder/backend/internal/shared/id"
	"github.com/google/uuid"
)

type ticket struct {
	workspace id.WorkspaceID
	token     string
	issued    time.Time
}

// Tokens tracks the relay token of every live run
type Tokens struct {
	mu      sync.RWMutex
	tickets map[id.RunID]ticket
	ttl     time.Duration
	now     func() time.Time
}

// NewTokens creates a token registry. Tokens older than ttl are rejected and
// dropped by Sweep; a zero ttl keeps them until Forget.
func NewTokens(ttl time.Duration) *Tokens {
	return &Tokens{
		tickets: make(map[id.RunID]ticket),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Issue creates the token a run's document uses to reach the relay
func (t *Tokens) Issue(run id.RunID, workspace id.WorkspaceID) string {
	token := uuid.NewString()

	t.mu.Lock()
	t.tickets[run] = ticket{workspace: workspace, token: token, issued: t.now()}
	t.mu.Unlock()
	return token
}

// Verify returns the workspace a run belongs to when token matches
func (t *Tokens) Verify(run id.RunID, token string) (id.WorkspaceID, error) {
	t.mu.RLock()
	tk, ok := t.tickets[run]
	t.mu.RUnlock()

	if !ok {
		return "", ErrUnknownRun
	}
	if subtle.ConstantTimeCompare([]byte(tk.token), []byte(token)) != 1 {
		return "", ErrBadToken
	}
	if t.ttl > 0 && t.now().Sub(tk.issued) > t.ttl {
		return "", ErrUnknownRun
	}
	return tk.workspace, nil
}

// Forget drops a run's token
func (t *Tokens) Forget(run id.RunID) {
	t.mu.Lock()
	delete(t.tickets, run)
	t.mu.Unlock()
}

// Sweep drops expired tokens and returns how many were removed
func (t *Tokens) Sweep(now time.Time) int {
	if t.ttl <= 0 {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for run, tk := range t.tickets {
		if now.Sub(tk.issued) > t.ttl {
			delete(t.tickets, run)
			n++
		}
	}
	return n
}

// Len returns the number of live tokens
func (t *Tokens) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.tickets)
}
