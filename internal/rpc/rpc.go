package rpc

import (
	"time"

	"github.com/google/uuid"

	"github.com/DoyleJ11/matchmaking-client/internal/types"
)

const DefaultTimeout = 10 * time.Second

// Call is one outstanding request waiting for its reply.
type Call struct {
	ID        string
	Kind      string
	Deadline  time.Time
	OnReply   func(types.Reply)
	OnTimeout func()
}

// Tracker correlates replies with the requests that caused them. It is
// driven from the owner's tick and is not safe for concurrent use.
type Tracker struct {
	calls   map[string]*Call
	timeout time.Duration
	newID   func() string
}

func NewTracker(timeout time.Duration) *Tracker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Tracker{
		calls:   make(map[string]*Call),
		timeout: timeout,
		newID:   uuid.NewString,
	}
}

// Start registers a call and returns the id to put on the wire.
func (t *Tracker) Start(kind string, now time.Time, onReply func(types.Reply), onTimeout func()) string {
	id := t.newID()
	t.calls[id] = &Call{
		ID:        id,
		Kind:      kind,
		Deadline:  now.Add(t.timeout),
		OnReply:   onReply,
		OnTimeout: onTimeout,
	}
	return id
}

// Cancel forgets a call without running either continuation.
func (t *Tracker) Cancel(id string) {
	delete(t.calls, id)
}

// Resolve runs the reply continuation. Replies for unknown or expired ids are dropped.
func (t *Tracker) Resolve(id string, r types.Reply) bool {
	c, ok := t.calls[id]
	if !ok {
		return false
	}
	delete(t.calls, id)
	if c.OnReply != nil {
		c.OnReply(r)
	}
	return true
}

// Expire runs the timeout continuation for every call past its deadline.
func (t *Tracker) Expire(now time.Time) int {
	var due []*Call
	for id, c := range t.calls {
		if !now.Before(c.Deadline) {
			due = append(due, c)
			delete(t.calls, id)
		}
	}
	for _, c := range due {
		if c.OnTimeout != nil {
			c.OnTimeout()
		}
	}
	return len(due)
}

func (t *Tracker) Pending() int { return len(t.calls) }

// Outstanding lists calls for diagnostics.
func (t *Tracker) Outstanding() []Call {
	out := make([]Call, 0, len(t.calls))
	for _, c := range t.calls {
		out = append(out, *c)
	}
	return out
}
