package session

import (
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/matchmaking-client/internal/types"
)

// PartyIDKey is the session metadata key holding the party id in hex.
const PartyIDKey = "PartyID"

const DefaultTimeout = 10 * time.Second

// Sessions is the peer session capability. Create and Join complete
// asynchronously; results come back through Created and Entered.
type Sessions interface {
	Create() error
	Join(id types.SessionID) error
	Leave(id types.SessionID)
	RequestMetadata(id types.SessionID) error
	Metadata(id types.SessionID, key string) string
	SetMetadata(id types.SessionID, key, value string) error
	SendMessage(id types.SessionID, payload []byte) error
}

type Input struct {
	WantsMatchmaking bool
	Party            *types.Party
	Self             types.SteamID
	InviteInProgress bool
}

// Associator keeps one peer session paired with the current party.
type Associator struct {
	sessions Sessions
	log      *zap.SugaredLogger
	timeout  time.Duration

	current        types.SessionID
	creating       bool
	createDeadline time.Time
	joining        types.SessionID
	joinDeadline   time.Time
}

func NewAssociator(s Sessions, timeout time.Duration, log *zap.SugaredLogger) *Associator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Associator{sessions: s, log: log, timeout: timeout}
}

func (a *Associator) Current() types.SessionID { return a.current }
func (a *Associator) Creating() bool           { return a.creating }
func (a *Associator) Joining() types.SessionID { return a.joining }

// Reconcile derives the target pairing from in and issues whatever calls
// close the gap. When the leader's party does not yet record our session it
// returns that id so the caller can queue a party update.
func (a *Associator) Reconcile(in Input, now time.Time) (types.SessionID, bool) {
	a.expire(now)
	if in.InviteInProgress {
		return 0, false
	}
	if !in.WantsMatchmaking || in.Party == nil {
		a.Leave()
		return 0, false
	}

	party := in.Party
	if party.IsLeader(in.Self) {
		return a.reconcileLeader(party, now)
	}

	if party.SessionID != a.current {
		if a.current != 0 {
			a.Leave()
		}
		if party.SessionID != 0 && a.joining != party.SessionID {
			_ = a.Join(party.SessionID, now)
		}
	}
	return 0, false
}

func (a *Associator) reconcileLeader(party *types.Party, now time.Time) (types.SessionID, bool) {
	if a.current == 0 {
		if a.creating || a.joining != 0 {
			return 0, false
		}
		if err := a.sessions.Create(); err != nil {
			a.log.Warnw("peer session create failed", "error", err)
			return 0, false
		}
		a.creating = true
		a.createDeadline = now.Add(a.timeout)
		return 0, false
	}

	want := party.GroupID.Hex()
	if a.sessions.Metadata(a.current, PartyIDKey) != want {
		if err := a.sessions.SetMetadata(a.current, PartyIDKey, want); err != nil {
			a.log.Warnw("peer session metadata write failed", "session", a.current, "error", err)
		}
	}
	if party.SessionID != a.current {
		return a.current, true
	}
	return 0, false
}

func (a *Associator) expire(now time.Time) {
	if a.creating && !now.Before(a.createDeadline) {
		a.log.Infow("peer session create timed out")
		a.creating = false
	}
	if a.joining != 0 && !now.Before(a.joinDeadline) {
		a.log.Infow("peer session join timed out", "session", a.joining)
		a.joining = 0
	}
}

// Join leaves any other session and starts joining id.
func (a *Associator) Join(id types.SessionID, now time.Time) error {
	if a.current == id {
		return nil
	}
	a.Leave()
	if err := a.sessions.Join(id); err != nil {
		a.log.Warnw("peer session join failed", "session", id, "error", err)
		return err
	}
	a.joining = id
	a.joinDeadline = now.Add(a.timeout)
	return nil
}

func (a *Associator) Leave() {
	if a.current != 0 {
		a.sessions.Leave(a.current)
		a.current = 0
	}
	a.joining = 0
}

// Created handles the async create result. A session that is no longer
// wanted by the time it exists is left straight away.
func (a *Associator) Created(id types.SessionID, ok, stillWanted bool) {
	a.creating = false
	if !ok {
		a.log.Warnw("peer session create rejected")
		return
	}
	if !stillWanted || a.current != 0 {
		a.sessions.Leave(id)
		return
	}
	a.current = id
}

// Entered handles the async join result. It reports whether id was the session being joined.
func (a *Associator) Entered(id types.SessionID, ok bool) bool {
	if a.joining != id {
		return false
	}
	a.joining = 0
	if ok {
		a.current = id
	}
	return true
}
