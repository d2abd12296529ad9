package invite

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/DoyleJ11/matchmaking-client/internal/types"
)

var ErrJoinRejected = errors.New("could not join the inviter's session")
var ErrNoPartyID = errors.New("the inviter's session does not name a party")
var ErrInviteRejected = errors.New("the party invite was rejected")
var ErrTimedOut = errors.New("timed out joining the party")
var ErrWrongStep = errors.New("invite flow is not at that step")

const DefaultTimeout = 30 * time.Second

type Step string

const (
	StepNone                   Step = "none"
	StepReadyToJoinSession     Step = "ready_to_join_session"
	StepJoinSession            Step = "join_session"
	StepReadingSessionMetadata Step = "reading_session_metadata"
	StepJoiningParty           Step = "joining_party"
)

// Flow walks an accepted invite from the inviter's peer session to their party.
type Flow struct {
	step     Step
	session  types.SessionID
	party    types.GroupID
	deadline time.Time
	timeout  time.Duration
}

type Snapshot struct {
	Step     Step            `json:"step"`
	Session  types.SessionID `json:"session_id"`
	Party    types.GroupID   `json:"group_id"`
	Deadline time.Time       `json:"deadline"`
}

func New(timeout time.Duration) *Flow {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Flow{step: StepNone, timeout: timeout}
}

func (f *Flow) Step() Step               { return f.step }
func (f *Flow) Session() types.SessionID { return f.session }
func (f *Flow) Party() types.GroupID     { return f.party }
func (f *Flow) Active() bool             { return f.step != StepNone }

func (f *Flow) Snapshot() Snapshot {
	return Snapshot{Step: f.step, Session: f.session, Party: f.party, Deadline: f.deadline}
}

// Accept starts over for a new invite, abandoning any flow in progress.
func (f *Flow) Accept(session types.SessionID, now time.Time) {
	f.step = StepReadyToJoinSession
	f.session = session
	f.party = 0
	f.deadline = now.Add(f.timeout)
}

func (f *Flow) JoinIssued() error {
	if f.step != StepReadyToJoinSession {
		return ErrWrongStep
	}
	f.step = StepJoinSession
	return nil
}

func (f *Flow) Entered(ok bool) error {
	if f.step != StepJoinSession {
		return ErrWrongStep
	}
	if !ok {
		return ErrJoinRejected
	}
	f.step = StepReadingSessionMetadata
	return nil
}

// MetadataRead parses the party id published on the session.
func (f *Flow) MetadataRead(value string) (types.GroupID, error) {
	if f.step != StepReadingSessionMetadata {
		return 0, ErrWrongStep
	}
	id := ParsePartyID(value)
	if id == 0 {
		return 0, fmt.Errorf("%w: %q", ErrNoPartyID, value)
	}
	f.party = id
	f.step = StepJoiningParty
	return id, nil
}

func (f *Flow) Expired(now time.Time) bool {
	return f.Active() && !now.Before(f.deadline)
}

func (f *Flow) Reset() {
	f.step = StepNone
	f.session = 0
	f.party = 0
	f.deadline = time.Time{}
}

func ParsePartyID(s string) types.GroupID {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0
	}
	return types.GroupID(v)
}
