package dispatch

import (
	"errors"
	"time"

	"github.com/DoyleJ11/matchmaking-client/internal/criteria"
	"github.com/DoyleJ11/matchmaking-client/internal/types"
)

var ErrNotLeader = errors.New("only the party leader may change matchmaking settings")

// DefaultDelay is how long a multi-member party batches edits before sending.
const DefaultDelay = 2 * time.Second

type Outcome string

const (
	OutcomeStale            Outcome = "stale"
	OutcomeApplied          Outcome = "applied"
	OutcomeProtocolMismatch Outcome = "protocol_mismatch"
	OutcomeTimedOut         Outcome = "timed_out"
)

type pending struct {
	step      types.WizardStep
	dirty     bool
	mutations []criteria.Mutation
	session   *types.SessionID
	sendAt    time.Time
}

// Ticket identifies one update that has been handed to the network.
type Ticket struct {
	step       types.WizardStep
	mutations  []criteria.Mutation
	session    *types.SessionID
	generation int
	done       bool
}

func (t *Ticket) Step() types.WizardStep { return t.step }

// Dispatcher is the only writer of party-update requests. At most one
// request is in flight; edits made meanwhile are merged into the next one.
type Dispatcher struct {
	store       *criteria.Store
	delay       time.Duration
	pending     *pending
	inflight    *Ticket
	stepChanges int
	generation  int
}

func New(store *criteria.Store, delay time.Duration) *Dispatcher {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Dispatcher{store: store, delay: delay}
}

func canEdit(party *types.Party, self types.SteamID) bool {
	return party == nil || party.IsLeader(self)
}

func (d *Dispatcher) ensure(party *types.Party, now time.Time) *pending {
	if d.pending != nil {
		return d.pending
	}
	sendAt := now
	if party != nil && len(party.Members) > 1 {
		sendAt = now.Add(d.delay)
	}
	d.pending = &pending{sendAt: sendAt}
	if party == nil {
		// no backend copy yet, so the first request carries everything
		d.pending.dirty = true
	}
	return d.pending
}

// RequestWizardStep moves the local step optimistically. It reports whether
// a request was queued; false means the change was purely local.
func (d *Dispatcher) RequestWizardStep(step types.WizardStep, party *types.Party, self types.SteamID, now time.Time) (bool, error) {
	if !canEdit(party, self) {
		return false, ErrNotLeader
	}
	d.store.SetStep(step)
	if party == nil && step != types.StepSearching {
		return false, nil
	}

	p := d.ensure(party, now)
	if p.step == types.StepInvalid {
		d.stepChanges++
	}
	p.step = step
	p.sendAt = now
	return true, nil
}

// MutateCriteria applies f locally and, with a party, folds it into the next request.
func (d *Dispatcher) MutateCriteria(f criteria.Mutation, party *types.Party, self types.SteamID, now time.Time) (bool, error) {
	if !canEdit(party, self) {
		return false, ErrNotLeader
	}
	d.store.Mutate(f)
	if party == nil {
		return false, nil
	}

	p := d.ensure(party, now)
	p.dirty = true
	p.mutations = append(p.mutations, f)
	return true, nil
}

// SetSessionID asks the backend to record the peer session on the party.
// It is a no-op when that value is already queued or in flight.
func (d *Dispatcher) SetSessionID(id types.SessionID, party *types.Party, now time.Time) bool {
	if d.pending != nil && d.pending.session != nil && *d.pending.session == id {
		return false
	}
	if d.inflight != nil && d.inflight.session != nil && *d.inflight.session == id {
		return false
	}
	p := d.ensure(party, now)
	p.session = &id
	return true
}

func (d *Dispatcher) FlushNow(now time.Time) {
	if d.pending != nil {
		d.pending.sendAt = now
	}
}

// Next hands out the queued update once it is due and nothing else is in flight.
func (d *Dispatcher) Next(now time.Time) (types.PartyUpdate, *Ticket, bool) {
	p := d.pending
	if p == nil || d.inflight != nil || now.Before(p.sendAt) {
		return types.PartyUpdate{}, nil, false
	}

	var c *types.SearchCriteria
	if p.dirty {
		snap := d.store.Criteria()
		c = &snap
	}
	req := BuildRequest(p.step, c, p.session)

	t := &Ticket{
		step:       p.step,
		mutations:  p.mutations,
		session:    p.session,
		generation: d.generation,
	}
	d.pending = nil
	d.inflight = t
	return req, t, true
}

// BuildRequest is the wire request for a step, criteria snapshot and session id.
func BuildRequest(step types.WizardStep, c *types.SearchCriteria, session *types.SessionID) types.PartyUpdate {
	req := types.PartyUpdate{Step: step}
	if c != nil {
		cc := c.Clone()
		req.Criteria = &cc
	}
	if session != nil {
		id := *session
		req.SessionID = &id
	}
	return req
}

func (d *Dispatcher) finish(t *Ticket) bool {
	if t.done {
		return false
	}
	t.done = true
	if d.inflight == t {
		d.inflight = nil
	}
	if t.generation != d.generation {
		return false
	}
	if t.step != types.StepInvalid && d.stepChanges > 0 {
		d.stepChanges--
	}
	return true
}

// HandleReply settles a sent update. Once no step change is outstanding the
// local step follows the backend; while others are outstanding it is only
// forced back when keeping the optimistic guess could mislead.
func (d *Dispatcher) HandleReply(t *Ticket, r types.Reply, party *types.Party) Outcome {
	if !d.finish(t) {
		return OutcomeStale
	}
	if r.Result == types.ResultInvalidProtocolVersion {
		return OutcomeProtocolMismatch
	}

	committed := r.Step
	if committed == types.StepInvalid && party != nil {
		committed = party.WizardStep
	}
	if committed == types.StepInvalid {
		return OutcomeApplied
	}

	local := d.store.Step()
	switch {
	case d.stepChanges <= 0:
		d.store.SetStep(committed)
	case t.step != types.StepInvalid && (t.step != committed ||
		t.step == types.StepSearching ||
		committed == types.StepSearching ||
		local == types.StepSearching):
		d.store.SetStep(committed)
	}
	return OutcomeApplied
}

// HandleTimeout settles an update that never got a reply. The caller marks the party offline.
func (d *Dispatcher) HandleTimeout(t *Ticket, party *types.Party) Outcome {
	if t.done {
		return OutcomeStale
	}
	if d.finish(t) && d.stepChanges <= 0 && party != nil && party.WizardStep != types.StepInvalid {
		d.store.SetStep(party.WizardStep)
	}
	return OutcomeTimedOut
}

// Cancel drops the queued update and forgets outstanding step changes.
// A request already on the wire still occupies the in-flight slot until it settles.
func (d *Dispatcher) Cancel() {
	d.pending = nil
	d.stepChanges = 0
	d.generation++
}

// SyncStepFromParty pulls the step from the party when nothing local is outstanding.
func (d *Dispatcher) SyncStepFromParty(party types.Party) bool {
	if d.stepChanges > 0 || party.WizardStep == types.StepInvalid {
		return false
	}
	d.store.SetStep(party.WizardStep)
	return true
}

// Unconfirmed lists edits the backend has not acknowledged yet, oldest first.
func (d *Dispatcher) Unconfirmed() []criteria.Mutation {
	var out []criteria.Mutation
	if d.inflight != nil {
		out = append(out, d.inflight.mutations...)
	}
	if d.pending != nil {
		out = append(out, d.pending.mutations...)
	}
	return out
}

func (d *Dispatcher) StepChangesInFlight() int { return d.stepChanges }
func (d *Dispatcher) HasPending() bool         { return d.pending != nil }
func (d *Dispatcher) InFlight() bool           { return d.inflight != nil }

// SendAt reports when the queued update becomes due.
func (d *Dispatcher) SendAt() (time.Time, bool) {
	if d.pending == nil {
		return time.Time{}, false
	}
	return d.pending.sendAt, true
}
