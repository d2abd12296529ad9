package matchmaking

import (
	"time"

	"github.com/DoyleJ11/matchmaking-client/internal/connstate"
	"github.com/DoyleJ11/matchmaking-client/internal/invite"
	"github.com/DoyleJ11/matchmaking-client/internal/session"
	"github.com/DoyleJ11/matchmaking-client/internal/types"
)

// AcceptFriendInvite starts joining the party behind a friend's peer session.
func (o *Orchestrator) AcceptFriendInvite(id types.SessionID) {
	o.log.Infow("accepting friend invite", "session", id)
	o.EndMatchmaking(false)
	o.invite.Accept(id, o.now())
	o.inviteDisconnectAsked = false
	o.events.PartyUpdated()
}

// LeaveGameAndPrepareToJoinParty leaves the current server so the backend can
// move us into group. Matchmaking resumes once that party shows up.
func (o *Orchestrator) LeaveGameAndPrepareToJoinParty(group types.GroupID) {
	o.log.Infow("preparing to join party", "group", group)
	o.pendingJoin = group
	o.pendingJoinDeadline = o.now().Add(o.inviteTimeout())

	if p := o.party(); p != nil && p.GroupID == group {
		o.completePendingJoin(*p)
		return
	}
	if o.conn.State != connstate.Disconnected {
		o.game.Disconnect("joining party")
	}
}

func (o *Orchestrator) inviteTimeout() time.Duration {
	if o.cfg.InviteTimeout > 0 {
		return o.cfg.InviteTimeout
	}
	return invite.DefaultTimeout
}

func (o *Orchestrator) completePendingJoin(party types.Party) {
	o.log.Infow("joined pending party", "group", party.GroupID)
	o.pendingJoin = 0
	o.pendingJoinDeadline = time.Time{}
	o.applyDeferredDisconnect()
	_ = o.BeginMatchmaking(party.Criteria.Mode)
}

func (o *Orchestrator) tickPendingJoin(now time.Time) {
	if o.pendingJoin == 0 || now.Before(o.pendingJoinDeadline) {
		return
	}
	o.log.Warnw("gave up waiting for party", "group", o.pendingJoin)
	o.pendingJoin = 0
	o.pendingJoinDeadline = time.Time{}
	o.applyDeferredDisconnect()
}

func (o *Orchestrator) tickInvite(now time.Time) {
	if !o.invite.Active() {
		return
	}
	if o.invite.Expired(now) {
		o.failInvite(invite.ErrTimedOut)
		return
	}
	if o.invite.Step() != invite.StepReadyToJoinSession || o.match.HasLiveMatch() {
		return
	}

	switch {
	case o.conn.State != connstate.Disconnected:
		if !o.inviteDisconnectAsked {
			o.inviteDisconnectAsked = true
			o.game.Disconnect("joining friend's party")
		}
	case o.wants:
		o.EndMatchmaking(false)
	case o.lobby() == nil && o.party() == nil:
		if err := o.assoc.Join(o.invite.Session(), now); err != nil {
			o.failInvite(invite.ErrJoinRejected)
			return
		}
		_ = o.invite.JoinIssued()
	}
}

// readInviteMetadata looks for the party id in the inviter's session. With
// final set, a missing value fails the invite instead of waiting for more data.
func (o *Orchestrator) readInviteMetadata(final bool) {
	if o.invite.Step() != invite.StepReadingSessionMetadata {
		return
	}
	if p := o.party(); p != nil {
		o.completeInvite(*p)
		return
	}

	sid := o.invite.Session()
	value := o.sessions.Metadata(sid, session.PartyIDKey)
	if value == "" && !final {
		return
	}
	group, err := o.invite.MetadataRead(value)
	if err != nil {
		o.failInvite(err)
		return
	}
	o.log.Infow("requesting to join invited party", "group", group, "session", sid)
	o.send("party.accept_invite", types.AcceptInvite{
		GroupID:       group,
		SessionID:     sid,
		ClientVersion: o.cfg.ClientVersion,
	}, o.onAcceptInviteReply, o.onAcceptInviteTimeout)
}

func (o *Orchestrator) onAcceptInviteReply(r types.Reply) {
	if o.invite.Step() != invite.StepJoiningParty {
		return
	}
	switch r.Result {
	case types.ResultOK, types.ResultDuplicate:
		// the party itself arrives through replication
	case types.ResultInvalidProtocolVersion:
		o.invite.Reset()
		o.protocolMismatch()
	default:
		o.log.Warnw("party invite rejected", "result", r.Result)
		o.failInvite(invite.ErrInviteRejected)
	}
}

func (o *Orchestrator) onAcceptInviteTimeout() {
	if o.invite.Step() == invite.StepJoiningParty {
		o.failInvite(invite.ErrTimedOut)
	}
}

func (o *Orchestrator) completeInvite(party types.Party) {
	o.log.Infow("joined invited party", "group", party.GroupID, "wanted", o.invite.Party())
	o.invite.Reset()
	_ = o.BeginMatchmaking(party.Criteria.Mode)
}

func (o *Orchestrator) failInvite(err error) {
	o.log.Warnw("friend invite failed", "step", o.invite.Step(), "session", o.invite.Session(), "error", err)
	o.invite.Reset()
	o.EndMatchmaking(false)
	o.events.UserMessage(types.UserMessage{Text: err.Error()})
}
