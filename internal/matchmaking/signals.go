package matchmaking

import (
	"github.com/DoyleJ11/matchmaking-client/internal/connstate"
	"github.com/DoyleJ11/matchmaking-client/internal/invite"
	"github.com/DoyleJ11/matchmaking-client/internal/types"
)

func (o *Orchestrator) OnBeginConnect(source string) {
	o.applyConn(connstate.Signal{Type: connstate.SigBeginConnect, Source: source})
}

func (o *Orchestrator) OnServerSpawn(server types.SteamID) {
	o.applyConn(connstate.Signal{Type: connstate.SigServerSpawn, ServerID: server})
}

func (o *Orchestrator) OnDisconnect(reason string) {
	o.applyConn(connstate.Signal{Type: connstate.SigDisconnect, Reason: reason})
}

func (o *Orchestrator) applyConn(sig connstate.Signal) {
	env := connstate.Env{
		AllowMatchmakingInGame: o.cfg.AllowMatchmakingInGame,
		PartyJoinPending:       o.pendingJoin != 0,
	}
	effects, next, err := connstate.Apply(o.conn, sig, env)
	if err != nil {
		o.log.Warnw("ignoring connection signal", "signal", sig.Type, "error", err)
		return
	}
	if sig.Type == connstate.SigDisconnect && env.PartyJoinPending && o.conn.State != connstate.Disconnected {
		o.deferredDisconnect = true
	}
	o.log.Debugw("connection signal", "signal", sig.Type, "from", o.conn.State, "to", next.State)
	o.conn = next

	for _, eff := range effects {
		switch eff {
		case connstate.EffEndMatchmaking:
			o.EndMatchmaking(false)
		case connstate.EffStateChanged:
			if o.match.Update(o.lobby(), o.conn, o.game) {
				o.events.LobbyUpdated()
			}
		}
	}
}

// applyDeferredDisconnect replays a disconnect that arrived while a party join was pending.
func (o *Orchestrator) applyDeferredDisconnect() {
	if !o.deferredDisconnect {
		return
	}
	o.deferredDisconnect = false
	o.applyConn(connstate.Signal{Type: connstate.SigDisconnect})
}

func (o *Orchestrator) OnSessionCreated(id types.SessionID, ok bool) {
	party := o.party()
	wanted := o.wants && party != nil && party.IsLeader(o.self)
	o.assoc.Created(id, ok, wanted)
	if ok && wanted {
		o.reconcileSession()
	}
}

func (o *Orchestrator) OnSessionEntered(id types.SessionID, ok bool) {
	if o.invite.Step() == invite.StepJoinSession && id == o.invite.Session() {
		o.assoc.Entered(id, ok)
		if err := o.invite.Entered(ok); err != nil {
			o.failInvite(err)
			return
		}
		if err := o.sessions.RequestMetadata(id); err != nil {
			o.log.Warnw("session metadata request failed", "session", id, "error", err)
		}
		o.readInviteMetadata(false)
		return
	}

	if !o.assoc.Entered(id, ok) {
		o.log.Debugw("entered a session we were not joining", "session", id, "ok", ok)
		return
	}
	if !ok {
		// retried on a later reconcile
		o.log.Warnw("peer session join rejected", "session", id)
	}
}

func (o *Orchestrator) OnSessionDataUpdated(id types.SessionID) {
	if o.invite.Step() == invite.StepReadingSessionMetadata && id == o.invite.Session() {
		o.readInviteMetadata(true)
		return
	}
	if id == o.assoc.Current() && o.wants {
		o.reconcileSession()
	}
}

func (o *Orchestrator) OnSessionMembershipChanged(id types.SessionID, member types.SteamID, joined bool) {
	o.log.Debugw("peer session membership changed", "session", id, "member", member, "joined", joined)
	if id == o.assoc.Current() && o.wants {
		o.reconcileSession()
	}
}

func (o *Orchestrator) OnSessionChat(id types.SessionID, from types.SteamID, payload []byte) {
	if id != o.assoc.Current() {
		return
	}
	o.events.PartyChat(from, string(payload))
}

// OnSessionJoinRequested is the platform's "join friend" action.
func (o *Orchestrator) OnSessionJoinRequested(id types.SessionID) {
	o.AcceptFriendInvite(id)
}

func (o *Orchestrator) SendPartyChat(text string) error {
	cur := o.assoc.Current()
	if cur == 0 {
		return ErrNoSession
	}
	return o.sessions.SendMessage(cur, []byte(text))
}
