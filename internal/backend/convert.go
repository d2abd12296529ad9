package backend

import (
	"errors"
	"fmt"

	"github.com/DoyleJ11/matchmaking-client/internal/hub"
	"github.com/DoyleJ11/matchmaking-client/internal/replica"
	"github.com/DoyleJ11/matchmaking-client/internal/types"
	wire "github.com/DoyleJ11/matchmaking-client/pkg/types"
)

var ErrUnknownRequest = errors.New("unknown request type")
var ErrMalformedFrame = errors.New("malformed frame")

func requestFrame(id string, req types.Request) (wire.Frame, error) {
	switch r := req.(type) {
	case types.PartyUpdate:
		body := wire.PartyUpdate{Step: string(r.Step)}
		if r.Criteria != nil {
			c := criteriaToWire(*r.Criteria)
			body.Criteria = &c
		}
		if r.SessionID != nil {
			sid := uint64(*r.SessionID)
			body.SessionID = &sid
		}
		return wire.NewFrame(wire.FrameRequest, id, wire.MethodPartyUpdate, body)
	case types.ExitMatchmaking:
		return wire.NewFrame(wire.FrameRequest, id, wire.MethodPartyExit, wire.ExitMatchmaking{Abandon: r.Abandon})
	case types.AcceptInvite:
		return wire.NewFrame(wire.FrameRequest, id, wire.MethodAcceptInvite, wire.AcceptInvite{
			GroupID:       uint64(r.GroupID),
			SessionID:     uint64(r.SessionID),
			ClientVersion: r.ClientVersion,
		})
	case types.PingUpdate:
		body := wire.PingUpdate{Entries: make([]wire.PingEntry, 0, len(r.Entries))}
		for _, e := range r.Entries {
			body.Entries = append(body.Entries, wire.PingEntry{POP: e.POP, RTTMs: e.RTTMs, Status: e.Status})
		}
		return wire.NewFrame(wire.FrameRequest, id, wire.MethodPingUpdate, body)
	}
	return wire.Frame{}, fmt.Errorf("%w: %T", ErrUnknownRequest, req)
}

func criteriaToWire(c types.SearchCriteria) wire.Criteria {
	return wire.Criteria{
		Mode:                  string(c.Mode),
		LateJoinOK:            c.LateJoinOK,
		QuickplayCategory:     c.QuickplayCategory,
		CasualMaps:            c.CasualMaps,
		Missions:              c.Missions,
		PlayForBraggingRights: c.PlayForBraggingRights,
		LadderGroup:           string(c.LadderGroup),
		CustomPingTolerance:   c.CustomPingTolerance,
	}
}

func criteriaFromWire(c wire.Criteria) types.SearchCriteria {
	return types.SearchCriteria{
		Mode:                  types.Mode(c.Mode),
		LateJoinOK:            c.LateJoinOK,
		QuickplayCategory:     c.QuickplayCategory,
		CasualMaps:            c.CasualMaps,
		Missions:              c.Missions,
		PlayForBraggingRights: c.PlayForBraggingRights,
		LadderGroup:           types.MatchGroup(c.LadderGroup),
		CustomPingTolerance:   c.CustomPingTolerance,
	}
}

func partyFromWire(p wire.Party) types.Party {
	members := make([]types.Member, 0, len(p.Members))
	for _, m := range p.Members {
		members = append(members, types.Member{
			ID:                types.SteamID(m.ID),
			SquadSurplus:      m.SquadSurplus,
			CompetitiveAccess: m.CompetitiveAccess,
			CompletedMissions: m.CompletedMissions,
		})
	}
	return types.Party{
		GroupID:    types.GroupID(p.GroupID),
		Members:    members,
		LeaderID:   types.SteamID(p.LeaderID),
		State:      types.PartyState(p.State),
		WizardStep: types.WizardStep(p.WizardStep),
		MatchGroup: types.MatchGroup(p.MatchGroup),
		Criteria:   criteriaFromWire(p.Criteria),
		SessionID:  types.SessionID(p.SessionID),
	}
}

func lobbyFromWire(l wire.Lobby) types.Lobby {
	return types.Lobby{
		ID:          types.LobbyID(l.ID),
		State:       types.LobbyState(l.State),
		ServerID:    types.SteamID(l.ServerID),
		ConnectAddr: l.ConnectAddr,
		MatchID:     types.MatchID(l.MatchID),
		MatchGroup:  types.MatchGroup(l.MatchGroup),
	}
}

// objectEvent converts a replication push. ok is false for kinds the
// client does not track.
func objectEvent(o wire.Object) (ev replica.Event, ok bool, err error) {
	ev = replica.Event{Type: replica.EventType(o.Event), Owner: types.SteamID(o.Owner)}
	switch o.Kind {
	case wire.KindParty:
		if o.Party == nil {
			return ev, false, fmt.Errorf("%w: party object without body", ErrMalformedFrame)
		}
		ev.Object = partyFromWire(*o.Party)
	case wire.KindLobby:
		if o.Lobby == nil {
			return ev, false, fmt.Errorf("%w: lobby object without body", ErrMalformedFrame)
		}
		ev.Object = lobbyFromWire(*o.Lobby)
	default:
		return ev, false, nil
	}
	return ev, true, nil
}

func sessionMsg(e wire.SessionEvent) (hub.Msg, bool) {
	id := types.SessionID(e.SessionID)
	switch e.Event {
	case wire.SessionCreated:
		return hub.SessionCreated{ID: id, OK: e.OK}, true
	case wire.SessionEntered:
		return hub.SessionEntered{ID: id, OK: e.OK}, true
	case wire.SessionData:
		return hub.SessionDataUpdated{ID: id}, true
	case wire.SessionMembership:
		return hub.SessionMembership{ID: id, Member: types.SteamID(e.Member), Joined: e.Joined}, true
	case wire.SessionChat:
		return hub.SessionChat{ID: id, From: types.SteamID(e.Member), Payload: e.Payload}, true
	case wire.SessionJoinRequested:
		return hub.SessionJoinRequested{ID: id}, true
	}
	return nil, false
}
