package matchmaking

import (
	"errors"
	"time"

	"github.com/DoyleJ11/matchmaking-client/internal/connstate"
	"github.com/DoyleJ11/matchmaking-client/internal/history"
	"github.com/DoyleJ11/matchmaking-client/internal/invite"
	"github.com/DoyleJ11/matchmaking-client/internal/match"
	"github.com/DoyleJ11/matchmaking-client/internal/ping"
	"github.com/DoyleJ11/matchmaking-client/internal/types"
)

var ErrUnknownDump = errors.New("unknown dump kind")

// Snapshot is a point-in-time copy of everything the orchestrator tracks.
type Snapshot struct {
	Party               *types.Party         `json:"party"`
	Lobby               *types.Lobby         `json:"lobby"`
	Assignment          match.Assignment     `json:"assignment"`
	Abandon             match.AbandonStatus  `json:"abandon"`
	Connection          connstate.Machine    `json:"connection"`
	WantsMatchmaking    bool                 `json:"wants_matchmaking"`
	WizardStep          types.WizardStep     `json:"wizard_step"`
	Criteria            types.SearchCriteria `json:"criteria"`
	StepChangesInFlight int                  `json:"step_changes_in_flight"`
	UpdatePending       bool                 `json:"update_pending"`
	UpdateInFlight      bool                 `json:"update_in_flight"`
	Invite              invite.Snapshot      `json:"invite"`
	PendingJoinParty    types.GroupID        `json:"pending_join_party"`
	Session             types.SessionID      `json:"session"`
	Ping                ping.Table           `json:"ping"`
	PingLastRefresh     time.Time            `json:"ping_last_refresh"`
	OutstandingRequests int                  `json:"outstanding_requests"`
	ConnectHistory      []history.Entry      `json:"connect_history"`
}

func (o *Orchestrator) Snapshot() Snapshot {
	return Snapshot{
		Party:               o.party(),
		Lobby:               o.lobby(),
		Assignment:          o.match.Current(),
		Abandon:             o.AbandonStatus(),
		Connection:          o.conn,
		WantsMatchmaking:    o.wants,
		WizardStep:          o.criteria.Step(),
		Criteria:            o.criteria.Criteria(),
		StepChangesInFlight: o.dispatch.StepChangesInFlight(),
		UpdatePending:       o.dispatch.HasPending(),
		UpdateInFlight:      o.dispatch.InFlight(),
		Invite:              o.invite.Snapshot(),
		PendingJoinParty:    o.pendingJoin,
		Session:             o.assoc.Current(),
		Ping:                o.ping.Table(),
		PingLastRefresh:     o.ping.LastRefresh(),
		OutstandingRequests: o.calls.Pending(),
		ConnectHistory:      o.match.History(),
	}
}

// Dump selects one part of the snapshot for diagnostics: party, lobby, invites, ping, history or all.
func (o *Orchestrator) Dump(kind string) (any, error) {
	s := o.Snapshot()
	switch kind {
	case "party":
		return struct {
			Party               *types.Party         `json:"party"`
			WantsMatchmaking    bool                 `json:"wants_matchmaking"`
			WizardStep          types.WizardStep     `json:"wizard_step"`
			Criteria            types.SearchCriteria `json:"criteria"`
			StepChangesInFlight int                  `json:"step_changes_in_flight"`
			UpdatePending       bool                 `json:"update_pending"`
			UpdateInFlight      bool                 `json:"update_in_flight"`
			Session             types.SessionID      `json:"session"`
		}{s.Party, s.WantsMatchmaking, s.WizardStep, s.Criteria, s.StepChangesInFlight, s.UpdatePending, s.UpdateInFlight, s.Session}, nil
	case "lobby":
		return struct {
			Lobby      *types.Lobby        `json:"lobby"`
			Assignment match.Assignment    `json:"assignment"`
			Abandon    match.AbandonStatus `json:"abandon"`
			Connection connstate.Machine   `json:"connection"`
		}{s.Lobby, s.Assignment, s.Abandon, s.Connection}, nil
	case "invites":
		return struct {
			Invite           invite.Snapshot `json:"invite"`
			PendingJoinParty types.GroupID   `json:"pending_join_party"`
		}{s.Invite, s.PendingJoinParty}, nil
	case "ping":
		return struct {
			Ping        ping.Table `json:"ping"`
			LastRefresh time.Time  `json:"last_refresh"`
		}{s.Ping, s.PingLastRefresh}, nil
	case "history":
		return s.ConnectHistory, nil
	case "all", "":
		return s, nil
	}
	return nil, ErrUnknownDump
}
